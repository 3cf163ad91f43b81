// Package probe answers "is anything listening on this port" from the OS
// socket table, without any cooperation from the target process.
package probe

import (
	"errors"

	gnet "github.com/shirou/gopsutil/v4/net"
)

// Prober reports liveness for a TCP port. Implementations must be
// side-effect-free and safe for concurrent use.
type Prober interface {
	// IsListening returns true if some socket in LISTEN state is bound to port.
	IsListening(port int) (bool, error)
	// OwnerPID resolves the pid holding the listening socket on port.
	// The second return is false when no listener exists.
	OwnerPID(port int) (int32, bool, error)
}

// Error marks a failed socket-table enumeration. Callers must treat it as
// distinct from "not listening": the supervisor's safety checks depend on the
// prober being reliable, so an enumeration failure aborts the operation.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "socket table enumeration failed: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsProbeError reports whether err (or anything it wraps) is a prober failure.
func IsProbeError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// TCP probes the kernel's TCP socket table via gopsutil.
type TCP struct{}

func (TCP) IsListening(port int) (bool, error) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return false, &Error{Err: err}
	}
	for _, c := range conns {
		if c.Status == "LISTEN" && int(c.Laddr.Port) == port {
			return true, nil
		}
	}
	return false, nil
}

func (TCP) OwnerPID(port int) (int32, bool, error) {
	conns, err := gnet.Connections("tcp")
	if err != nil {
		return 0, false, &Error{Err: err}
	}
	for _, c := range conns {
		if c.Status == "LISTEN" && int(c.Laddr.Port) == port && c.Pid > 0 {
			return c.Pid, true, nil
		}
	}
	return 0, false, nil
}
