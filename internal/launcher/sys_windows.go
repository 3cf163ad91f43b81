//go:build windows

package launcher

import (
	"os/exec"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

const createNewProcessGroup = 0x00000200

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// terminateGroup terminates the child process. Windows has no process-group
// signal delivery, so children of the child are not covered.
func terminateGroup(pid int) {
	if p, err := gopsproc.NewProcess(int32(pid)); err == nil {
		_ = p.Terminate()
	}
}

func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/C", script)
}
