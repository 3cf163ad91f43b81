package supervisor

import "errors"

var (
	// ErrUnknownSlot reports a slot number outside the configured fleet.
	ErrUnknownSlot = errors.New("unknown slot")

	// ErrStartTimeout reports a launch that never reached an observed
	// listening socket within the bounded wait window. The attempt is not
	// retried automatically.
	ErrStartTimeout = errors.New("server did not reach listening state")
)
