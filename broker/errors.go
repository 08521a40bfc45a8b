package broker

import "errors"

var (
	// ErrConnClosed is returned by any operation attempted on a connection
	// whose FSM has already moved to Closing.
	ErrConnClosed = errors.New("broker: connection closed")
	// errWouldBlock signals a raw read/write syscall returning EAGAIN: not
	// an error condition, just "no more work right now".
	errWouldBlock = errors.New("broker: operation would block")
	// ErrMaxRequestSize names an inbound packet larger than the configured
	// maximum packet size. The event loop does not return it: it closes
	// such a connection with the MaxRequestSize CloseReason.
	ErrMaxRequestSize = errors.New("broker: packet exceeds maximum size")
	// ErrListenerClosed names a shut-down listener. No broker function
	// returns it; acceptLoop simply exits once the broker is closed.
	ErrListenerClosed = errors.New("broker: listener closed")
)
