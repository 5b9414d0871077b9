package telnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrInvalidCommand is returned for commands that would break the line protocol.
var ErrInvalidCommand = errors.New("command must be a single line")

var errClosedBeforeAck = errors.New("connection closed before credential was acknowledged")

// ConnectionError reports a failure to reach or stay connected to the daemon.
type ConnectionError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("command channel %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that no complete reply arrived within the deadline.
type TimeoutError struct {
	Addr    string
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command channel timeout after %s (%s %s)", e.Timeout, e.Op, e.Addr)
}

// Timeout lets callers treat the error like a net.Error timeout.
func (e *TimeoutError) Timeout() bool { return true }

// Is matches context.DeadlineExceeded and os.ErrDeadlineExceeded.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded || target == os.ErrDeadlineExceeded
}

// IsTimeout reports whether err is a command channel timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// classify turns an I/O failure into a TimeoutError or ConnectionError.
func classify(ctx context.Context, budget time.Duration, addr, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Addr: addr, Op: op, Timeout: budget}
	}
	if ctx.Err() == nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return &TimeoutError{Addr: addr, Op: op, Timeout: budget}
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return &ConnectionError{Addr: addr, Op: op, Err: err}
}
