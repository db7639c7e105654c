package rbb

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrWouldBlock is returned by Conn.Read when no data is available yet.
	ErrWouldBlock = errors.New("rbb: operation would block")
	// ErrPeerClosed reports that the client went away (reset or broken pipe).
	ErrPeerClosed = errors.New("rbb: peer closed connection")
	// ErrWriteTimeout is returned when the client stops draining its socket.
	ErrWriteTimeout = errors.New("rbb: write timed out")
	// ErrClosed is returned by Tick after Close.
	ErrClosed = errors.New("rbb: bridge closed")
	// ErrNotAttached is returned by Engine.Step when no client is attached.
	ErrNotAttached = errors.New("rbb: no client attached")
)

// FatalError is an error the bridge cannot recover from: the listening socket
// could not be set up, or a socket call failed in a way that leaves the
// protocol stream unsynchronised. Hosts usually log it and exit.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("rbb: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err (or anything it wraps) is a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func fatal(op string, err error) error {
	var fe *FatalError
	if errors.As(err, &fe) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

func isPeerClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrPeerClosed)
}
