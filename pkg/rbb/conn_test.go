package rbb

import (
	"bytes"
	"io"
	"time"
)

// fakeConn is a scripted in-memory client. Each entry in reads is returned by
// one Read call; a nil entry means "would block".
type fakeConn struct {
	reads     [][]byte
	eof       bool  // once reads run out: io.EOF instead of ErrWouldBlock
	readErr   error // once reads run out: this error
	written   bytes.Buffer
	writeErr  error
	readCalls int
	closed    int
}

func newFakeConn(chunks ...string) *fakeConn {
	f := &fakeConn{}
	for _, c := range chunks {
		f.feed(c)
	}
	return f
}

func (f *fakeConn) feed(s string) {
	if s == "" {
		f.reads = append(f.reads, nil)
		return
	}
	f.reads = append(f.reads, []byte(s))
}

func (f *fakeConn) Read(p []byte) (int, error) {
	f.readCalls++
	if len(f.reads) == 0 {
		switch {
		case f.readErr != nil:
			return 0, f.readErr
		case f.eof:
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	chunk := f.reads[0]
	f.reads = f.reads[1:]
	if chunk == nil {
		return 0, ErrWouldBlock
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		f.reads = append([][]byte{chunk[n:]}, f.reads...)
	}
	return n, nil
}

func (f *fakeConn) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.written.Write(p)
}

func (f *fakeConn) Close() error {
	f.closed++
	return nil
}

// waitingConn implements readWaiter. onWait runs for every wait.
type waitingConn struct {
	*fakeConn
	waits  int
	onWait func(timeout time.Duration)
}

func (w *waitingConn) WaitReadable(timeout time.Duration) (bool, error) {
	w.waits++
	if w.onWait != nil {
		w.onWait(timeout)
	}
	return len(w.reads) > 0, nil
}

// fakeAcceptor hands out queued connections, one per TryAccept call.
type fakeAcceptor struct {
	pending []Conn
	err     error
	calls   int
	closed  bool
}

func (a *fakeAcceptor) TryAccept() (Conn, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if len(a.pending) == 0 {
		return nil, nil
	}
	c := a.pending[0]
	a.pending = a.pending[1:]
	return c, nil
}

func (a *fakeAcceptor) Addr() string { return "fake" }

func (a *fakeAcceptor) Close() error {
	a.closed = true
	return nil
}
