package rbb

import "io"

// recvBuffer holds client bytes that have been read but not yet executed.
// Bytes in buf[cursor:end] are pending.
type recvBuffer struct {
	buf    []byte
	cursor int
	end    int
}

func newRecvBuffer(size int) recvBuffer {
	return recvBuffer{buf: make([]byte, size)}
}

func (b *recvBuffer) empty() bool { return b.cursor == b.end }
func (b *recvBuffer) pending() int { return b.end - b.cursor }
func (b *recvBuffer) reset() { b.cursor, b.end = 0, 0 }

func (b *recvBuffer) next() (c byte) {
	c = b.buf[b.cursor]
	b.cursor++
	return c
}

// fill replaces the (exhausted) contents with one Read from r.
func (b *recvBuffer) fill(r io.Reader) (int, error) {
	b.reset()
	n, err := r.Read(b.buf)
	if n > 0 {
		b.end = n
	}
	return n, err
}

// sendBuffer accumulates readback replies until they are flushed.
type sendBuffer struct {
	buf []byte
	end int
}

func newSendBuffer(size int) sendBuffer {
	return sendBuffer{buf: make([]byte, size)}
}

func (b *sendBuffer) pending() int { return b.end }
func (b *sendBuffer) full() bool { return b.end == len(b.buf) }
func (b *sendBuffer) reset() { b.end = 0 }

// push appends c and reports whether the buffer is now full.
func (b *sendBuffer) push(c byte) bool {
	b.buf[b.end] = c
	b.end++
	return b.full()
}

// flush writes every pending byte to w. On error the unsent tail is kept at
// the front of the buffer.
func (b *sendBuffer) flush(w io.Writer) (int, error) {
	if b.end == 0 {
		return 0, nil
	}
	n, err := w.Write(b.buf[:b.end])
	if n < 0 {
		n = 0
	}
	if err != nil {
		copy(b.buf, b.buf[n:b.end])
		b.end -= n
		return n, err
	}
	if n < b.end {
		copy(b.buf, b.buf[n:b.end])
		b.end -= n
		return n, io.ErrShortWrite
	}
	b.end = 0
	return n, nil
}
