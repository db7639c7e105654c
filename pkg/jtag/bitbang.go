package jtag

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
)

// DefaultRemoteBitbangPort is the port OpenOCD's remote_bitbang driver
// connects to by default.
const DefaultRemoteBitbangPort = 9823

// maxBatchBits bounds how many bits go out before the client stops to read
// their replies, so neither side's socket buffer fills while the other is
// still writing.
const maxBatchBits = 4096

// RemoteBitbang is an Adapter speaking the remote-bitbang protocol to a
// bridge. Every bit costs three command bytes: TCK low with TMS/TDI set, a
// readback, TCK high. Commands are written in batches and the readbacks of a
// batch collected after it.
//
// A RemoteBitbang is not safe for concurrent use.
type RemoteBitbang struct {
	rw      io.ReadWriter
	info    AdapterInfo
	speedHz int

	wbuf []byte
	rbuf []byte
}

// NewRemoteBitbang speaks the protocol over rw. If rw is an io.Closer, Close
// closes it after sending the quit command.
func NewRemoteBitbang(rw io.ReadWriter) *RemoteBitbang {
	return &RemoteBitbang{
		rw:   rw,
		info: AdapterInfo{Name: "remote-bitbang", SupportsTRST: true},
	}
}

// DialRemoteBitbang connects to a bridge. endpoint is "host:port", a bare
// port, "unix:/path" or a path containing '/'.
func DialRemoteBitbang(ctx context.Context, endpoint string) (*RemoteBitbang, error) {
	network, addr := splitEndpoint(endpoint)
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("jtag: dial %s: %w", endpoint, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	rb := NewRemoteBitbang(conn)
	rb.info.Transport = network
	rb.info.Address = addr
	return rb, nil
}

func splitEndpoint(endpoint string) (network, addr string) {
	if path, ok := strings.CutPrefix(endpoint, "unix:"); ok {
		return "unix", path
	}
	if strings.Contains(endpoint, "/") {
		return "unix", endpoint
	}
	if !strings.Contains(endpoint, ":") {
		return "tcp", net.JoinHostPort("127.0.0.1", endpoint)
	}
	if strings.HasPrefix(endpoint, ":") {
		return "tcp", "127.0.0.1" + endpoint
	}
	return "tcp", endpoint
}

func (r *RemoteBitbang) Info() (AdapterInfo, error) {
	info := r.info
	info.MaxFrequency = r.speedHz
	return info, nil
}

func (r *RemoteBitbang) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return r.shift(tms, tdi, bits)
}

func (r *RemoteBitbang) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return r.shift(tms, tdi, bits)
}

// ResetTAP clocks five TMS=1 cycles. A hard reset pulses TRST first.
func (r *RemoteBitbang) ResetTAP(hard bool) error {
	r.wbuf = r.wbuf[:0]
	if hard {
		r.wbuf = append(r.wbuf, 'r', 't')
	}
	for i := 0; i < 5; i++ {
		r.wbuf = append(r.wbuf, pattern(false, true, false), pattern(true, true, false))
	}
	r.wbuf = append(r.wbuf, pattern(false, true, false))
	return r.write()
}

// SetSpeed is accepted for interface compatibility. The bridge advances one
// command per simulation tick, so the rate is set by the simulation.
func (r *RemoteBitbang) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	r.speedHz = hz
	return nil
}

// Blink drives the bridge's activity indicator.
func (r *RemoteBitbang) Blink(on bool) error {
	cmd := byte('b')
	if on {
		cmd = 'B'
	}
	r.wbuf = append(r.wbuf[:0], cmd)
	return r.write()
}

// Close asks the bridge to drop the connection and closes the transport.
func (r *RemoteBitbang) Close() error {
	r.wbuf = append(r.wbuf[:0], 'Q')
	err := r.write()
	if c, ok := r.rw.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (r *RemoteBitbang) shift(tms, tdi []byte, bits int) ([]byte, error) {
	n, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}

	tdo := make([]byte, n)
	for start := 0; start < bits; start += maxBatchBits {
		end := min(start+maxBatchBits, bits)
		if err := r.shiftBatch(tms, tdi, tdo, start, end); err != nil {
			return nil, err
		}
	}
	return tdo, nil
}

// shiftBatch clocks bits [start, end) and stores their readbacks in tdo.
func (r *RemoteBitbang) shiftBatch(tms, tdi, tdo []byte, start, end int) error {
	r.wbuf = r.wbuf[:0]
	var m, d bool
	for i := start; i < end; i++ {
		m, d = bitAt(tms, i), bitAt(tdi, i)
		r.wbuf = append(r.wbuf, pattern(false, m, d), 'R', pattern(true, m, d))
	}
	// Leave TCK low.
	r.wbuf = append(r.wbuf, pattern(false, m, d))
	if err := r.write(); err != nil {
		return err
	}

	count := end - start
	if cap(r.rbuf) < count {
		r.rbuf = make([]byte, count)
	}
	replies := r.rbuf[:count]
	if _, err := io.ReadFull(r.rw, replies); err != nil {
		return fmt.Errorf("jtag: read %d readback bytes: %w", count, err)
	}

	for j, c := range replies {
		i := start + j
		switch c {
		case '1':
			tdo[i/8] |= 1 << (uint(i) % 8)
		case '0':
		default:
			return fmt.Errorf("jtag: unexpected readback byte %q", c)
		}
	}
	return nil
}

func (r *RemoteBitbang) write() error {
	if _, err := r.rw.Write(r.wbuf); err != nil {
		return fmt.Errorf("jtag: write: %w", err)
	}
	return nil
}

// pattern encodes a pin-set command: '0' + (tck<<2 | tms<<1 | tdi).
func pattern(tck, tms, tdi bool) byte {
	c := byte('0')
	if tck {
		c += 4
	}
	if tms {
		c += 2
	}
	if tdi {
		c++
	}
	return c
}
