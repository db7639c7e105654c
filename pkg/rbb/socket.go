package rbb

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Listener is a non-blocking listening socket with a backlog of one.
type Listener struct {
	fd       int
	endpoint Endpoint
	addr     string
	port     int

	// WriteTimeout bounds how long a write to an accepted client may wait
	// for socket buffer space.
	WriteTimeout time.Duration
	// Logger receives per-connection socket diagnostics. May be nil.
	Logger Logger
}

// Listen binds and listens on ep. Every failure is a *FatalError.
func Listen(ep Endpoint) (*Listener, error) {
	var (
		domain int
		sa     unix.Sockaddr
	)
	switch ep.Network {
	case "unix":
		domain = unix.AF_UNIX
		sa = &unix.SockaddrUnix{Name: ep.Path}
		if err := removeStaleSocket(ep.Path); err != nil {
			return nil, fatal("bind", err)
		}
	case "tcp":
		domain = unix.AF_INET
		in := &unix.SockaddrInet4{Port: ep.Port}
		copy(in.Addr[:], ep.IP.To4())
		sa = in
	default:
		return nil, fatal("socket", fmt.Errorf("unsupported network %q", ep.Network))
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fatal("socket", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fatal("fcntl", err)
	}
	if domain == unix.AF_INET {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return nil, fatal("setsockopt", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fatal("bind", fmt.Errorf("%s: %w", ep, err))
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, fatal("listen", err)
	}

	l := &Listener{fd: fd, endpoint: ep, WriteTimeout: DefaultWriteTimeout}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fatal("getsockname", err)
	}
	switch a := bound.(type) {
	case *unix.SockaddrInet4:
		l.port = a.Port
		l.addr = net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		l.addr = ep.String()
	}
	return l, nil
}

// removeStaleSocket deletes a socket file left behind by a previous run.
// Regular files are left alone so bind reports EADDRINUSE.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return nil
	}
	return os.Remove(path)
}

// Addr returns the bound address, with the real port for TCP.
func (l *Listener) Addr() string {
	return l.addr
}

// Port returns the bound TCP port, or 0 for Unix sockets.
func (l *Listener) Port() int {
	return l.port
}

// TryAccept accepts a pending client without blocking. It returns nil, nil
// when nobody is waiting.
func (l *Listener) TryAccept() (Conn, error) {
	nfd, sa, err := unix.Accept(l.fd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) ||
			errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED) {
			return nil, nil
		}
		return nil, fatal("accept", err)
	}
	unix.CloseOnExec(nfd)

	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, fatal("fcntl", err)
	}

	c := &socketConn{fd: nfd, writeTimeout: l.WriteTimeout, peer: l.endpoint.String()}
	if in, ok := sa.(*unix.SockaddrInet4); ok {
		c.peer = net.JoinHostPort(net.IP(in.Addr[:]).String(), strconv.Itoa(in.Port))
		// Readback latency matters more than segment count. Failure only
		// costs latency, so the client is kept.
		if err := unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil && l.Logger != nil {
			l.Logger.Debugf("remote bitbang: TCP_NODELAY on %s: %v", c.peer, err)
		}
	}
	return c, nil
}

// Close closes the listening socket and removes a Unix socket file.
func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	if l.endpoint.Network == "unix" {
		_ = os.Remove(l.endpoint.Path)
	}
	return err
}

// socketConn is an accepted non-blocking client socket.
type socketConn struct {
	fd           int
	peer         string
	writeTimeout time.Duration
}

func (c *socketConn) RemoteAddr() string {
	return c.peer
}

func (c *socketConn) Read(p []byte) (int, error) {
	if c.fd < 0 {
		return 0, net.ErrClosed
	}
	n, err := unix.Read(c.fd, p)
	switch {
	case err == nil && n == 0 && len(p) > 0:
		return 0, io.EOF
	case err == nil:
		return n, nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
		return 0, ErrWouldBlock
	case errors.Is(err, unix.ECONNRESET):
		return 0, ErrPeerClosed
	}
	return 0, err
}

// Write writes all of p, waiting for buffer space when the socket is full.
func (c *socketConn) Write(p []byte) (int, error) {
	if c.fd < 0 {
		return 0, net.ErrClosed
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(c.fd, p[written:])
		switch {
		case err == nil:
			written += n
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			if err := c.waitWritable(); err != nil {
				return written, err
			}
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EPIPE), errors.Is(err, unix.ECONNRESET):
			return written, ErrPeerClosed
		default:
			return written, err
		}
	}
	return written, nil
}

func (c *socketConn) waitWritable() error {
	ready, err := c.poll(unix.POLLOUT, c.writeTimeout)
	if err != nil {
		return err
	}
	if !ready {
		return ErrWriteTimeout
	}
	return nil
}

// WaitReadable blocks for at most timeout until the socket has data or the
// peer hung up.
func (c *socketConn) WaitReadable(timeout time.Duration) (bool, error) {
	return c.poll(unix.POLLIN, timeout)
}

func (c *socketConn) poll(events int16, timeout time.Duration) (bool, error) {
	ms := int((timeout + time.Millisecond - 1) / time.Millisecond)
	pfd := []unix.PollFd{{Fd: int32(c.fd), Events: events}}
	for {
		n, err := unix.Poll(pfd, ms)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 && events == unix.POLLOUT {
			return false, ErrPeerClosed
		}
		return true, nil
	}
}

func (c *socketConn) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}
