package rbb

import (
	"errors"
	"io"
	"runtime"
	"time"
)

// Conn is the byte stream to one client. Read must return ErrWouldBlock when
// nothing is available and io.EOF (or ErrPeerClosed) once the client is gone.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// readWaiter is implemented by connections that can wait for readability
// without spinning. RefillStall uses it when available.
type readWaiter interface {
	WaitReadable(timeout time.Duration) (bool, error)
}

// State is the interpreter state between ticks.
type State uint8

const (
	// StateNeedBytes means the receive buffer is exhausted; the next step
	// must refill it before a command can run.
	StateNeedBytes State = iota
	// StateHaveCommand means at least one command byte is buffered.
	StateHaveCommand
)

func (s State) String() string {
	if s == StateHaveCommand {
		return "have-command"
	}
	return "need-bytes"
}

// Outcome describes what a single Step did.
type Outcome uint8

const (
	// OutcomeIdle: no byte was available, nothing executed.
	OutcomeIdle Outcome = iota
	// OutcomeExecuted: one command byte was consumed.
	OutcomeExecuted
	// OutcomeQuit: the client sent Q. The caller disconnects.
	OutcomeQuit
	// OutcomePeerClosed: the client hung up. The caller disconnects.
	OutcomePeerClosed
)

var outcomeNames = [...]string{"idle", "executed", "quit", "peer-closed"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Stats counts bridge activity since it was opened.
type Stats struct {
	Accepts     uint64
	Disconnects uint64
	Commands    uint64 // command bytes consumed, unknown ones included
	Readbacks   uint64 // R commands
	Unknown     uint64
	IdleTicks   uint64 // connected ticks that executed nothing
	Reads       uint64 // read calls on the client socket
	EmptyReads  uint64 // reads that would have blocked
	BytesIn     uint64
	Writes      uint64 // flushes that put bytes on the wire
	BytesOut    uint64
}

// Engine is the remote-bitbang command interpreter. It owns the pin state and
// both buffers of the current connection. It is not safe for concurrent use.
type Engine struct {
	pins Pins
	conn Conn
	recv recvBuffer
	send sendBuffer

	refill       RefillPolicy
	stallTimeout time.Duration
	log          Logger
	now          func() time.Time

	stats Stats
}

// NewEngine creates an interpreter with default pins and empty buffers.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		pins:         DefaultPins(),
		recv:         newRecvBuffer(cfg.RecvBufferSize),
		send:         newSendBuffer(cfg.SendBufferSize),
		refill:       cfg.Refill,
		stallTimeout: cfg.StallTimeout,
		log:          cfg.Logger,
		now:          time.Now,
	}, nil
}

// Attach makes c the active client. Buffers start empty.
func (e *Engine) Attach(c Conn) {
	e.conn = c
	e.recv.reset()
	e.send.reset()
}

// Attached reports whether a client is active.
func (e *Engine) Attached() bool {
	return e.conn != nil
}

// Pins returns the current pin state.
func (e *Engine) Pins() Pins {
	return e.pins
}

// State reports whether a command byte is buffered.
func (e *Engine) State() State {
	if e.recv.empty() {
		return StateNeedBytes
	}
	return StateHaveCommand
}

// Pending returns the number of buffered command bytes and readback bytes.
func (e *Engine) Pending() (commands, replies int) {
	return e.recv.pending(), e.send.pending()
}

// Stats returns a copy of the counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// ResetPins restores the default pin levels.
func (e *Engine) ResetPins() {
	e.pins = DefaultPins()
}

// Flush writes pending readback bytes to the client.
func (e *Engine) Flush() error {
	if e.conn == nil || e.send.pending() == 0 {
		return nil
	}
	n, err := e.send.flush(e.conn)
	if n > 0 {
		e.stats.Writes++
		e.stats.BytesOut += uint64(n)
	}
	return err
}

// detach drops the client and its buffers and returns the old connection.
func (e *Engine) detach() Conn {
	c := e.conn
	e.conn = nil
	e.recv.reset()
	e.send.reset()
	return c
}

// Step records tdo and executes at most one command byte.
//
// In StateNeedBytes the pending replies are flushed first and one refill is
// attempted according to the refill policy. Transient conditions produce
// OutcomeIdle; only unexpected socket errors are returned, as *FatalError.
func (e *Engine) Step(tdo bool) (Outcome, error) {
	if e.conn == nil {
		return OutcomeIdle, ErrNotAttached
	}
	e.pins.TDO = tdo

	if e.recv.empty() {
		ready, outcome, err := e.fill()
		if !ready {
			if outcome == OutcomeIdle && err == nil {
				e.stats.IdleTicks++
			}
			return outcome, err
		}
	}

	outcome, err := e.execute(e.recv.next())
	if err != nil || outcome != OutcomeExecuted {
		return outcome, err
	}

	// Nothing left to run before we yield: let the client see the replies.
	if e.recv.empty() {
		return e.flushReplies()
	}
	return OutcomeExecuted, nil
}

// fill refills the exhausted receive buffer. It reports ready when at least
// one byte is now buffered; otherwise outcome says why not.
func (e *Engine) fill() (ready bool, outcome Outcome, err error) {
	if flushed, ferr := e.flushReplies(); flushed != OutcomeExecuted || ferr != nil {
		return false, flushed, ferr
	}

	var deadline time.Time
	if e.refill == RefillStall {
		deadline = e.now().Add(e.stallTimeout)
	}

	for {
		n, rerr := e.recv.fill(e.conn)
		e.stats.Reads++
		switch {
		case n > 0:
			e.stats.BytesIn += uint64(n)
			return true, OutcomeExecuted, nil
		case rerr == nil, errors.Is(rerr, ErrWouldBlock):
			e.stats.EmptyReads++
		case isPeerClosed(rerr):
			return false, OutcomePeerClosed, nil
		default:
			return false, OutcomeIdle, fatal("read", rerr)
		}

		if e.refill != RefillStall {
			return false, OutcomeIdle, nil
		}
		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			return false, OutcomeIdle, nil
		}
		if w, ok := e.conn.(readWaiter); ok {
			if _, werr := w.WaitReadable(remaining); werr != nil {
				return false, OutcomeIdle, fatal("poll", werr)
			}
		} else {
			runtime.Gosched()
		}
	}
}

// flushReplies flushes the send buffer and classifies the result. It returns
// OutcomeExecuted when the stream is still usable.
func (e *Engine) flushReplies() (Outcome, error) {
	err := e.Flush()
	switch {
	case err == nil:
		return OutcomeExecuted, nil
	case isPeerClosed(err):
		return OutcomePeerClosed, nil
	}
	return OutcomeIdle, fatal("write", err)
}

func (e *Engine) execute(cmd byte) (Outcome, error) {
	e.stats.Commands++

	switch cmd {
	case 'B', 'b':
		// Blink. Nothing to drive.
	case 'r', 's':
		// There is no separate SRST line; both reset commands act on TRST.
		e.pins.TRSTn = false
	case 't', 'u':
		e.pins.TRSTn = true
	case '0', '1', '2', '3', '4', '5', '6', '7':
		e.pins.setPattern(cmd - '0')
	case 'R':
		e.stats.Readbacks++
		reply := byte('0')
		if e.pins.TDO {
			reply = '1'
		}
		if e.send.push(reply) {
			return e.flushReplies()
		}
	case 'Q':
		return OutcomeQuit, nil
	default:
		e.stats.Unknown++
		e.log.Warnf("remote bitbang: unsupported command %q", cmd)
	}
	return OutcomeExecuted, nil
}
