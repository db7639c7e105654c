package rbb

// Acceptor hands out client connections without blocking. *Listener is the
// production implementation.
type Acceptor interface {
	TryAccept() (Conn, error)
	Addr() string
	Close() error
}

type remoteAddresser interface {
	RemoteAddr() string
}

// Bridge connects one remote-bitbang client to a simulation. It owns the
// listening socket for its whole lifetime and at most one client at a time.
//
// A Bridge is driven from a single goroutine: the simulation loop calling
// Tick. None of its methods may be called concurrently.
type Bridge struct {
	acceptor Acceptor
	engine   *Engine
	log      Logger
	closed   bool
}

// Open validates cfg, starts listening on cfg.Endpoint and returns the
// bridge. Listening failures are returned as *FatalError.
func Open(cfg Config) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ep, err := ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	l, err := Listen(ep)
	if err != nil {
		return nil, err
	}
	l.WriteTimeout = cfg.WriteTimeout
	l.Logger = cfg.Logger

	b, err := NewBridge(cfg, l)
	if err != nil {
		l.Close()
		return nil, err
	}
	cfg.Logger.Infof("remote bitbang: listening on %s (refill=%s)", l.Addr(), cfg.Refill)
	return b, nil
}

// NewBridge builds a bridge around an existing acceptor.
func NewBridge(cfg Config, acceptor Acceptor) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		acceptor: acceptor,
		engine:   engine,
		log:      cfg.Logger,
	}, nil
}

// Tick advances the bridge by one simulation cycle. tdo is the value the
// design currently drives on TDO. The returned pins are the levels to drive
// for the next cycle.
//
// Without a client Tick only attempts a non-blocking accept. With a client
// it executes at most one command. The error is non-nil only for fatal
// conditions (see FatalError) or after Close.
func (b *Bridge) Tick(tdo bool) (Pins, error) {
	if b.closed {
		return b.engine.Pins(), ErrClosed
	}

	if !b.engine.Attached() {
		conn, err := b.acceptor.TryAccept()
		if err != nil {
			return b.engine.Pins(), err
		}
		if conn != nil {
			b.engine.Attach(conn)
			b.engine.stats.Accepts++
			b.log.Infof("remote bitbang: accepted client %s", peerName(conn))
		}
		return b.engine.Pins(), nil
	}

	outcome, err := b.engine.Step(tdo)
	if err != nil {
		return b.engine.Pins(), err
	}
	if outcome == OutcomeQuit || outcome == OutcomePeerClosed {
		b.Disconnect()
	}
	return b.engine.Pins(), nil
}

// Disconnect drops the current client: pins go back to their defaults,
// pending replies are flushed on a best-effort basis and the socket is
// closed. Calling it without a client only resets the pins.
func (b *Bridge) Disconnect() {
	b.engine.ResetPins()
	if !b.engine.Attached() {
		return
	}

	if _, replies := b.engine.Pending(); replies > 0 {
		if err := b.engine.Flush(); err != nil {
			b.log.Debugf("remote bitbang: dropped %d reply bytes: %v", replies, err)
		}
	}
	conn := b.engine.detach()
	if err := conn.Close(); err != nil {
		b.log.Warnf("remote bitbang: close client: %v", err)
	}
	b.engine.stats.Disconnects++
	b.log.Infof("remote bitbang: remote end disconnected")
}

// Connected reports whether a client is attached.
func (b *Bridge) Connected() bool {
	return b.engine.Attached()
}

// Pins returns the current pin state without advancing.
func (b *Bridge) Pins() Pins {
	return b.engine.Pins()
}

// State exposes the interpreter state, mostly for tests and diagnostics.
func (b *Bridge) State() State {
	return b.engine.State()
}

// Stats returns activity counters.
func (b *Bridge) Stats() Stats {
	return b.engine.Stats()
}

// Addr returns the listening address.
func (b *Bridge) Addr() string {
	return b.acceptor.Addr()
}

// Done reports whether the session is finished. Termination is driven by
// the host, so this is always false.
func (b *Bridge) Done() bool {
	return false
}

// ExitCode is the exit status the bridge asks the host to use. Always 0.
func (b *Bridge) ExitCode() int {
	return 0
}

// Close disconnects any client and closes the listening socket.
func (b *Bridge) Close() error {
	if b.closed {
		return nil
	}
	b.Disconnect()
	b.closed = true
	return b.acceptor.Close()
}

func peerName(c Conn) string {
	if ra, ok := c.(remoteAddresser); ok {
		return ra.RemoteAddr()
	}
	return "client"
}
