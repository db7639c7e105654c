package rbb

import (
	"fmt"
	"strings"
	"time"

	"github.com/OpenTraceLab/rbbsim/internal/logging"
)

const (
	// DefaultBufferSize is the capacity of the receive and send buffers.
	DefaultBufferSize = 64 * 1024
	// DefaultEndpoint is the listening address used when none is configured.
	DefaultEndpoint = "127.0.0.1:9823"
	// DefaultWriteTimeout bounds how long a flush waits for the client to
	// drain its socket.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultStallTimeout bounds a single refill wait under RefillStall.
	DefaultStallTimeout = 10 * time.Millisecond
)

// RefillPolicy selects what a tick does when the receive buffer is empty and
// the client has nothing queued.
type RefillPolicy uint8

const (
	// RefillYield ends the tick immediately without executing a command.
	RefillYield RefillPolicy = iota
	// RefillStall waits up to Config.StallTimeout for the next byte.
	RefillStall
)

var refillNames = map[RefillPolicy]string{
	RefillYield: "yield",
	RefillStall: "stall",
}

func (p RefillPolicy) String() string {
	if name, ok := refillNames[p]; ok {
		return name
	}
	return fmt.Sprintf("RefillPolicy(%d)", p)
}

// ParseRefillPolicy converts "yield" or "stall" into a RefillPolicy.
func ParseRefillPolicy(s string) (RefillPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yield", "":
		return RefillYield, nil
	case "stall":
		return RefillStall, nil
	}
	return RefillYield, fmt.Errorf("rbb: unknown refill policy %q (want yield or stall)", s)
}

// Logger receives the bridge diagnostics. *logging.Logger satisfies it.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Config controls a Bridge.
type Config struct {
	// Endpoint is a TCP address ("9823", ":9823", "127.0.0.1:9823") or a
	// Unix socket path ("unix:/tmp/rbb.sock" or any value containing '/').
	Endpoint string

	RecvBufferSize int // bytes (default: 64 KiB)
	SendBufferSize int // bytes (default: 64 KiB)

	Refill       RefillPolicy  // default: RefillYield
	StallTimeout time.Duration // RefillStall only (default: 10ms)
	WriteTimeout time.Duration // per blocked flush (default: 5s)

	Logger Logger // default: logging.Default()
}

// DefaultConfig returns a Config with the defaults documented on each field.
func DefaultConfig() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		RecvBufferSize: DefaultBufferSize,
		SendBufferSize: DefaultBufferSize,
		Refill:         RefillYield,
		StallTimeout:   DefaultStallTimeout,
		WriteTimeout:   DefaultWriteTimeout,
	}
}

// Validate fills unset fields with defaults and rejects invalid values.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.RecvBufferSize == 0 {
		c.RecvBufferSize = DefaultBufferSize
	}
	if c.SendBufferSize == 0 {
		c.SendBufferSize = DefaultBufferSize
	}
	if c.RecvBufferSize < 0 || c.SendBufferSize < 0 {
		return fmt.Errorf("rbb: buffer sizes must be positive (recv=%d send=%d)",
			c.RecvBufferSize, c.SendBufferSize)
	}
	if _, ok := refillNames[c.Refill]; !ok {
		return fmt.Errorf("rbb: invalid refill policy %d", c.Refill)
	}
	if c.StallTimeout < 0 {
		return fmt.Errorf("rbb: stall timeout must not be negative, got %s", c.StallTimeout)
	}
	if c.Refill == RefillStall && c.StallTimeout == 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	return nil
}
