// Package jtag is the client side of a JTAG link: the Adapter abstraction,
// a remote-bitbang implementation of it and helpers that scan a chain through
// any Adapter.
package jtag

import (
	"errors"
	"fmt"
)

// AdapterInfo describes a JTAG adapter.
type AdapterInfo struct {
	Name         string
	Transport    string // "tcp", "unix", "sim"
	Address      string
	MaxFrequency int // Hertz, 0 when the adapter has no clock of its own
	SupportsTRST bool
	Notes        string
}

// Adapter abstracts a JTAG Test Access Port adapter.
//
// ShiftIR and ShiftDR clock bits TCK cycles. tms and tdi are packed LSB
// first; a nil tdi shifts zeros. The returned tdo has the same layout, one
// bit per cycle, sampled before each rising edge.
type Adapter interface {
	Info() (AdapterInfo, error)
	ShiftIR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ShiftDR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ResetTAP(hard bool) error
	SetSpeed(hz int) error
}

// ErrNotImplemented is returned for capabilities an adapter lacks.
var ErrNotImplemented = errors.New("jtag: not implemented")

// ValidateShiftBuffers checks that non-nil TMS/TDI buffers hold bits and
// returns the number of bytes bits occupies.
func ValidateShiftBuffers(tms, tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("jtag: bits must be positive, got %d", bits)
	}
	required := (bits + 7) / 8
	if len(tms) > 0 && len(tms) < required {
		return 0, fmt.Errorf("jtag: tms buffer too short, need %d bytes", required)
	}
	if len(tdi) > 0 && len(tdi) < required {
		return 0, fmt.Errorf("jtag: tdi buffer too short, need %d bytes", required)
	}
	return required, nil
}

func bitAt(buf []byte, i int) bool {
	if len(buf) == 0 {
		return false
	}
	return buf[i/8]&(1<<(uint(i)%8)) != 0
}
