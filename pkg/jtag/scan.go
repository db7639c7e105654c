package jtag

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/rbbsim/pkg/tap"
)

// Session tracks the TAP state of the chain behind an adapter so callers can
// move between states by name.
type Session struct {
	adapter Adapter
	tap     *tap.StateMachine
}

// NewSession assumes the chain state is unknown until Reset.
func NewSession(adapter Adapter) *Session {
	return &Session{adapter: adapter, tap: tap.NewStateMachine()}
}

// State returns the tracked TAP state.
func (s *Session) State() tap.State {
	return s.tap.State()
}

// Reset puts the chain in Test-Logic-Reset. hard additionally asks the
// adapter for a TRST pulse where supported.
func (s *Session) Reset(hard bool) error {
	if err := s.adapter.ResetTAP(hard); err != nil && !errors.Is(err, ErrNotImplemented) {
		return err
	}
	s.tap.Force(tap.StateTestLogicReset)
	return nil
}

// GoTo moves the chain to target along the shortest path.
func (s *Session) GoTo(target tap.State) error {
	from := s.tap.State()
	seq, err := s.tap.GoTo(target)
	if err != nil {
		return err
	}
	if seq.Len() == 0 {
		return nil
	}
	_, err = s.dispatch(from.IsIR(), seq.Bytes(), nil, seq.Len())
	return err
}

// ShiftDR moves to Shift-DR, shifts tdi (LSB first, nil for zeros) through
// bits cycles leaving on the last one, and returns to Run-Test/Idle.
func (s *Session) ShiftDR(tdi []byte, bits int) ([]byte, error) {
	return s.scan(tap.StateShiftDR, tdi, bits)
}

// ShiftIR is ShiftDR for the instruction register.
func (s *Session) ShiftIR(tdi []byte, bits int) ([]byte, error) {
	return s.scan(tap.StateShiftIR, tdi, bits)
}

func (s *Session) scan(shift tap.State, tdi []byte, bits int) ([]byte, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("jtag: bits must be positive, got %d", bits)
	}
	if err := s.GoTo(shift); err != nil {
		return nil, err
	}
	tms := make([]bool, bits)
	tms[bits-1] = true
	tdo, err := s.dispatch(shift.IsIR(), tap.PackBits(tms), tdi, bits)
	if err != nil {
		return nil, err
	}
	for _, bit := range tms {
		s.tap.Clock(bit)
	}
	if err := s.GoTo(tap.StateRunTestIdle); err != nil {
		return nil, err
	}
	return tdo, nil
}

func (s *Session) dispatch(ir bool, tms, tdi []byte, bits int) ([]byte, error) {
	if ir {
		return s.adapter.ShiftIR(tms, tdi, bits)
	}
	return s.adapter.ShiftDR(tms, tdi, bits)
}

// ReadIDCodes resets the chain and reads count 32-bit IDCODE registers,
// first the device nearest TDO. Devices in BYPASS after reset shift a single
// 0 and will misalign the following codes; callers can check Valid.
func ReadIDCodes(adapter Adapter, count int) ([]uint32, error) {
	if count <= 0 {
		return nil, fmt.Errorf("jtag: device count must be positive")
	}
	s := NewSession(adapter)
	if err := s.Reset(true); err != nil {
		return nil, err
	}
	tdo, err := s.ShiftDR(nil, 32*count)
	if err != nil {
		return nil, err
	}
	bits := tap.UnpackBits(tdo, 32*count)
	out := make([]uint32, count)
	for i := range out {
		for j, b := range bits[32*i : 32*i+32] {
			if b {
				out[i] |= 1 << j
			}
		}
	}
	return out, nil
}
