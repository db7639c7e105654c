package jtag

import "fmt"

// Clocked is a simulated scan chain an adapter can drive bit by bit.
// *target.Chain implements it.
type Clocked interface {
	Clock(tms, tdi bool)
	TDO() bool
	Reset()
}

// ShiftRegion identifies whether a shift operation targets the instruction or
// data register.
type ShiftRegion uint8

const (
	ShiftRegionIR ShiftRegion = iota
	ShiftRegionDR
)

// ShiftOp records one shift request.
type ShiftOp struct {
	Region ShiftRegion
	TMS    []byte
	TDI    []byte
	Bits   int
}

// SimAdapter drives an in-process chain directly, without a socket. It
// produces the same TDO a remote-bitbang client would see for the same
// chain.
type SimAdapter struct {
	chain   Clocked
	speedHz int

	lastShift ShiftOp
	resets    int
	hardReset int
}

// NewSimAdapter wraps chain.
func NewSimAdapter(chain Clocked) *SimAdapter {
	return &SimAdapter{chain: chain}
}

// LastShift returns a copy of the most recent shift request.
func (s *SimAdapter) LastShift() ShiftOp {
	return ShiftOp{
		Region: s.lastShift.Region,
		TMS:    append([]byte(nil), s.lastShift.TMS...),
		TDI:    append([]byte(nil), s.lastShift.TDI...),
		Bits:   s.lastShift.Bits,
	}
}

// ResetCounts reports how many resets were requested and how many of them
// were hard.
func (s *SimAdapter) ResetCounts() (total, hard int) {
	return s.resets, s.hardReset
}

func (s *SimAdapter) Info() (AdapterInfo, error) {
	return AdapterInfo{Name: "simulator", Transport: "sim", SupportsTRST: true, MaxFrequency: s.speedHz}, nil
}

func (s *SimAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionIR, tms, tdi, bits)
}

func (s *SimAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionDR, tms, tdi, bits)
}

func (s *SimAdapter) ResetTAP(hard bool) error {
	s.resets++
	if hard {
		s.hardReset++
		s.chain.Reset()
	}
	for i := 0; i < 5; i++ {
		s.chain.Clock(true, false)
	}
	return nil
}

func (s *SimAdapter) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	s.speedHz = hz
	return nil
}

func (s *SimAdapter) shift(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error) {
	n, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	s.lastShift = ShiftOp{
		Region: region,
		TMS:    append([]byte(nil), tms...),
		TDI:    append([]byte(nil), tdi...),
		Bits:   bits,
	}

	tdo := make([]byte, n)
	for i := 0; i < bits; i++ {
		if s.chain.TDO() {
			tdo[i/8] |= 1 << (uint(i) % 8)
		}
		s.chain.Clock(bitAt(tms, i), bitAt(tdi, i))
	}
	return tdo, nil
}
