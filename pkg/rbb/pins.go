package rbb

import "fmt"

// Pins is the JTAG signal state owned by the protocol engine. TCK, TMS, TDI
// and TRSTn are outputs towards the simulated design; TDO is the most recent
// value supplied by the simulation.
type Pins struct {
	TCK   bool
	TMS   bool
	TDI   bool
	TRSTn bool
	TDO   bool
}

// DefaultPins returns the idle state used at startup and after every
// disconnect: TCK low, TMS and TDI high, reset deasserted.
func DefaultPins() Pins {
	return Pins{TCK: false, TMS: true, TDI: true, TRSTn: true}
}

// setPattern applies a 3-bit pattern as sent by the '0'..'7' commands.
func (p *Pins) setPattern(v byte) {
	p.TCK = v&0x4 != 0
	p.TMS = v&0x2 != 0
	p.TDI = v&0x1 != 0
}

// Pattern returns TCK/TMS/TDI packed the way the wire protocol encodes them.
func (p Pins) Pattern() byte {
	var v byte
	if p.TCK {
		v |= 0x4
	}
	if p.TMS {
		v |= 0x2
	}
	if p.TDI {
		v |= 0x1
	}
	return v
}

// Outputs returns the four driven signals as 0/1 values in the order
// TCK, TMS, TDI, TRSTn.
func (p Pins) Outputs() (tck, tms, tdi, trstn uint8) {
	return bit(p.TCK), bit(p.TMS), bit(p.TDI), bit(p.TRSTn)
}

func (p Pins) String() string {
	return fmt.Sprintf("tck=%d tms=%d tdi=%d trstn=%d tdo=%d",
		bit(p.TCK), bit(p.TMS), bit(p.TDI), bit(p.TRSTn), bit(p.TDO))
}

func bit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
