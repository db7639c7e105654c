// Package target simulates a chain of JTAG devices behind the four wires a
// remote-bitbang bridge drives. Each device implements the mandatory IEEE
// 1149.1 registers: an instruction register, BYPASS and, optionally, IDCODE.
//
// Devices are ordered from TDO to TDI: Devices[0] is the one whose TDO is the
// chain's TDO, so its IDCODE is the first read out after reset.
package target

import (
	"fmt"

	"github.com/OpenTraceLab/rbbsim/pkg/rbb"
	"github.com/OpenTraceLab/rbbsim/pkg/tap"
)

// MaxIRLength bounds the instruction register width a simulated device may
// declare.
const MaxIRLength = 32

// Device describes one simulated TAP.
type Device struct {
	Name string
	// IDCode is captured by the IDCODE instruction. Zero means the device
	// has no IDCODE register and resets into BYPASS.
	IDCode uint32
	// IRLength is the instruction register width, 2..MaxIRLength.
	IRLength int
	// IDCodeOpcode selects IDCODE. Zero defaults to 1.
	IDCodeOpcode uint32
}

// Validate checks the device description.
func (d Device) Validate() error {
	if d.IRLength < 2 || d.IRLength > MaxIRLength {
		return fmt.Errorf("target: device %q: IR length %d out of range 2..%d", d.Name, d.IRLength, MaxIRLength)
	}
	if d.IDCode != 0 && d.IDCode&1 == 0 {
		return fmt.Errorf("target: device %q: IDCODE 0x%08X must have bit 0 set", d.Name, d.IDCode)
	}
	if d.opcode() == d.bypass() {
		return fmt.Errorf("target: device %q: IDCODE opcode collides with BYPASS", d.Name)
	}
	if d.opcode() > d.bypass() {
		return fmt.Errorf("target: device %q: IDCODE opcode 0x%X does not fit in %d bits", d.Name, d.opcode(), d.IRLength)
	}
	return nil
}

func (d Device) opcode() uint32 {
	if d.IDCodeOpcode == 0 {
		return 1
	}
	return d.IDCodeOpcode
}

func (d Device) bypass() uint32 {
	return uint32(1)<<d.IRLength - 1
}

// tapDevice is a device plus its registers.
type tapDevice struct {
	Device
	instruction uint32
	ir          uint32 // instruction shift register
	dr          uint32 // selected data register (IDCODE or BYPASS)
	drLen       int
}

func (d *tapDevice) reset() {
	if d.IDCode != 0 {
		d.instruction = d.opcode()
	} else {
		d.instruction = d.bypass()
	}
}

func (d *tapDevice) idcodeSelected() bool {
	return d.IDCode != 0 && d.instruction == d.opcode()
}

func (d *tapDevice) capture(state tap.State) {
	switch state {
	case tap.StateCaptureIR:
		d.ir = 0b01
	case tap.StateCaptureDR:
		if d.idcodeSelected() {
			d.dr, d.drLen = d.IDCode, 32
		} else {
			d.dr, d.drLen = 0, 1
		}
	}
}

// shift moves in into the register's MSB and returns the bit that fell out of
// the LSB.
func (d *tapDevice) shift(state tap.State, in bool) bool {
	var reg *uint32
	var width int
	if state == tap.StateShiftIR {
		reg, width = &d.ir, d.IRLength
	} else {
		reg, width = &d.dr, d.drLen
	}
	out := *reg&1 != 0
	*reg >>= 1
	if in {
		*reg |= 1 << (width - 1)
	}
	return out
}

func (d *tapDevice) lsb(state tap.State) bool {
	if state == tap.StateShiftIR {
		return d.ir&1 != 0
	}
	return d.dr&1 != 0
}

// Chain is a daisy chain of simulated devices sharing TCK, TMS and TRST.
// It is driven once per simulation tick through Apply.
type Chain struct {
	devices []*tapDevice
	fsm     *tap.StateMachine
	lastTCK bool
	edges   uint64
}

// NewChain builds a chain in Test-Logic-Reset.
func NewChain(devices ...Device) (*Chain, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("target: empty chain")
	}
	c := &Chain{fsm: tap.NewStateMachine()}
	for _, d := range devices {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		td := &tapDevice{Device: d}
		td.reset()
		c.devices = append(c.devices, td)
	}
	return c, nil
}

// Len returns the number of devices.
func (c *Chain) Len() int {
	return len(c.devices)
}

// State returns the TAP state shared by every device.
func (c *Chain) State() tap.State {
	return c.fsm.State()
}

// Instruction returns the active instruction of device i.
func (c *Chain) Instruction(i int) uint32 {
	return c.devices[i].instruction
}

// Edges returns the number of TCK rising edges seen.
func (c *Chain) Edges() uint64 {
	return c.edges
}

// TDO is the level on the chain's TDO pin: the LSB of the first device's
// active shift register in Shift-IR or Shift-DR, high otherwise.
func (c *Chain) TDO() bool {
	s := c.fsm.State()
	if !s.IsShift() {
		return true
	}
	return c.devices[0].lsb(s)
}

// Apply drives the chain with the pin levels of one tick. A TCK rising edge
// clocks the devices; TRSTn low holds them in Test-Logic-Reset.
func (c *Chain) Apply(p rbb.Pins) {
	rising := p.TCK && !c.lastTCK
	c.lastTCK = p.TCK

	if !p.TRSTn {
		c.Reset()
		return
	}
	if rising {
		c.Clock(p.TMS, p.TDI)
	}
}

// Reset is an asynchronous TAP reset.
func (c *Chain) Reset() {
	c.fsm.Force(tap.StateTestLogicReset)
	for _, d := range c.devices {
		d.reset()
	}
}

// Clock performs one TCK rising edge with the given TMS and TDI levels.
func (c *Chain) Clock(tms, tdi bool) {
	c.edges++
	s := c.fsm.State()

	switch s {
	case tap.StateCaptureIR, tap.StateCaptureDR:
		for _, d := range c.devices {
			d.capture(s)
		}
	case tap.StateShiftIR, tap.StateShiftDR:
		// TDI enters the last device; each device feeds the one before it.
		in := tdi
		for i := len(c.devices) - 1; i >= 0; i-- {
			in = c.devices[i].shift(s, in)
		}
	case tap.StateUpdateIR:
		for _, d := range c.devices {
			d.instruction = d.ir & d.bypass()
		}
	}

	if c.fsm.Clock(tms) == tap.StateTestLogicReset {
		for _, d := range c.devices {
			d.reset()
		}
	}
}
