package target

import (
	"fmt"

	"github.com/OpenTraceLab/rbbsim/pkg/bsdl"
)

// DeviceFromProfile describes a simulated device from a BSDL profile. Don't
// care bits of IDCODE_REGISTER read as 0.
func DeviceFromProfile(p *bsdl.Profile) (Device, error) {
	d := Device{Name: p.Entity, IRLength: p.InstructionLength}
	if p.HasIDCode() {
		op, _ := p.Opcode("IDCODE")
		if op == 0 {
			return Device{}, fmt.Errorf("target: %s: IDCODE opcode 0 is not supported", p.Entity)
		}
		d.IDCode = p.IDCode | 1
		d.IDCodeOpcode = op
	}
	if err := d.Validate(); err != nil {
		return Device{}, err
	}
	return d, nil
}
