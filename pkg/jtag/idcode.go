package jtag

import "fmt"

// IDCodeInfo is a decoded IEEE 1149.1 IDCODE.
type IDCodeInfo struct {
	Raw          uint32
	Version      uint8  // [31:28]
	PartNumber   uint16 // [27:12]
	Manufacturer uint16 // [11:1], JEP106 bank (continuation count) and ID
	ManufName    string
}

// Valid reports whether bit 0 is set, as IEEE 1149.1 requires.
func (i IDCodeInfo) Valid() bool {
	return i.Raw&1 == 1
}

// Bank returns the JEP106 bank, counted from 1.
func (i IDCodeInfo) Bank() int {
	return int(i.Manufacturer>>7) + 1
}

// DecodeIDCode splits raw into its fields.
func DecodeIDCode(raw uint32) IDCodeInfo {
	mfg := uint16(raw>>1) & 0x7FF
	return IDCodeInfo{
		Raw:          raw,
		Version:      uint8(raw >> 28),
		PartNumber:   uint16(raw >> 12),
		Manufacturer: mfg,
		ManufName:    ManufacturerName(mfg),
	}
}

func (i IDCodeInfo) String() string {
	return fmt.Sprintf("0x%08X (Mfg: %s, Part: 0x%04X, Ver: %d)",
		i.Raw, i.ManufName, i.PartNumber, i.Version)
}

// jep106 holds the manufacturers most often met on simulated and FPGA
// targets, keyed by the 11-bit IDCODE manufacturer field.
var jep106 = map[uint16]string{
	0x009: "Intel",
	0x015: "NXP (Philips)",
	0x017: "Texas Instruments",
	0x01F: "Atmel",
	0x020: "STMicroelectronics",
	0x021: "Lattice",
	0x029: "Microchip",
	0x049: "Xilinx",
	0x06E: "Altera",
	0x23B: "ARM Ltd",
	0x272: "Tensilica",
	0x489: "SiFive",
}

// ManufacturerName returns the JEP106 name for an 11-bit manufacturer field,
// or "unknown".
func ManufacturerName(code uint16) string {
	if name, ok := jep106[code&0x7FF]; ok {
		return name
	}
	return "unknown"
}
