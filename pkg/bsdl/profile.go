package bsdl

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Profile is the part of a BSDL description a TAP simulation needs.
type Profile struct {
	Entity            string
	InstructionLength int
	// IDCode is IDCODE_REGISTER with wildcard bits read as 0; IDCodeMask has
	// a 1 for every bit the file pins down. Both are zero when the device
	// declares no IDCODE register.
	IDCode     uint32
	IDCodeMask uint32
	// Instructions maps instruction names (upper case) to their first
	// opcode.
	Instructions map[string]uint32
}

// Opcode returns the opcode of the named instruction.
func (p *Profile) Opcode(name string) (uint32, bool) {
	op, ok := p.Instructions[strings.ToUpper(name)]
	return op, ok
}

// InstructionNames returns the instruction names in sorted order.
func (p *Profile) InstructionNames() []string {
	names := make([]string, 0, len(p.Instructions))
	for n := range p.Instructions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasIDCode reports whether the device has an IDCODE register and
// instruction.
func (p *Profile) HasIDCode() bool {
	_, ok := p.Instructions["IDCODE"]
	return ok && p.IDCodeMask != 0
}

// LoadProfile parses r and extracts its Profile.
func LoadProfile(name string, r io.Reader) (*Profile, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	f, err := p.Parse(name, r)
	if err != nil {
		return nil, err
	}
	return ProfileOf(f)
}

// LoadProfileFile parses the BSDL file at path.
func LoadProfileFile(path string) (*Profile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bsdl: %w", err)
	}
	defer file.Close()
	return LoadProfile(path, file)
}

// ProfileOf extracts the Profile of a parsed file.
func ProfileOf(f *File) (*Profile, error) {
	if f == nil || f.Entity == nil {
		return nil, fmt.Errorf("bsdl: no entity")
	}
	e := f.Entity
	prof := &Profile{Entity: e.Name, Instructions: map[string]uint32{}}

	attr := e.Attribute("INSTRUCTION_LENGTH")
	if attr == nil {
		return nil, fmt.Errorf("bsdl: %s: missing INSTRUCTION_LENGTH", e.Name)
	}
	n, ok := attr.Value.Int()
	if !ok || n <= 0 || n > 32 {
		return nil, fmt.Errorf("bsdl: %s: invalid INSTRUCTION_LENGTH", e.Name)
	}
	prof.InstructionLength = n

	if attr := e.Attribute("INSTRUCTION_OPCODE"); attr != nil {
		ops, err := parseOpcodes(attr.Value.Text(), n)
		if err != nil {
			return nil, fmt.Errorf("bsdl: %s: INSTRUCTION_OPCODE: %w", e.Name, err)
		}
		prof.Instructions = ops
	}

	if attr := e.Attribute("IDCODE_REGISTER"); attr != nil {
		bits := attr.Value.Text()
		v, mask, width, err := ParseBinary(bits)
		if err != nil {
			return nil, fmt.Errorf("bsdl: %s: IDCODE_REGISTER: %w", e.Name, err)
		}
		if width != 32 {
			return nil, fmt.Errorf("bsdl: %s: IDCODE_REGISTER has %d bits, want 32", e.Name, width)
		}
		prof.IDCode, prof.IDCodeMask = v, mask
	}
	return prof, nil
}

// parseOpcodes reads "BYPASS (11111), IDCODE (00001), SAMPLE (00010, 00011)".
// Only the first opcode of each instruction is kept.
func parseOpcodes(s string, width int) (map[string]uint32, error) {
	ops := map[string]uint32{}
	rest := s
	for {
		rest = strings.TrimLeft(rest, " \t\r\n,")
		if rest == "" {
			return ops, nil
		}
		open := strings.IndexByte(rest, '(')
		closing := strings.IndexByte(rest, ')')
		if open <= 0 || closing < open {
			return nil, fmt.Errorf("malformed entry %q", rest)
		}
		name := strings.ToUpper(strings.TrimSpace(rest[:open]))
		first, _, _ := strings.Cut(rest[open+1:closing], ",")
		v, mask, n, err := ParseBinary(first)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if n != width || mask != uint32(1<<n-1) {
			return nil, fmt.Errorf("%s: opcode %q is not %d fixed bits", name, strings.TrimSpace(first), width)
		}
		if _, dup := ops[name]; !dup {
			ops[name] = v
		}
		rest = rest[closing+1:]
	}
}

// ParseBinary converts a BSDL bit pattern, MSB first, into a value and a mask
// of the fixed bits. 'X' marks a don't-care bit; spaces and underscores are
// ignored.
func ParseBinary(s string) (value, mask uint32, width int, err error) {
	for _, ch := range s {
		switch ch {
		case '0', '1', 'x', 'X':
		case ' ', '\t', '_', '\r', '\n':
			continue
		default:
			return 0, 0, 0, fmt.Errorf("invalid bit %q in %q", ch, s)
		}
		if width == 32 {
			return 0, 0, 0, fmt.Errorf("pattern %q wider than 32 bits", s)
		}
		width++
		value <<= 1
		mask <<= 1
		switch ch {
		case '1':
			value |= 1
			mask |= 1
		case '0':
			mask |= 1
		}
	}
	if width == 0 {
		return 0, 0, 0, fmt.Errorf("empty bit pattern")
	}
	return value, mask, width, nil
}
