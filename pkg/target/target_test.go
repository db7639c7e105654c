package target

import (
	"testing"

	"github.com/OpenTraceLab/rbbsim/pkg/rbb"
	"github.com/OpenTraceLab/rbbsim/pkg/tap"
)

func mustChain(t *testing.T, devices ...Device) *Chain {
	t.Helper()
	c, err := NewChain(devices...)
	if err != nil {
		t.Fatalf("NewChain returned error: %v", err)
	}
	return c
}

func walk(c *Chain, tms ...bool) {
	for _, bit := range tms {
		c.Clock(bit, false)
	}
}

// scan shifts bits through the current Shift state, leaving it on the last
// bit, and returns what came out of TDO. It then goes back to Run-Test/Idle.
func scan(c *Chain, bits []bool) []bool {
	out := make([]bool, len(bits))
	for i, bit := range bits {
		out[i] = c.TDO()
		c.Clock(i == len(bits)-1, bit)
	}
	walk(c, true, false)
	return out
}

func toUint32(bits []bool) uint32 {
	var v uint32
	for i, b := range bits {
		if b {
			v |= 1 << i
		}
	}
	return v
}

func TestIDCodeAfterReset(t *testing.T) {
	c := mustChain(t, Device{Name: "cpu", IDCode: 0x4BA00477, IRLength: 4})

	walk(c, false, true, false, false)
	if c.State() != tap.StateShiftDR {
		t.Fatalf("State() = %s, want ShiftDR", c.State())
	}
	got := toUint32(scan(c, make([]bool, 32)))
	if got != 0x4BA00477 {
		t.Fatalf("IDCODE = 0x%08X, want 0x4BA00477", got)
	}
	if c.State() != tap.StateRunTestIdle {
		t.Fatalf("State() = %s, want RunTestIdle", c.State())
	}
}

func TestTwoDeviceChainReadsFirstDeviceFirst(t *testing.T) {
	c := mustChain(t,
		Device{Name: "a", IDCode: 0x10000001, IRLength: 4},
		Device{Name: "b", IDCode: 0x20000003, IRLength: 5},
	)
	walk(c, false, true, false, false)
	out := scan(c, make([]bool, 64))
	if got := toUint32(out[:32]); got != 0x10000001 {
		t.Fatalf("first IDCODE = 0x%08X", got)
	}
	if got := toUint32(out[32:]); got != 0x20000003 {
		t.Fatalf("second IDCODE = 0x%08X", got)
	}
}

func TestBypassDelaysOneBitPerDevice(t *testing.T) {
	c := mustChain(t,
		Device{Name: "a", IDCode: 0x10000001, IRLength: 4},
		Device{Name: "b", IDCode: 0x20000003, IRLength: 5},
	)
	walk(c, false, true, true, false, false)
	if c.State() != tap.StateShiftIR {
		t.Fatalf("State() = %s, want ShiftIR", c.State())
	}

	ones := make([]bool, 9)
	for i := range ones {
		ones[i] = true
	}
	captured := scan(c, ones)
	// Each IR captures ...01; device a's four bits come out first.
	want := []bool{true, false, false, false, true, false, false, false, false}
	for i := range want {
		if captured[i] != want[i] {
			t.Fatalf("IR capture bit %d = %v, want %v", i, captured[i], want[i])
		}
	}
	if c.Instruction(0) != 0xF || c.Instruction(1) != 0x1F {
		t.Fatalf("instructions = %x/%x, want BYPASS", c.Instruction(0), c.Instruction(1))
	}

	walk(c, true, false, false)
	out := scan(c, []bool{true, false, true, true, false, false})
	wantDR := []bool{false, false, true, false, true, true}
	for i := range wantDR {
		if out[i] != wantDR[i] {
			t.Fatalf("bypass bit %d = %v, want %v", i, out[i], wantDR[i])
		}
	}
}

func TestDeviceWithoutIDCodeResetsIntoBypass(t *testing.T) {
	c := mustChain(t,
		Device{Name: "plain", IRLength: 3},
		Device{Name: "cpu", IDCode: 0x0000A0A1, IRLength: 4},
	)
	walk(c, false, true, false, false)
	out := scan(c, make([]bool, 33))
	if out[0] {
		t.Fatalf("bypass register should capture 0")
	}
	if got := toUint32(out[1:]); got != 0x0000A0A1 {
		t.Fatalf("IDCODE behind bypass = 0x%08X", got)
	}
}

func TestCustomIDCodeOpcodeAndTMSReset(t *testing.T) {
	c := mustChain(t, Device{Name: "dtm", IDCode: 0x20000913, IRLength: 5, IDCodeOpcode: 0x02})
	if c.Instruction(0) != 0x02 {
		t.Fatalf("instruction after reset = %#x, want 0x02", c.Instruction(0))
	}

	walk(c, false, true, true, false, false)
	scan(c, []bool{true, true, true, true, true})
	if c.Instruction(0) != 0x1F {
		t.Fatalf("instruction = %#x, want BYPASS", c.Instruction(0))
	}

	walk(c, true, true, true, true, true)
	if c.State() != tap.StateTestLogicReset || c.Instruction(0) != 0x02 {
		t.Fatalf("TMS reset left %s / %#x", c.State(), c.Instruction(0))
	}
}

func TestApplyClocksOnRisingEdgeOnly(t *testing.T) {
	c := mustChain(t, Device{Name: "cpu", IDCode: 0x4BA00477, IRLength: 4})

	low := rbb.Pins{TMS: false, TRSTn: true}
	high := rbb.Pins{TCK: true, TMS: false, TRSTn: true}

	c.Apply(high)
	c.Apply(high)
	c.Apply(high)
	if c.Edges() != 1 || c.State() != tap.StateRunTestIdle {
		t.Fatalf("edges = %d state = %s, want one edge into RunTestIdle", c.Edges(), c.State())
	}
	c.Apply(low)
	c.Apply(high)
	if c.Edges() != 2 {
		t.Fatalf("edges = %d, want 2", c.Edges())
	}
}

func TestTRSTHoldsChainInReset(t *testing.T) {
	c := mustChain(t, Device{Name: "cpu", IDCode: 0x4BA00477, IRLength: 4})
	walk(c, false, true, true, false, false)
	scan(c, []bool{true, true, true, true})

	c.Apply(rbb.Pins{TRSTn: false})
	c.Apply(rbb.Pins{TCK: true, TRSTn: false})
	if c.State() != tap.StateTestLogicReset {
		t.Fatalf("State() = %s, want TestLogicReset", c.State())
	}
	if c.Instruction(0) != 1 {
		t.Fatalf("instruction = %#x, want IDCODE", c.Instruction(0))
	}
	if !c.TDO() {
		t.Fatalf("TDO should idle high outside shift states")
	}
}

func TestNewChainValidation(t *testing.T) {
	bad := []Device{
		{Name: "short", IRLength: 1},
		{Name: "long", IRLength: 33},
		{Name: "even", IDCode: 0x10, IRLength: 4},
		{Name: "collide", IDCode: 0x11, IRLength: 2, IDCodeOpcode: 3},
		{Name: "wide", IDCode: 0x11, IRLength: 2, IDCodeOpcode: 8},
	}
	for _, d := range bad {
		if _, err := NewChain(d); err == nil {
			t.Fatalf("NewChain(%s) returned nil error", d.Name)
		}
	}
	if _, err := NewChain(); err == nil {
		t.Fatalf("empty chain accepted")
	}
}
