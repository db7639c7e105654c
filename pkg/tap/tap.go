// Package tap models the IEEE 1149.1 TAP controller. It is used on both sides
// of a remote-bitbang link: the client navigates with GoTo, the simulated
// target follows TMS with Clock.
package tap

import (
	"fmt"
)

// State represents one of the 16 defined IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates
)

var stateNames = [numStates]string{
	"TestLogicReset", "RunTestIdle",
	"SelectDRScan", "CaptureDR", "ShiftDR", "Exit1DR", "PauseDR", "Exit2DR", "UpdateDR",
	"SelectIRScan", "CaptureIR", "ShiftIR", "Exit1IR", "PauseIR", "Exit2IR", "UpdateIR",
}

func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Valid reports whether s is one of the 16 TAP states.
func (s State) Valid() bool {
	return s < numStates
}

// IsIR reports whether s belongs to the instruction-register column.
func (s State) IsIR() bool {
	return s >= StateSelectIRScan && s <= StateUpdateIR
}

// IsShift reports whether s is Shift-DR or Shift-IR.
func (s State) IsShift() bool {
	return s == StateShiftDR || s == StateShiftIR
}

// next[s][tms] is the state after one TCK rising edge.
var next = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

// NextState returns the state reached from current after one TCK rising edge
// with the given TMS level. It panics on an invalid state.
func NextState(current State, tms bool) State {
	if !current.Valid() {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	if tms {
		return next[current][1]
	}
	return next[current][0]
}

// Sequence is a TMS pattern together with the states it walks through.
// States has one more entry than TMS: the starting state comes first.
type Sequence struct {
	TMS    []bool
	States []State
}

// Len returns the number of TCK cycles in the sequence.
func (s Sequence) Len() int {
	return len(s.TMS)
}

// Final returns the state reached at the end of the sequence.
func (s Sequence) Final() State {
	return s.States[len(s.States)-1]
}

// Bytes packs the TMS bits LSB-first, the layout adapters take for ShiftIR
// and ShiftDR buffers.
func (s Sequence) Bytes() []byte {
	return PackBits(s.TMS)
}

// PackBits packs bits LSB-first into ceil(len/8) bytes.
func PackBits(bits []bool) []byte {
	if len(bits) == 0 {
		return nil
	}
	buf := make([]byte, (len(bits)+7)/8)
	for i, bit := range bits {
		if bit {
			buf[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return buf
}

// UnpackBits is the inverse of PackBits for the first n bits of buf.
func UnpackBits(buf []byte, n int) []bool {
	if n <= 0 {
		return nil
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = buf[i/8]&(1<<(uint(i)%8)) != 0
	}
	return out
}

// StateMachine tracks the TAP state locally. It performs no I/O.
type StateMachine struct {
	state State
}

// NewStateMachine creates a machine in Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the tracked state.
func (m *StateMachine) State() State {
	return m.state
}

// Clock advances one TCK cycle and returns the new state.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	return m.state
}

// Force sets the state without clocking, as an asynchronous TRST does.
func (m *StateMachine) Force(s State) {
	m.state = s
}

// Reset clocks five TMS=1 cycles, which reaches Test-Logic-Reset from any
// state.
func (m *StateMachine) Reset() Sequence {
	seq := Sequence{
		TMS:    []bool{true, true, true, true, true},
		States: []State{m.state},
	}
	for range seq.TMS {
		seq.States = append(seq.States, m.Clock(true))
	}
	return seq
}

// GoTo walks the shortest path to target and returns it.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	seq, err := Path(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	m.state = seq.Final()
	return seq, nil
}

// Path returns the shortest TMS sequence from one state to another, found by
// breadth-first search over the state diagram.
func Path(from, to State) (Sequence, error) {
	if !from.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid start state %d", from)
	}
	if !to.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid target state %d", to)
	}
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	var seen [numStates]bool
	var via [numStates]hop
	seen[from] = true

	queue := []State{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, bit := range [2]bool{false, true} {
			n := NextState(cur, bit)
			if seen[n] {
				continue
			}
			seen[n] = true
			via[n] = hop{prev: cur, tms: bit}
			if n == to {
				return unwind(from, to, via[:]), nil
			}
			queue = append(queue, n)
		}
	}
	return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}

// hop records how the search first reached a state.
type hop struct {
	prev State
	tms  bool
}

func unwind(from, to State, via []hop) Sequence {
	var rev []State
	for s := to; s != from; s = via[s].prev {
		rev = append(rev, s)
	}
	seq := Sequence{States: []State{from}}
	for i := len(rev) - 1; i >= 0; i-- {
		seq.TMS = append(seq.TMS, via[rev[i]].tms)
		seq.States = append(seq.States, rev[i])
	}
	return seq
}
