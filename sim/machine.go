// Package sim executes the flat IR against a deterministic machine-state
// model, accounting cycles, joules, and per-component temperature for
// every instruction. A Machine is exclusively owned by one run: created
// fresh, mutated only by its own fetch-execute loop, and returned with
// the final state.
package sim

import (
	"fmt"

	"lukechampine.com/blake3"

	"github.com/HamidrezaReyhani/CRZ64I/config"
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/ir"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

// VLanes is the lane count of the vector registers.
const VLanes = 8

// maxCallDepth bounds the CALL stack.
const maxCallDepth = 1024

// Status describes how a run ended.
type Status uint8

const (
	// StatusHalted is normal termination via HALT or a top-frame RET.
	StatusHalted Status = iota
	// StatusBudgetExceeded means the configured step budget ran out.
	StatusBudgetExceeded
	// StatusFaulted is a fatal runtime fault; the result carries the
	// partial state accumulated up to the fault.
	StatusFaulted
)

func (s Status) String() string {
	switch s {
	case StatusHalted:
		return "halted"
	case StatusBudgetExceeded:
		return "budget exceeded"
	case StatusFaulted:
		return "faulted"
	default:
		return "invalid"
	}
}

// Fault is a fatal runtime fault: out-of-bounds access, unknown opcode,
// arithmetic fault, or sandbox violation. Execution terminates
// immediately; no partial register or memory update is visible for the
// faulting instruction.
type Fault struct {
	PC  int
	Op  isa.Op
	Loc diag.Loc
	Msg string
}

func (f *Fault) Error() string {
	if f.Loc.IsZero() {
		return fmt.Sprintf("fault at pc=%d (%v): %s", f.PC, f.Op, f.Msg)
	}
	return fmt.Sprintf("fault at pc=%d (%v, source %v): %s", f.PC, f.Op, f.Loc, f.Msg)
}

// Flags are the condition bits updated by writes to general registers.
type Flags struct {
	Z bool // last written value was zero
	N bool // last written value was negative
}

// ExtHandler executes an EXT record. The handler may mutate the machine;
// a returned error becomes a fatal fault.
type ExtHandler func(m *Machine, args []ir.Operand) error

// Machine is the full mutable execution state.
type Machine struct {
	Regs  [32]int64
	VRegs [16][VLanes]int64
	// Mem is sparse so correctness never depends on preallocated size.
	Mem   map[int64]int64
	PC    int
	Flags Flags

	Cycles      uint64
	Energy      float64
	WallSeconds float64
	Steps       uint64

	// Thermal maps component name to temperature, degrees C.
	Thermal map[string]float64
	// Hints is last-write-wins: a read always sees the most recent write.
	Hints    map[string]string
	OpCounts map[string]uint64
	// Profiles maps profiling tags to cycles spent between
	// PROFILE_START and PROFILE_STOP.
	Profiles map[string]uint64
	// IOLog records sandboxed WRITE_IO values in order.
	IOLog []int64
	// Input feeds READ_IO; an empty queue reads zero.
	Input []int64

	cfg         config.Config
	callStack   []int
	locks       map[int64]bool
	hasher      *blake3.Hasher
	ext         ExtHandler
	profOpen    map[string]uint64 // tag -> cycles at PROFILE_START
	fault       *Fault
	halted      bool
}

// New creates a fresh machine governed by cfg. cfg is assumed normalized.
func New(cfg config.Config) *Machine {
	return &Machine{
		Mem:      map[int64]int64{},
		Thermal:  map[string]float64{},
		Hints:    map[string]string{},
		OpCounts: map[string]uint64{},
		Profiles: map[string]uint64{},
		cfg:      cfg,
		locks:    map[int64]bool{},
		profOpen: map[string]uint64{},
	}
}

// RegisterExt installs the extension hook dispatched by the EXT opcode.
func (m *Machine) RegisterExt(h ExtHandler) {
	m.ext = h
}

// Result is the run report handed to the report sink.
type Result struct {
	Status      Status             `json:"status"`
	Cycles      uint64             `json:"cycles"`
	Energy      float64            `json:"energy"`
	WallSeconds float64            `json:"wallSeconds"`
	Steps       uint64             `json:"steps"`
	Thermal     map[string]float64 `json:"thermal"`
	Hints       map[string]string  `json:"hints"`
	OpCounts    map[string]uint64  `json:"opCounts"`
	Profiles    map[string]uint64  `json:"profiles,omitempty"`
	Fault       *Fault             `json:"fault,omitempty"`
}

// MaxTemp returns the hottest component temperature, or the ambient
// temperature when nothing has executed.
func (r Result) MaxTemp(ambient float64) float64 {
	max := ambient
	for _, t := range r.Thermal {
		if t > max {
			max = t
		}
	}
	return max
}

func (m *Machine) result() Result {
	status := StatusHalted
	switch {
	case m.fault != nil:
		status = StatusFaulted
	case !m.halted:
		status = StatusBudgetExceeded
	}
	return Result{
		Status:      status,
		Cycles:      m.Cycles,
		Energy:      m.Energy,
		WallSeconds: m.WallSeconds,
		Steps:       m.Steps,
		Thermal:     m.Thermal,
		Hints:       m.Hints,
		OpCounts:    m.OpCounts,
		Profiles:    m.Profiles,
		Fault:       m.fault,
	}
}

// failf latches a fatal fault at the current instruction.
func (m *Machine) failf(rec ir.Record, format string, args ...any) {
	if m.fault == nil {
		m.fault = &Fault{PC: m.PC, Op: rec.Op, Loc: rec.Loc, Msg: fmt.Sprintf(format, args...)}
	}
}

// lowPowerScale discounts per-op energy while the "low" power mode hint
// is active.
const lowPowerScale = 0.9

// account performs the uniform per-instruction cost step: cycles from
// the override or registry, energy scaled by the configured unit, wall
// time from the clock rate, then the thermal update for the unit that
// executed.
func (m *Machine) account(rec ir.Record, info isa.Info) {
	latency := info.Latency
	energy := info.Energy
	if rec.Cost != nil {
		latency = rec.Cost.Latency
		energy = rec.Cost.Energy
	}
	joules := energy * m.cfg.EnergyUnit
	if m.Hints["power"] == "low" {
		joules *= lowPowerScale
	}
	m.Cycles += uint64(latency)
	m.Energy += joules
	dt := float64(latency) / m.cfg.ClockHz
	m.WallSeconds += dt
	m.heat(info.Unit.String(), joules, dt)
	m.OpCounts[info.Name]++
}

// coolPolicyScale halves the effective thermal resistance while the
// "cool" thermal policy hint is active, strengthening passive cooling.
const coolPolicyScale = 0.5

// heat applies first-order heating and passive cooling to one component:
// dT = (P - (T-ambient)/R) * dt/C. Not a physical PDE solve.
func (m *Machine) heat(component string, joules, dt float64) {
	if dt <= 0 {
		return
	}
	th := m.cfg.Thermal
	cur, ok := m.Thermal[component]
	if !ok {
		cur = th.BaseTemp
	}
	resistance := th.ThermalResistance
	if m.Hints["thermal_policy"] == "cool" {
		resistance *= coolPolicyScale
	}
	power := joules / dt
	dT := (power - (cur-th.BaseTemp)/resistance) * (dt / th.HeatCapacity)
	m.Thermal[component] = cur + dT
}

// setFlags updates the condition bits after a general-register write.
func (m *Machine) setFlags(v int64) {
	m.Flags.Z = v == 0
	m.Flags.N = v < 0
}

// checkAddr validates one address against the configured bounds.
func (m *Machine) checkAddr(rec ir.Record, addr int64) bool {
	if addr < 0 {
		m.failf(rec, "memory access out of bounds: negative address %d", addr)
		return false
	}
	if limit := m.cfg.MemoryLimit; limit > 0 && addr >= limit {
		m.failf(rec, "memory access out of bounds: address %d >= limit %d", addr, limit)
		return false
	}
	return true
}
