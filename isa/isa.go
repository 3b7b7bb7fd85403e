// Package isa defines the CRZ64I instruction set: 64 opcodes, each with
// an operand format, operand count, base latency in cycles, and base
// energy in joules. The table is pure data; every compiler stage and the
// simulator consult it through Lookup and Op.Info.
package isa

// OpBits is the number of bits needed to encode an Op.
const OpBits = 8

// Op is a CRZ64I opcode.
type Op uint8

// Opcode space, grouped by unit. Each section holds up to 16 opcodes.
const (
	Unknown Op = iota

	// ALU
	ADD
	SUB
	MUL
	DIV
	AND
	OR
	XOR
	SHL
	SHR
	POPCNT
	MOV
	XCHG
)

const (
	// Memory
	LOAD Op = 1*section + iota
	STORE
	LOADI
	VLOAD
	VSTORE
)

const (
	// Vector
	VADD Op = 2*section + iota
	VSUB
	VMUL
	// VDOT32 (vd, vs1, vs2): vd lane 0 receives the dot product of vs1 and vs2.
	VDOT32
	VSHL
	VSHR
	// VFMA (vd, vs1, vs2): vd[i] += vs1[i] * vs2[i] per lane.
	VFMA
	// VREDUCE_SUM (rd, vs): rd receives the sum of all lanes of vs.
	VREDUCE_SUM
)

const (
	// Floating point, operating on the float64 bit pattern of a register.
	FADD Op = 3*section + iota
	FSUB
	FMUL
	// FMA (rd, r1, r2, r3): rd = r1*r2 + r3.
	FMA
)

const (
	// Control
	NOP Op = 4*section + iota
	JMP
	JZ
	JNZ
	// BR_IF (cond, a, b, target): branch to target when `a cond b` holds.
	BR_IF
	CALL
	RET
	HALT
)

const (
	// Concurrency-flavored ops. These are deterministic transitions on the
	// single machine state; no host parallelism is involved.
	YIELD Op = 5*section + iota
	LOCK
	UNLOCK
	// CMPXCHG (rd, [m], expected, new): rd receives the old value; the cell
	// is replaced only when it equals expected.
	CMPXCHG
	FENCE
	ATOMIC_INC
)

const (
	// Reversible primitives
	// SAVE_DELTA (tmp, target): snapshot target's value into tmp.
	SAVE_DELTA Op = 6*section + iota
	// RESTORE_DELTA (target, tmp): reapply the snapshot, consuming it.
	RESTORE_DELTA
	// REV_ADD (rd, rs): rd += rs. Invertible, erases nothing.
	REV_ADD
	// REV_SWAP (r1, r2): exchange. Invertible, erases nothing.
	REV_SWAP
)

const (
	// Thermal / power hints
	SET_PWR_MODE Op = 7*section + iota
	SET_THERM_POLICY
	SLEEP
)

const (
	// Crypto / hash
	CRC32 Op = 8*section + iota
	HASH_INIT
	HASH_UPDATE
	HASH_FINAL
)

const (
	// IO / DMA, gated by the simulator sandbox.
	WRITE_IO Op = 9*section + iota
	READ_IO
	DMA_START
)

const (
	// Profiling
	PROFILE_START Op = 10*section + iota
	PROFILE_STOP
)

const (
	// Fused forms produced by the fusion pass.
	// FUSED_LOAD_ADD (rdLoad, rdAdd, [m], x): rdLoad = mem[m]; rdAdd = rdLoad + x.
	// Carries both destinations of the unfused LOAD; ADD pair.
	FUSED_LOAD_ADD Op = 11*section + iota
	// FUSED_LOAD_ADD_LEGACY (rdAdd, [m], x) writes only rdAdd. The loaded
	// value is not materialized anywhere: this form is semantically lossy
	// and exists for backward compatibility only.
	FUSED_LOAD_ADD_LEGACY
	// FUSED_ADD_STORE (rd, a, b, [m]): rd = a + b; mem[m] = rd.
	FUSED_ADD_STORE
	// FUSED_LOAD_VDOT32 (rd, vd, [m], vs): rd = mem[m]; vd lane 0 = rd * sum(vs).
	FUSED_LOAD_VDOT32
)

const (
	// EXT dispatches to an extension hook registered with the simulator.
	EXT Op = 12 * section
)

const section = 1 << 4

// Format describes the operand shape of an instruction.
type Format uint8

const (
	FormatN Format = iota // no operands
	FormatR               // register operands
	FormatI               // register + immediate
	FormatM               // memory reference involved
	FormatV               // vector register operands
	FormatB               // branch (label target)
	FormatH               // hint (string or integer literal)
	FormatX               // extension-defined
)

// Unit names the machine component an opcode exercises. The simulator's
// thermal model keys hotspots by unit.
type Unit uint8

const (
	UnitALU Unit = iota
	UnitMEM
	UnitVEC
	UnitCTL
	UnitATOM
	UnitREV
	UnitTHERM
	UnitCRYPTO
	UnitIO
	UnitPROF
	UnitEXT
)

func (u Unit) String() string {
	switch u {
	case UnitALU:
		return "alu"
	case UnitMEM:
		return "mem"
	case UnitVEC:
		return "vec"
	case UnitCTL:
		return "ctl"
	case UnitATOM:
		return "atomic"
	case UnitREV:
		return "rev"
	case UnitTHERM:
		return "thermal"
	case UnitCRYPTO:
		return "crypto"
	case UnitIO:
		return "io"
	case UnitPROF:
		return "prof"
	case UnitEXT:
		return "ext"
	default:
		return "unknown"
	}
}

// Info is the registry entry for an opcode.
type Info struct {
	Name     string  `json:"name"`
	Format   Format  `json:"format"`
	Operands int     `json:"operands"`
	Latency  uint32  `json:"latency"` // base cost in cycles
	Energy   float64 `json:"energy"`  // base cost in joules
	Unit     Unit    `json:"unit"`

	// WritesDest marks opcodes whose first operand is a written register.
	WritesDest bool `json:"writesDest"`
	// Unbounded marks opcodes with no static latency bound; they are
	// advisory-flagged inside #[realtime] functions.
	Unbounded bool `json:"unbounded"`
}

// CostOverride is a calibrated per-op cost attached by the
// energy-annotation pass, superseding the registry defaults.
type CostOverride struct {
	Energy  float64 `json:"energy" db:"energy"`
	Latency uint32  `json:"latency" db:"latency"`
}
