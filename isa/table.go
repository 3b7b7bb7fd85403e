package isa

// Energy figures are per-op joules for the default cost model; they are a
// configurable model, not a hardware measurement. The LOAD/ADD numbers
// match the calibrated defaults the energy-annotation pass falls back to.
var infos = func() (ret [1 << OpBits]Info) {
	m := map[Op]Info{
		ADD:    {Name: "ADD", Format: FormatR, Operands: 3, Latency: 1, Energy: 4.5e-8, Unit: UnitALU, WritesDest: true},
		SUB:    {Name: "SUB", Format: FormatR, Operands: 3, Latency: 1, Energy: 6e-8, Unit: UnitALU, WritesDest: true},
		MUL:    {Name: "MUL", Format: FormatR, Operands: 3, Latency: 3, Energy: 1.2e-6, Unit: UnitALU, WritesDest: true},
		DIV:    {Name: "DIV", Format: FormatR, Operands: 3, Latency: 10, Energy: 3.0e-6, Unit: UnitALU, WritesDest: true, Unbounded: true},
		AND:    {Name: "AND", Format: FormatR, Operands: 3, Latency: 1, Energy: 4e-8, Unit: UnitALU, WritesDest: true},
		OR:     {Name: "OR", Format: FormatR, Operands: 3, Latency: 1, Energy: 4e-8, Unit: UnitALU, WritesDest: true},
		XOR:    {Name: "XOR", Format: FormatR, Operands: 3, Latency: 1, Energy: 4e-8, Unit: UnitALU, WritesDest: true},
		SHL:    {Name: "SHL", Format: FormatR, Operands: 3, Latency: 1, Energy: 4e-8, Unit: UnitALU, WritesDest: true},
		SHR:    {Name: "SHR", Format: FormatR, Operands: 3, Latency: 1, Energy: 4e-8, Unit: UnitALU, WritesDest: true},
		POPCNT: {Name: "POPCNT", Format: FormatR, Operands: 2, Latency: 1, Energy: 4e-8, Unit: UnitALU, WritesDest: true},
		MOV:    {Name: "MOV", Format: FormatR, Operands: 2, Latency: 1, Energy: 3e-8, Unit: UnitALU, WritesDest: true},
		XCHG:   {Name: "XCHG", Format: FormatR, Operands: 2, Latency: 1, Energy: 5e-8, Unit: UnitALU},

		LOAD:   {Name: "LOAD", Format: FormatM, Operands: 2, Latency: 3, Energy: 4.0e-7, Unit: UnitMEM, WritesDest: true},
		STORE:  {Name: "STORE", Format: FormatM, Operands: 2, Latency: 3, Energy: 4.0e-7, Unit: UnitMEM},
		LOADI:  {Name: "LOADI", Format: FormatI, Operands: 2, Latency: 1, Energy: 3e-8, Unit: UnitMEM, WritesDest: true},
		VLOAD:  {Name: "VLOAD", Format: FormatM, Operands: 2, Latency: 6, Energy: 1.2e-6, Unit: UnitMEM, WritesDest: true},
		VSTORE: {Name: "VSTORE", Format: FormatM, Operands: 2, Latency: 6, Energy: 1.2e-6, Unit: UnitMEM},

		VADD:        {Name: "VADD", Format: FormatV, Operands: 3, Latency: 2, Energy: 8e-7, Unit: UnitVEC, WritesDest: true},
		VSUB:        {Name: "VSUB", Format: FormatV, Operands: 3, Latency: 2, Energy: 8e-7, Unit: UnitVEC, WritesDest: true},
		VMUL:        {Name: "VMUL", Format: FormatV, Operands: 3, Latency: 4, Energy: 1.6e-6, Unit: UnitVEC, WritesDest: true},
		VDOT32:      {Name: "VDOT32", Format: FormatV, Operands: 3, Latency: 4, Energy: 2.0e-6, Unit: UnitVEC, WritesDest: true},
		VSHL:        {Name: "VSHL", Format: FormatV, Operands: 3, Latency: 2, Energy: 8e-7, Unit: UnitVEC, WritesDest: true},
		VSHR:        {Name: "VSHR", Format: FormatV, Operands: 3, Latency: 2, Energy: 8e-7, Unit: UnitVEC, WritesDest: true},
		VFMA:        {Name: "VFMA", Format: FormatV, Operands: 3, Latency: 4, Energy: 1.8e-6, Unit: UnitVEC, WritesDest: true},
		VREDUCE_SUM: {Name: "VREDUCE_SUM", Format: FormatV, Operands: 2, Latency: 3, Energy: 1.0e-6, Unit: UnitVEC, WritesDest: true},

		FADD: {Name: "FADD", Format: FormatR, Operands: 3, Latency: 3, Energy: 3e-7, Unit: UnitALU, WritesDest: true},
		FSUB: {Name: "FSUB", Format: FormatR, Operands: 3, Latency: 3, Energy: 3e-7, Unit: UnitALU, WritesDest: true},
		FMUL: {Name: "FMUL", Format: FormatR, Operands: 3, Latency: 5, Energy: 9e-7, Unit: UnitALU, WritesDest: true},
		FMA:  {Name: "FMA", Format: FormatR, Operands: 4, Latency: 5, Energy: 1.0e-6, Unit: UnitALU, WritesDest: true},

		NOP:   {Name: "NOP", Format: FormatN, Operands: 0, Latency: 1, Energy: 1e-9, Unit: UnitCTL},
		JMP:   {Name: "JMP", Format: FormatB, Operands: 1, Latency: 1, Energy: 1e-8, Unit: UnitCTL},
		JZ:    {Name: "JZ", Format: FormatB, Operands: 2, Latency: 1, Energy: 1.5e-8, Unit: UnitCTL},
		JNZ:   {Name: "JNZ", Format: FormatB, Operands: 2, Latency: 1, Energy: 1.5e-8, Unit: UnitCTL},
		BR_IF: {Name: "BR_IF", Format: FormatB, Operands: 4, Latency: 2, Energy: 2.5e-7, Unit: UnitCTL},
		CALL:  {Name: "CALL", Format: FormatB, Operands: 1, Latency: 2, Energy: 5e-8, Unit: UnitCTL, Unbounded: true},
		RET:   {Name: "RET", Format: FormatN, Operands: 0, Latency: 2, Energy: 5e-8, Unit: UnitCTL},
		HALT:  {Name: "HALT", Format: FormatN, Operands: 0, Latency: 1, Energy: 1e-9, Unit: UnitCTL},

		YIELD:      {Name: "YIELD", Format: FormatN, Operands: 0, Latency: 1, Energy: 1e-8, Unit: UnitATOM, Unbounded: true},
		LOCK:       {Name: "LOCK", Format: FormatM, Operands: 1, Latency: 4, Energy: 2e-7, Unit: UnitATOM, Unbounded: true},
		UNLOCK:     {Name: "UNLOCK", Format: FormatM, Operands: 1, Latency: 2, Energy: 1e-7, Unit: UnitATOM},
		CMPXCHG:    {Name: "CMPXCHG", Format: FormatM, Operands: 4, Latency: 6, Energy: 6e-7, Unit: UnitATOM, WritesDest: true},
		FENCE:      {Name: "FENCE", Format: FormatN, Operands: 0, Latency: 3, Energy: 5e-8, Unit: UnitATOM},
		ATOMIC_INC: {Name: "ATOMIC_INC", Format: FormatM, Operands: 2, Latency: 5, Energy: 5e-7, Unit: UnitATOM, WritesDest: true},

		SAVE_DELTA:    {Name: "SAVE_DELTA", Format: FormatR, Operands: 2, Latency: 1, Energy: 5e-8, Unit: UnitREV, WritesDest: true},
		RESTORE_DELTA: {Name: "RESTORE_DELTA", Format: FormatR, Operands: 2, Latency: 1, Energy: 5e-8, Unit: UnitREV, WritesDest: true},
		REV_ADD:       {Name: "REV_ADD", Format: FormatR, Operands: 2, Latency: 1, Energy: 6e-8, Unit: UnitREV, WritesDest: true},
		REV_SWAP:      {Name: "REV_SWAP", Format: FormatR, Operands: 2, Latency: 1, Energy: 6e-8, Unit: UnitREV},

		SET_PWR_MODE:     {Name: "SET_PWR_MODE", Format: FormatH, Operands: 1, Latency: 1, Energy: 1e-9, Unit: UnitTHERM},
		SET_THERM_POLICY: {Name: "SET_THERM_POLICY", Format: FormatH, Operands: 1, Latency: 1, Energy: 1e-9, Unit: UnitTHERM},
		SLEEP:            {Name: "SLEEP", Format: FormatI, Operands: 1, Latency: 1, Energy: 1e-9, Unit: UnitTHERM, Unbounded: true},

		CRC32:       {Name: "CRC32", Format: FormatR, Operands: 2, Latency: 4, Energy: 3e-7, Unit: UnitCRYPTO, WritesDest: true},
		HASH_INIT:   {Name: "HASH_INIT", Format: FormatN, Operands: 0, Latency: 2, Energy: 2e-7, Unit: UnitCRYPTO},
		HASH_UPDATE: {Name: "HASH_UPDATE", Format: FormatR, Operands: 1, Latency: 8, Energy: 8e-7, Unit: UnitCRYPTO},
		HASH_FINAL:  {Name: "HASH_FINAL", Format: FormatR, Operands: 1, Latency: 8, Energy: 8e-7, Unit: UnitCRYPTO, WritesDest: true},

		WRITE_IO:  {Name: "WRITE_IO", Format: FormatR, Operands: 1, Latency: 20, Energy: 2e-6, Unit: UnitIO, Unbounded: true},
		READ_IO:   {Name: "READ_IO", Format: FormatR, Operands: 1, Latency: 20, Energy: 2e-6, Unit: UnitIO, WritesDest: true, Unbounded: true},
		DMA_START: {Name: "DMA_START", Format: FormatM, Operands: 3, Latency: 30, Energy: 4e-6, Unit: UnitIO, Unbounded: true},

		PROFILE_START: {Name: "PROFILE_START", Format: FormatH, Operands: 1, Latency: 1, Energy: 1e-9, Unit: UnitPROF},
		PROFILE_STOP:  {Name: "PROFILE_STOP", Format: FormatH, Operands: 1, Latency: 1, Energy: 1e-9, Unit: UnitPROF},

		FUSED_LOAD_ADD:        {Name: "FUSED_LOAD_ADD", Format: FormatM, Operands: 4, Latency: 2, Energy: 4.1e-7, Unit: UnitMEM, WritesDest: true},
		FUSED_LOAD_ADD_LEGACY: {Name: "FUSED_LOAD_ADD_LEGACY", Format: FormatM, Operands: 3, Latency: 2, Energy: 4.1e-7, Unit: UnitMEM, WritesDest: true},
		FUSED_ADD_STORE:       {Name: "FUSED_ADD_STORE", Format: FormatM, Operands: 4, Latency: 3, Energy: 4.5e-7, Unit: UnitMEM, WritesDest: true},
		FUSED_LOAD_VDOT32:     {Name: "FUSED_LOAD_VDOT32", Format: FormatM, Operands: 4, Latency: 6, Energy: 3.0e-6, Unit: UnitVEC, WritesDest: true},

		EXT: {Name: "EXT", Format: FormatX, Operands: 1, Latency: 1, Energy: 1e-8, Unit: UnitEXT, Unbounded: true},
	}
	for k, v := range m {
		ret[k] = v
	}
	return ret
}()

var byName = func() map[string]Op {
	m := make(map[string]Op)
	for op, info := range infos {
		if info.Name != "" {
			m[info.Name] = Op(op)
		}
	}
	return m
}()

// Info returns the registry entry for the opcode. The zero Info (empty
// Name) means the opcode is unassigned.
func (p Op) Info() Info {
	return infos[p]
}

func (p Op) String() string {
	if name := infos[p].Name; name != "" {
		return name
	}
	return "Unknown"
}

// Valid reports whether the opcode is assigned in the registry.
func (p Op) Valid() bool {
	return infos[p].Name != ""
}

// Lookup resolves a mnemonic to its opcode.
func Lookup(mnemonic string) (Op, bool) {
	op, ok := byName[mnemonic]
	return op, ok
}

// Mnemonics returns every assigned mnemonic, in opcode order.
func Mnemonics() []string {
	ret := make([]string, 0, 64)
	for _, info := range infos {
		if info.Name != "" {
			ret = append(ret, info.Name)
		}
	}
	return ret
}
