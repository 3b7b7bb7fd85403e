package sim

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"math"
	"math/bits"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"github.com/HamidrezaReyhani/CRZ64I/ir"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

// Run executes prog from its entry point until HALT, a top-frame RET,
// a fatal fault, or the configured step budget. The returned Result
// carries the partial state even when the error is non-nil.
func (m *Machine) Run(ctx context.Context, prog *ir.Program) (Result, error) {
	m.PC = prog.Entry
	for k, v := range prog.Hints {
		m.Hints[k] = v
	}
	for m.fault == nil && !m.halted {
		if m.Steps%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return m.result(), err
			}
		}
		if m.PC < 0 || m.PC >= len(prog.Records) {
			m.halted = true
			break
		}
		if budget := m.cfg.MaxSteps; budget > 0 && int64(m.Steps) >= budget {
			break
		}
		m.step(prog.Records[m.PC])
		m.Steps++
	}
	res := m.result()
	if m.fault != nil {
		logctx.Warnf(ctx, "run faulted: %v", m.fault)
		return res, m.fault
	}
	logctx.Debug(ctx, "run finished",
		zap.Stringer("status", res.Status),
		zap.Uint64("steps", res.Steps),
		zap.Uint64("cycles", res.Cycles),
		zap.Float64("joules", res.Energy))
	return res, nil
}

// step decodes and executes one record, then performs cost accounting.
// The program counter advances unless the instruction branched.
func (m *Machine) step(rec ir.Record) {
	if !rec.Op.Valid() {
		m.failf(rec, "unknown opcode 0x%02x", uint8(rec.Op))
		return
	}
	info := rec.Op.Info()
	m.account(rec, info)
	next := m.PC + 1

	switch rec.Op {
	// --- ALU ---
	case isa.ADD:
		m.alu3(rec, func(a, b int64) int64 { return a + b })
	case isa.SUB:
		m.alu3(rec, func(a, b int64) int64 { return a - b })
	case isa.MUL:
		m.alu3(rec, func(a, b int64) int64 { return a * b })
	case isa.DIV:
		if m.need(rec, 3) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			a, ok2 := m.val(rec, rec.Args[1])
			b, ok3 := m.val(rec, rec.Args[2])
			if ok1 && ok2 && ok3 {
				if b == 0 {
					m.failf(rec, "division by zero")
					return
				}
				m.writeReg(rd, a/b)
			}
		}
	case isa.AND:
		m.alu3(rec, func(a, b int64) int64 { return a & b })
	case isa.OR:
		m.alu3(rec, func(a, b int64) int64 { return a | b })
	case isa.XOR:
		m.alu3(rec, func(a, b int64) int64 { return a ^ b })
	case isa.SHL:
		m.alu3(rec, func(a, b int64) int64 { return a << (uint64(b) & 63) })
	case isa.SHR:
		m.alu3(rec, func(a, b int64) int64 { return int64(uint64(a) >> (uint64(b) & 63)) })
	case isa.POPCNT:
		if m.need(rec, 2) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			a, ok2 := m.val(rec, rec.Args[1])
			if ok1 && ok2 {
				m.writeReg(rd, int64(bits.OnesCount64(uint64(a))))
			}
		}
	case isa.MOV:
		if m.need(rec, 2) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			a, ok2 := m.val(rec, rec.Args[1])
			if ok1 && ok2 {
				m.writeReg(rd, a)
			}
		}
	case isa.XCHG:
		if m.need(rec, 2) {
			r1, ok1 := m.regIdx(rec, rec.Args[0])
			r2, ok2 := m.regIdx(rec, rec.Args[1])
			if ok1 && ok2 {
				m.Regs[r1], m.Regs[r2] = m.Regs[r2], m.Regs[r1]
			}
		}

	// --- memory ---
	case isa.LOAD:
		if m.need(rec, 2) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			addr, ok2 := m.memAddr(rec, rec.Args[1])
			if ok1 && ok2 && m.checkAddr(rec, addr) {
				m.writeReg(rd, m.Mem[addr])
			}
		}
	case isa.STORE:
		if m.need(rec, 2) {
			v, ok1 := m.val(rec, rec.Args[0])
			addr, ok2 := m.memAddr(rec, rec.Args[1])
			if ok1 && ok2 && m.checkAddr(rec, addr) {
				m.Mem[addr] = v
			}
		}
	case isa.LOADI:
		if m.need(rec, 2) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			v, ok2 := m.val(rec, rec.Args[1])
			if ok1 && ok2 {
				m.writeReg(rd, v)
			}
		}
	case isa.VLOAD:
		if m.need(rec, 2) {
			vd, ok1 := m.vregIdx(rec, rec.Args[0])
			addr, ok2 := m.memAddr(rec, rec.Args[1])
			if ok1 && ok2 && m.checkAddr(rec, addr) && m.checkAddr(rec, addr+VLanes-1) {
				for i := 0; i < VLanes; i++ {
					m.VRegs[vd][i] = m.Mem[addr+int64(i)]
				}
			}
		}
	case isa.VSTORE:
		if m.need(rec, 2) {
			vs, ok1 := m.vregIdx(rec, rec.Args[0])
			addr, ok2 := m.memAddr(rec, rec.Args[1])
			if ok1 && ok2 && m.checkAddr(rec, addr) && m.checkAddr(rec, addr+VLanes-1) {
				for i := 0; i < VLanes; i++ {
					m.Mem[addr+int64(i)] = m.VRegs[vs][i]
				}
			}
		}

	// --- vector ---
	case isa.VADD:
		m.vec3(rec, func(a, b int64) int64 { return a + b })
	case isa.VSUB:
		m.vec3(rec, func(a, b int64) int64 { return a - b })
	case isa.VMUL:
		m.vec3(rec, func(a, b int64) int64 { return a * b })
	case isa.VDOT32:
		if m.need(rec, 3) {
			v1, ok1 := m.vregIdx(rec, rec.Args[1])
			v2, ok2 := m.vregIdx(rec, rec.Args[2])
			if ok1 && ok2 {
				var dot int64
				for i := 0; i < VLanes; i++ {
					dot += m.VRegs[v1][i] * m.VRegs[v2][i]
				}
				m.writeDot(rec, rec.Args[0], dot)
			}
		}
	case isa.VSHL:
		m.vshift(rec, func(a int64, n uint64) int64 { return a << (n & 63) })
	case isa.VSHR:
		m.vshift(rec, func(a int64, n uint64) int64 { return int64(uint64(a) >> (n & 63)) })
	case isa.VFMA:
		if m.need(rec, 3) {
			vd, ok1 := m.vregIdx(rec, rec.Args[0])
			v1, ok2 := m.vregIdx(rec, rec.Args[1])
			v2, ok3 := m.vregIdx(rec, rec.Args[2])
			if ok1 && ok2 && ok3 {
				for i := 0; i < VLanes; i++ {
					m.VRegs[vd][i] += m.VRegs[v1][i] * m.VRegs[v2][i]
				}
			}
		}
	case isa.VREDUCE_SUM:
		if m.need(rec, 2) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			vs, ok2 := m.vregIdx(rec, rec.Args[1])
			if ok1 && ok2 {
				var sum int64
				for i := 0; i < VLanes; i++ {
					sum += m.VRegs[vs][i]
				}
				m.writeReg(rd, sum)
			}
		}

	// --- floating point on register bit patterns ---
	case isa.FADD:
		m.fp3(rec, func(a, b float64) float64 { return a + b })
	case isa.FSUB:
		m.fp3(rec, func(a, b float64) float64 { return a - b })
	case isa.FMUL:
		m.fp3(rec, func(a, b float64) float64 { return a * b })
	case isa.FMA:
		if m.need(rec, 4) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			a, ok2 := m.val(rec, rec.Args[1])
			b, ok3 := m.val(rec, rec.Args[2])
			c, ok4 := m.val(rec, rec.Args[3])
			if ok1 && ok2 && ok3 && ok4 {
				r := math.FMA(f64(a), f64(b), f64(c))
				m.Regs[rd] = i64(r)
			}
		}

	// --- control ---
	case isa.NOP:
	case isa.JMP:
		if t, ok := m.target(rec, 0); ok {
			next = t
		}
	case isa.JZ:
		if m.need(rec, 2) {
			v, ok1 := m.val(rec, rec.Args[0])
			t, ok2 := m.target(rec, 1)
			if ok1 && ok2 && v == 0 {
				next = t
			}
		}
	case isa.JNZ:
		if m.need(rec, 2) {
			v, ok1 := m.val(rec, rec.Args[0])
			t, ok2 := m.target(rec, 1)
			if ok1 && ok2 && v != 0 {
				next = t
			}
		}
	case isa.BR_IF:
		if m.need(rec, 4) {
			if rec.Args[0].Kind != ir.KCond {
				m.failf(rec, "BR_IF requires a condition code")
				return
			}
			a, ok1 := m.val(rec, rec.Args[1])
			b, ok2 := m.val(rec, rec.Args[2])
			t, ok3 := m.target(rec, 3)
			if ok1 && ok2 && ok3 && rec.Args[0].Cond.Holds(a, b) {
				next = t
			}
		}
	case isa.CALL:
		if t, ok := m.target(rec, 0); ok {
			if len(m.callStack) >= maxCallDepth {
				m.failf(rec, "call stack overflow")
				return
			}
			m.callStack = append(m.callStack, m.PC+1)
			next = t
		}
	case isa.RET:
		if n := len(m.callStack); n > 0 {
			next = m.callStack[n-1]
			m.callStack = m.callStack[:n-1]
		} else {
			m.halted = true
		}
	case isa.HALT:
		m.halted = true

	// --- atomics: deterministic transitions on the single machine ---
	case isa.YIELD:
	case isa.LOCK:
		if m.need(rec, 1) {
			if addr, ok := m.memAddr(rec, rec.Args[0]); ok && m.checkAddr(rec, addr) {
				if m.locks[addr] {
					m.failf(rec, "deadlock: cell %d already locked", addr)
					return
				}
				m.locks[addr] = true
			}
		}
	case isa.UNLOCK:
		if m.need(rec, 1) {
			if addr, ok := m.memAddr(rec, rec.Args[0]); ok && m.checkAddr(rec, addr) {
				delete(m.locks, addr)
			}
		}
	case isa.CMPXCHG:
		if m.need(rec, 4) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			addr, ok2 := m.memAddr(rec, rec.Args[1])
			expected, ok3 := m.val(rec, rec.Args[2])
			repl, ok4 := m.val(rec, rec.Args[3])
			if ok1 && ok2 && ok3 && ok4 && m.checkAddr(rec, addr) {
				old := m.Mem[addr]
				m.writeReg(rd, old)
				if old == expected {
					m.Mem[addr] = repl
				}
			}
		}
	case isa.FENCE:
	case isa.ATOMIC_INC:
		if m.need(rec, 2) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			addr, ok2 := m.memAddr(rec, rec.Args[1])
			if ok1 && ok2 && m.checkAddr(rec, addr) {
				old := m.Mem[addr]
				m.writeReg(rd, old)
				m.Mem[addr] = old + 1
			}
		}

	// --- reversible primitives ---
	case isa.SAVE_DELTA:
		if m.need(rec, 2) {
			tmp, ok1 := m.regIdx(rec, rec.Args[0])
			target, ok2 := m.regIdx(rec, rec.Args[1])
			if ok1 && ok2 {
				m.Regs[tmp] = m.Regs[target]
			}
		}
	case isa.RESTORE_DELTA:
		if m.need(rec, 2) {
			target, ok1 := m.regIdx(rec, rec.Args[0])
			tmp, ok2 := m.regIdx(rec, rec.Args[1])
			if ok1 && ok2 {
				m.Regs[target] = m.Regs[tmp]
			}
		}
	case isa.REV_ADD:
		if m.need(rec, 2) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			v, ok2 := m.val(rec, rec.Args[1])
			if ok1 && ok2 {
				m.Regs[rd] += v
			}
		}
	case isa.REV_SWAP:
		if m.need(rec, 2) {
			r1, ok1 := m.regIdx(rec, rec.Args[0])
			r2, ok2 := m.regIdx(rec, rec.Args[1])
			if ok1 && ok2 {
				m.Regs[r1], m.Regs[r2] = m.Regs[r2], m.Regs[r1]
			}
		}

	// --- thermal / power hints, last-write-wins ---
	case isa.SET_PWR_MODE:
		if m.need(rec, 1) {
			m.Hints["power"] = m.strArg(rec.Args[0])
		}
	case isa.SET_THERM_POLICY:
		if m.need(rec, 1) {
			m.Hints["thermal_policy"] = m.strArg(rec.Args[0])
		}
	case isa.SLEEP:
		if m.need(rec, 1) {
			if n, ok := m.val(rec, rec.Args[0]); ok && n > 0 {
				m.Cycles += uint64(n)
				dt := float64(n) / m.cfg.ClockHz
				m.WallSeconds += dt
				// idle time dissipates no energy; components only cool
				for comp := range m.Thermal {
					m.heat(comp, 0, dt)
				}
			}
		}

	// --- crypto / hash ---
	case isa.CRC32:
		if m.need(rec, 2) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			v, ok2 := m.val(rec, rec.Args[1])
			if ok1 && ok2 {
				var buf [8]byte
				binary.LittleEndian.PutUint64(buf[:], uint64(v))
				m.writeReg(rd, int64(crc32.ChecksumIEEE(buf[:])))
			}
		}
	case isa.HASH_INIT:
		m.hasher = blake3.New(32, nil)
	case isa.HASH_UPDATE:
		if m.need(rec, 1) {
			if m.hasher == nil {
				m.failf(rec, "HASH_UPDATE before HASH_INIT")
				return
			}
			if v, ok := m.val(rec, rec.Args[0]); ok {
				var buf [8]byte
				binary.LittleEndian.PutUint64(buf[:], uint64(v))
				m.hasher.Write(buf[:])
			}
		}
	case isa.HASH_FINAL:
		if m.need(rec, 1) {
			if m.hasher == nil {
				m.failf(rec, "HASH_FINAL before HASH_INIT")
				return
			}
			rd, ok := m.regIdx(rec, rec.Args[0])
			if ok {
				sum := m.hasher.Sum(nil)
				m.writeReg(rd, int64(binary.LittleEndian.Uint64(sum[:8])))
				m.hasher = nil
			}
		}

	// --- IO / DMA, sandbox gated ---
	case isa.WRITE_IO:
		if m.need(rec, 1) {
			if !m.cfg.Sandbox.AllowIO {
				m.failf(rec, "WRITE_IO not allowed in sandbox")
				return
			}
			if v, ok := m.val(rec, rec.Args[0]); ok {
				m.IOLog = append(m.IOLog, v)
			}
		}
	case isa.READ_IO:
		if m.need(rec, 1) {
			if !m.cfg.Sandbox.AllowIO {
				m.failf(rec, "READ_IO not allowed in sandbox")
				return
			}
			rd, ok := m.regIdx(rec, rec.Args[0])
			if ok {
				var v int64
				if len(m.Input) > 0 {
					v, m.Input = m.Input[0], m.Input[1:]
				}
				m.writeReg(rd, v)
			}
		}
	case isa.DMA_START:
		if m.need(rec, 3) {
			if !m.cfg.Sandbox.AllowDMA {
				m.failf(rec, "DMA_START not allowed in sandbox")
				return
			}
			dst, ok1 := m.memAddr(rec, rec.Args[0])
			src, ok2 := m.memAddr(rec, rec.Args[1])
			n, ok3 := m.val(rec, rec.Args[2])
			if ok1 && ok2 && ok3 {
				if n < 0 {
					m.failf(rec, "negative DMA length %d", n)
					return
				}
				if n > 0 && !(m.checkAddr(rec, src) && m.checkAddr(rec, src+n-1) &&
					m.checkAddr(rec, dst) && m.checkAddr(rec, dst+n-1)) {
					return
				}
				for i := int64(0); i < n; i++ {
					m.Mem[dst+i] = m.Mem[src+i]
				}
			}
		}

	// --- profiling ---
	case isa.PROFILE_START:
		if m.need(rec, 1) {
			m.profOpen[m.strArg(rec.Args[0])] = m.Cycles
		}
	case isa.PROFILE_STOP:
		if m.need(rec, 1) {
			tag := m.strArg(rec.Args[0])
			if start, ok := m.profOpen[tag]; ok {
				m.Profiles[tag] += m.Cycles - start
				delete(m.profOpen, tag)
			}
		}

	// --- fused forms: every destination of the unfused sequence ---
	case isa.FUSED_LOAD_ADD:
		if m.need(rec, 4) {
			loadDst, ok1 := m.regIdx(rec, rec.Args[0])
			addDst, ok2 := m.regIdx(rec, rec.Args[1])
			addr, ok3 := m.memAddr(rec, rec.Args[2])
			x, ok4 := m.val(rec, rec.Args[3])
			if ok1 && ok2 && ok3 && ok4 && m.checkAddr(rec, addr) {
				v := m.Mem[addr]
				m.writeReg(loadDst, v)
				m.writeReg(addDst, v+x)
			}
		}
	case isa.FUSED_LOAD_ADD_LEGACY:
		// lossy: the loaded value is not materialized anywhere
		if m.need(rec, 3) {
			addDst, ok1 := m.regIdx(rec, rec.Args[0])
			addr, ok2 := m.memAddr(rec, rec.Args[1])
			x, ok3 := m.val(rec, rec.Args[2])
			if ok1 && ok2 && ok3 && m.checkAddr(rec, addr) {
				m.writeReg(addDst, m.Mem[addr]+x)
			}
		}
	case isa.FUSED_ADD_STORE:
		if m.need(rec, 4) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			a, ok2 := m.val(rec, rec.Args[1])
			b, ok3 := m.val(rec, rec.Args[2])
			addr, ok4 := m.memAddr(rec, rec.Args[3])
			if ok1 && ok2 && ok3 && ok4 && m.checkAddr(rec, addr) {
				sum := a + b
				m.writeReg(rd, sum)
				m.Mem[addr] = sum
			}
		}
	case isa.FUSED_LOAD_VDOT32:
		if m.need(rec, 4) {
			rd, ok1 := m.regIdx(rec, rec.Args[0])
			vd, ok2 := m.vregIdx(rec, rec.Args[1])
			addr, ok3 := m.memAddr(rec, rec.Args[2])
			vs, ok4 := m.vregIdx(rec, rec.Args[3])
			if ok1 && ok2 && ok3 && ok4 && m.checkAddr(rec, addr) {
				v := m.Mem[addr]
				m.writeReg(rd, v)
				var sum int64
				for i := 0; i < VLanes; i++ {
					sum += m.VRegs[vs][i]
				}
				m.VRegs[vd][0] = v * sum
			}
		}

	// --- extension hook ---
	case isa.EXT:
		if m.ext == nil {
			m.failf(rec, "no extension handler registered")
			return
		}
		if err := m.ext(m, rec.Args); err != nil {
			m.failf(rec, "extension: %v", err)
			return
		}

	default:
		m.failf(rec, "unknown opcode 0x%02x", uint8(rec.Op))
		return
	}

	if m.fault == nil {
		m.PC = next
	}
}

func (m *Machine) alu3(rec ir.Record, fn func(a, b int64) int64) {
	if !m.need(rec, 3) {
		return
	}
	rd, ok1 := m.regIdx(rec, rec.Args[0])
	a, ok2 := m.val(rec, rec.Args[1])
	b, ok3 := m.val(rec, rec.Args[2])
	if ok1 && ok2 && ok3 {
		m.writeReg(rd, fn(a, b))
	}
}

func (m *Machine) vec3(rec ir.Record, fn func(a, b int64) int64) {
	if !m.need(rec, 3) {
		return
	}
	vd, ok1 := m.vregIdx(rec, rec.Args[0])
	v1, ok2 := m.vregIdx(rec, rec.Args[1])
	v2, ok3 := m.vregIdx(rec, rec.Args[2])
	if ok1 && ok2 && ok3 {
		for i := 0; i < VLanes; i++ {
			m.VRegs[vd][i] = fn(m.VRegs[v1][i], m.VRegs[v2][i])
		}
	}
}

func (m *Machine) vshift(rec ir.Record, fn func(a int64, n uint64) int64) {
	if !m.need(rec, 3) {
		return
	}
	vd, ok1 := m.vregIdx(rec, rec.Args[0])
	vs, ok2 := m.vregIdx(rec, rec.Args[1])
	n, ok3 := m.val(rec, rec.Args[2])
	if ok1 && ok2 && ok3 {
		for i := 0; i < VLanes; i++ {
			m.VRegs[vd][i] = fn(m.VRegs[vs][i], uint64(n))
		}
	}
}

func (m *Machine) fp3(rec ir.Record, fn func(a, b float64) float64) {
	if !m.need(rec, 3) {
		return
	}
	rd, ok1 := m.regIdx(rec, rec.Args[0])
	a, ok2 := m.val(rec, rec.Args[1])
	b, ok3 := m.val(rec, rec.Args[2])
	if ok1 && ok2 && ok3 {
		m.Regs[rd] = i64(fn(f64(a), f64(b)))
	}
}

// writeDot writes a dot product to either a general register or lane 0
// of a vector register.
func (m *Machine) writeDot(rec ir.Record, dst ir.Operand, dot int64) {
	switch dst.Kind {
	case ir.KReg:
		m.writeReg(int(dst.Reg), dot)
	case ir.KVReg:
		if int(dst.Reg) < len(m.VRegs) {
			m.VRegs[dst.Reg][0] = dot
		}
	default:
		m.failf(rec, "bad destination for dot product")
	}
}

func (m *Machine) writeReg(rd int, v int64) {
	m.Regs[rd] = v
	m.setFlags(v)
}

func (m *Machine) need(rec ir.Record, n int) bool {
	if len(rec.Args) < n {
		m.failf(rec, "%v requires %d operands, got %d", rec.Op, n, len(rec.Args))
		return false
	}
	return true
}

// val reads an operand as a 64-bit value.
func (m *Machine) val(rec ir.Record, o ir.Operand) (int64, bool) {
	switch o.Kind {
	case ir.KReg:
		if int(o.Reg) >= len(m.Regs) {
			m.failf(rec, "bad register R%d", o.Reg)
			return 0, false
		}
		return m.Regs[o.Reg], true
	case ir.KImm, ir.KTarget:
		return o.Imm, true
	default:
		m.failf(rec, "operand %v is not a value", o)
		return 0, false
	}
}

func (m *Machine) regIdx(rec ir.Record, o ir.Operand) (int, bool) {
	if o.Kind != ir.KReg || int(o.Reg) >= len(m.Regs) {
		m.failf(rec, "operand %v is not a general register", o)
		return 0, false
	}
	return int(o.Reg), true
}

func (m *Machine) vregIdx(rec ir.Record, o ir.Operand) (int, bool) {
	if o.Kind != ir.KVReg || int(o.Reg) >= len(m.VRegs) {
		m.failf(rec, "operand %v is not a vector register", o)
		return 0, false
	}
	return int(o.Reg), true
}

// memAddr resolves a memory operand to an address. Bounds are checked by
// the caller via checkAddr.
func (m *Machine) memAddr(rec ir.Record, o ir.Operand) (int64, bool) {
	switch o.Kind {
	case ir.KMem:
		addr := o.Mem.Off
		if o.Mem.HasBase {
			addr += m.Regs[o.Mem.Base]
		}
		return addr, true
	case ir.KImm:
		return o.Imm, true
	default:
		m.failf(rec, "operand %v is not an address", o)
		return 0, false
	}
}

// target resolves a branch target operand to a record index.
func (m *Machine) target(rec ir.Record, i int) (int, bool) {
	if !m.need(rec, i+1) {
		return 0, false
	}
	o := rec.Args[i]
	switch o.Kind {
	case ir.KTarget, ir.KImm:
		return int(o.Imm), true
	default:
		m.failf(rec, "operand %v is not a branch target", o)
		return 0, false
	}
}

func (m *Machine) strArg(o ir.Operand) string {
	if o.Kind == ir.KStr {
		return o.Str
	}
	return o.String()
}

func f64(v int64) float64 { return math.Float64frombits(uint64(v)) }
func i64(f float64) int64 { return int64(math.Float64bits(f)) }
