// Package codegen lowers a (possibly rewritten) syntax tree into the
// flat IR the simulator executes. Lowering is deterministic and total:
// labels resolve to absolute record indexes, named bindings resolve to
// register slots, and every record keeps its source location for error
// attribution. The only failure is a referenced-but-undefined label,
// which halts codegen for that function alone.
package codegen

import (
	"golang.org/x/exp/maps"

	"github.com/HamidrezaReyhani/CRZ64I/crz/ast"
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/crz/semantic"
	"github.com/HamidrezaReyhani/CRZ64I/ir"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

// Register conventions: R0 carries return values, parameters bind to
// R1 upward, named locals and expression temporaries to R16 upward.
// R31 is the default delta register for reversible instrumentation.
const (
	retReg        = 0
	firstParamReg = 1
	firstLocalReg = 16
	maxLocalReg   = 30

	firstParamVReg = 0
	firstLocalVReg = 8
)

// Lower translates prog into a flat IR program. Top-level statements
// form the entry stream; function bodies follow, reachable via CALL.
// When there is no top-level code, entry is the main function.
func Lower(prog *ast.Program) (*ir.Program, diag.List) {
	g := &generator{}

	top := g.newUnit("", true)
	sc := scope{}
	for _, s := range prog.TopStmts() {
		top.hasCode = true
		g.stmt(top, s, sc)
	}
	g.finishUnit(top)

	for _, fn := range prog.Funcs() {
		u := g.newUnit(fn.Name, false)
		sc := scope{}
		nr, nv := firstParamReg, firstParamVReg
		for _, p := range fn.Params {
			if p.Type.IsVector() {
				sc[p.Name] = ir.VReg(uint8(nv))
				nv++
			} else {
				sc[p.Name] = ir.Reg(uint8(nr))
				nr++
			}
		}
		g.block(u, fn.Body, sc)
		g.finishUnit(u)
	}

	out := g.link()
	// the entry function's hint attributes seed the machine's hint map
	if entry, ok := out.Funcs["main"]; ok && out.Entry == entry {
		for _, fn := range prog.Funcs() {
			if fn.Name == "main" {
				out.Hints = attrHints(fn.Attrs)
			}
		}
	}
	return out, g.ds
}

// attrHints extracts the attributes interpreted as run-start hints.
func attrHints(attrs ast.AttrSet) map[string]string {
	var ret map[string]string
	for _, name := range []string{semantic.AttrPower, semantic.AttrThermalHint} {
		if a, ok := attrs.Get(name); ok && a.HasValue {
			if ret == nil {
				ret = map[string]string{}
			}
			ret[name] = a.Value
		}
	}
	return ret
}

type scope map[string]ir.Operand

type fixup struct {
	rec, arg int
	name     string
	loc      diag.Loc
}

type unit struct {
	name    string
	top     bool
	hasCode bool
	recs    []ir.Record
	labels  map[string]int
	// labelFix entries not matching a local label become call fixups
	labelFix []fixup
	callFix  []fixup
	nextReg  int
	nextVReg int
	failed   bool
}

type generator struct {
	ds    diag.List
	units []*unit
}

func (g *generator) newUnit(name string, top bool) *unit {
	u := &unit{
		name:     name,
		top:      top,
		labels:   map[string]int{},
		nextReg:  firstLocalReg,
		nextVReg: firstLocalVReg,
	}
	g.units = append(g.units, u)
	return u
}

func (g *generator) errorf(u *unit, loc diag.Loc, format string, args ...any) {
	g.ds.Add(diag.Errorf(loc, format, args...))
	u.failed = true
}

func (g *generator) emit(u *unit, op isa.Op, loc diag.Loc, cost *isa.CostOverride, args ...ir.Operand) {
	u.recs = append(u.recs, ir.Record{Op: op, Args: args, Loc: loc, Cost: cost})
}

// finishUnit appends the implicit terminator and resolves local labels.
func (g *generator) finishUnit(u *unit) {
	term := isa.RET
	if u.top {
		term = isa.HALT
	}
	if n := len(u.recs); n == 0 || !isTerminator(u.recs[n-1].Op) {
		g.emit(u, term, diag.Loc{}, nil)
	}
	for _, fix := range u.labelFix {
		if idx, ok := u.labels[fix.name]; ok {
			u.recs[fix.rec].Args[fix.arg] = ir.Target(idx)
		} else {
			u.callFix = append(u.callFix, fix)
		}
	}
	u.labelFix = nil
}

func isTerminator(op isa.Op) bool {
	return op == isa.RET || op == isa.HALT
}

// link concatenates the surviving units and resolves cross-unit targets.
func (g *generator) link() *ir.Program {
	out := &ir.Program{Funcs: map[string]int{}}
	offsets := map[*unit]int{}
	for _, u := range g.units {
		if u.failed {
			continue
		}
		offsets[u] = len(out.Records)
		if u.name != "" {
			out.Funcs[u.name] = len(out.Records)
		}
		for _, r := range u.recs {
			r2 := r
			r2.Args = append([]ir.Operand(nil), r.Args...)
			for i, a := range r2.Args {
				if a.Kind == ir.KTarget {
					a.Imm += int64(offsets[u])
					r2.Args[i] = a
				}
			}
			out.Records = append(out.Records, r2)
		}
	}
	for _, u := range g.units {
		if u.failed {
			continue
		}
		for _, fix := range u.callFix {
			entry, ok := out.Funcs[fix.name]
			if !ok {
				g.ds.Add(diag.Errorf(fix.loc, "unresolved label %q", fix.name))
				continue
			}
			out.Records[offsets[u]+fix.rec].Args[fix.arg] = ir.Target(entry)
		}
	}
	// with no top-level code, execution starts at main when it exists
	if top := g.units[0]; !top.hasCode {
		if entry, ok := out.Funcs["main"]; ok {
			out.Entry = entry
		}
	}
	return out
}

func (g *generator) block(u *unit, blk *ast.Block, sc scope) {
	inner := maps.Clone(sc)
	for _, s := range blk.Stmts {
		g.stmt(u, s, inner)
	}
}

func (g *generator) stmt(u *unit, s ast.Stmt, sc scope) {
	switch s := s.(type) {
	case *ast.Instr:
		g.instr(u, s, sc)
	case *ast.LocalDecl:
		g.local(u, s, sc)
	case *ast.Return:
		g.ret(u, s, sc)
	case *ast.LabelDef:
		if _, dup := u.labels[s.Name]; dup {
			g.errorf(u, s.Loc, "duplicate label %q", s.Name)
			return
		}
		u.labels[s.Name] = len(u.recs)
	case *ast.Block:
		g.block(u, s, sc)
	}
}

func (g *generator) instr(u *unit, in *ast.Instr, sc scope) {
	op, ok := isa.Lookup(in.Mnemonic)
	if !ok {
		g.errorf(u, in.Loc, "unknown mnemonic %q", in.Mnemonic)
		return
	}
	fixStart := len(u.labelFix)
	args := make([]ir.Operand, 0, len(in.Operands))
	for i, o := range in.Operands {
		args = append(args, g.operand(u, op, i, o, sc))
	}
	// operand lowering may emit materialization records first; point the
	// pending fixups at the record being emitted now
	for j := fixStart; j < len(u.labelFix); j++ {
		u.labelFix[j].rec = len(u.recs)
	}
	g.emit(u, op, in.Loc, in.Cost, args...)
}

func (g *generator) operand(u *unit, op isa.Op, i int, o ast.Operand, sc scope) ir.Operand {
	switch o.Kind {
	case ast.OpdReg:
		idx, _ := ast.RegIndex(o.Text)
		return ir.Reg(idx)
	case ast.OpdVReg:
		idx, _ := ast.VRegIndex(o.Text)
		return ir.VReg(idx)
	case ast.OpdImm:
		if i == targetArg(op) {
			// numeric branch targets are record indexes relative to the
			// enclosing unit; link() rebases them into the flat stream
			return ir.Target(int(o.Num))
		}
		return ir.Imm(o.Num)
	case ast.OpdStr:
		if op == isa.BR_IF && i == 0 {
			return g.condOperand(u, o)
		}
		return ir.Str(o.Text)
	case ast.OpdMem:
		return g.memOperand(u, o.Mem.Addr, sc, o.Loc)
	case ast.OpdSym:
		return g.symOperand(u, op, i, o, sc)
	default:
		g.errorf(u, o.Loc, "bad operand")
		return ir.Imm(0)
	}
}

func (g *generator) condOperand(u *unit, o ast.Operand) ir.Operand {
	c, ok := ir.ParseCond(o.Text)
	if !ok {
		g.errorf(u, o.Loc, "bad branch condition %q", o.Text)
		return ir.CondOp(ir.CondEQ)
	}
	return ir.CondOp(c)
}

// targetArg returns the operand index holding a branch target, or -1.
func targetArg(op isa.Op) int {
	switch op {
	case isa.JMP, isa.CALL:
		return 0
	case isa.JZ, isa.JNZ:
		return 1
	case isa.BR_IF:
		return 3
	default:
		return -1
	}
}

// stringyOps take free-form string operands: hints, profiling tags, and
// IO channel names written as bare symbols.
func stringyOp(op isa.Op) bool {
	switch op {
	case isa.SET_PWR_MODE, isa.SET_THERM_POLICY, isa.PROFILE_START, isa.PROFILE_STOP,
		isa.WRITE_IO, isa.READ_IO, isa.DMA_START, isa.EXT:
		return true
	default:
		return false
	}
}

func (g *generator) symOperand(u *unit, op isa.Op, i int, o ast.Operand, sc scope) ir.Operand {
	if i == targetArg(op) {
		u.labelFix = append(u.labelFix, fixup{arg: i, name: o.Text, loc: o.Loc})
		return ir.Target(0)
	}
	if op == isa.BR_IF && i == 0 {
		return g.condOperand(u, o)
	}
	if bound, ok := sc[o.Text]; ok {
		return bound
	}
	if stringyOp(op) {
		return ir.Str(o.Text)
	}
	g.errorf(u, o.Loc, "undefined symbol %q", o.Text)
	return ir.Imm(0)
}

// memOperand resolves a bracketed address expression into base+offset
// form, materializing anything more complex into a temporary register.
func (g *generator) memOperand(u *unit, e ast.Expr, sc scope, loc diag.Loc) ir.Operand {
	switch e := e.(type) {
	case *ast.NumLit:
		return ir.MemAbs(e.Value)
	case *ast.Ident:
		if base, ok := g.regOf(u, e, sc); ok {
			return ir.MemBase(base, 0)
		}
		return ir.MemAbs(0)
	case *ast.BinExpr:
		if id, ok := e.L.(*ast.Ident); ok {
			if num, ok2 := e.R.(*ast.NumLit); ok2 && (e.Op == "+" || e.Op == "-") {
				off := num.Value
				if e.Op == "-" {
					off = -off
				}
				if base, ok3 := g.regOf(u, id, sc); ok3 {
					return ir.MemBase(base, off)
				}
				return ir.MemAbs(0)
			}
		}
		if num, ok := e.L.(*ast.NumLit); ok && e.Op == "+" {
			if id, ok2 := e.R.(*ast.Ident); ok2 {
				if base, ok3 := g.regOf(u, id, sc); ok3 {
					return ir.MemBase(base, num.Value)
				}
				return ir.MemAbs(0)
			}
		}
	}
	tmp := g.allocReg(u, loc)
	g.evalExpr(u, e, tmp, sc, loc)
	return ir.MemBase(tmp, 0)
}

// regOf resolves an identifier to a general register index.
func (g *generator) regOf(u *unit, id *ast.Ident, sc scope) (uint8, bool) {
	if bound, ok := sc[id.Name]; ok {
		if bound.Kind == ir.KReg {
			return bound.Reg, true
		}
		g.errorf(u, id.Loc, "%s is not a general register", id.Name)
		return 0, false
	}
	if idx, ok := ast.RegIndex(id.Name); ok {
		return idx, true
	}
	g.errorf(u, id.Loc, "undefined symbol %q", id.Name)
	return 0, false
}

func (g *generator) allocReg(u *unit, loc diag.Loc) uint8 {
	if u.nextReg > maxLocalReg {
		g.errorf(u, loc, "out of register slots in %s", u.name)
		return maxLocalReg
	}
	r := uint8(u.nextReg)
	u.nextReg++
	return r
}

func (g *generator) local(u *unit, d *ast.LocalDecl, sc scope) {
	if d.Type.IsVector() {
		if u.nextVReg > 15 {
			g.errorf(u, d.Loc, "out of vector register slots in %s", u.name)
			return
		}
		sc[d.Name] = ir.VReg(uint8(u.nextVReg))
		u.nextVReg++
		return
	}
	dst := g.allocReg(u, d.Loc)
	sc[d.Name] = ir.Reg(dst)
	g.evalExpr(u, d.Value, dst, sc, d.Loc)
}

func (g *generator) ret(u *unit, r *ast.Return, sc scope) {
	if r.Value != nil {
		g.evalExpr(u, r.Value, retReg, sc, r.Loc)
	}
	if u.top {
		g.emit(u, isa.HALT, r.Loc, nil)
	} else {
		g.emit(u, isa.RET, r.Loc, nil)
	}
}

// evalExpr lowers an expression into dst.
func (g *generator) evalExpr(u *unit, e ast.Expr, dst uint8, sc scope, loc diag.Loc) {
	switch e := e.(type) {
	case nil:
		g.emit(u, isa.LOADI, loc, nil, ir.Reg(dst), ir.Imm(0))
	case *ast.NumLit:
		g.emit(u, isa.LOADI, e.Loc, nil, ir.Reg(dst), ir.Imm(e.Value))
	case *ast.StrLit:
		g.errorf(u, e.Loc, "string literal in arithmetic context")
	case *ast.Ident:
		if src, ok := g.regOf(u, e, sc); ok {
			g.emit(u, isa.MOV, e.Loc, nil, ir.Reg(dst), ir.Reg(src))
		}
	case *ast.MemExpr:
		m := g.memOperand(u, e.Addr, sc, e.Loc)
		g.emit(u, isa.LOAD, e.Loc, nil, ir.Reg(dst), m)
	case *ast.BinExpr:
		g.binExpr(u, e, dst, sc)
	default:
		g.errorf(u, loc, "unsupported expression")
	}
}

func (g *generator) binExpr(u *unit, e *ast.BinExpr, dst uint8, sc scope) {
	var op isa.Op
	switch e.Op {
	case "+":
		op = isa.ADD
	case "-":
		op = isa.SUB
	case "*":
		op = isa.MUL
	case "/":
		op = isa.DIV
	case "%":
		g.modExpr(u, e, dst, sc)
		return
	default:
		g.errorf(u, e.Loc, "operator %q not allowed here", e.Op)
		return
	}
	g.evalExpr(u, e.L, dst, sc, e.Loc)
	rhs := g.valueOperand(u, e.R, sc, e.Loc)
	g.emit(u, op, e.Loc, nil, ir.Reg(dst), ir.Reg(dst), rhs)
}

// modExpr lowers a % b as a - (a/b)*b.
func (g *generator) modExpr(u *unit, e *ast.BinExpr, dst uint8, sc scope) {
	g.evalExpr(u, e.L, dst, sc, e.Loc)
	rhs := g.valueOperand(u, e.R, sc, e.Loc)
	tmp := g.allocReg(u, e.Loc)
	g.emit(u, isa.DIV, e.Loc, nil, ir.Reg(tmp), ir.Reg(dst), rhs)
	g.emit(u, isa.MUL, e.Loc, nil, ir.Reg(tmp), ir.Reg(tmp), rhs)
	g.emit(u, isa.SUB, e.Loc, nil, ir.Reg(dst), ir.Reg(dst), ir.Reg(tmp))
}

// valueOperand returns an operand usable as an ALU source, materializing
// non-trivial expressions into a temporary.
func (g *generator) valueOperand(u *unit, e ast.Expr, sc scope, loc diag.Loc) ir.Operand {
	switch e := e.(type) {
	case *ast.NumLit:
		return ir.Imm(e.Value)
	case *ast.Ident:
		if src, ok := g.regOf(u, e, sc); ok {
			return ir.Reg(src)
		}
		return ir.Imm(0)
	default:
		tmp := g.allocReg(u, loc)
		g.evalExpr(u, e, tmp, sc, loc)
		return ir.Reg(tmp)
	}
}
