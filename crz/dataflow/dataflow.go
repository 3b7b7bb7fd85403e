// Package dataflow certifies #[reversible] functions: a forward,
// path-sensitive analysis over each function's control-flow graph proves
// that every destructive register write has a saved prior value on every
// path reaching it.
//
// The working set is threaded by value into nested blocks: inner blocks
// observe outer saves, but saves made inside a block never leak back out,
// and sibling blocks never observe each other's transient saves. Joins
// merge by intersection; false positives are acceptable, missed
// violations are not.
package dataflow

import (
	"golang.org/x/exp/maps"

	"github.com/HamidrezaReyhani/CRZ64I/crz/ast"
	"github.com/HamidrezaReyhani/CRZ64I/crz/diag"
	"github.com/HamidrezaReyhani/CRZ64I/crz/semantic"
	"github.com/HamidrezaReyhani/CRZ64I/isa"
)

// Violation is a destructive write to a location with no saved prior
// value on some path. The reversible-emulation pass keys its
// instrumentation off the Instr pointer.
type Violation struct {
	Fn     string
	Target string
	Instr  *ast.Instr
	Loc    diag.Loc
}

func (v Violation) Diagnostic() diag.Diagnostic {
	return diag.Errorf(v.Loc, "reversibility violation in %s: destructive write to %s with no saved prior value", v.Fn, v.Target)
}

// Analyze checks every #[reversible] function in prog and returns all
// violations plus their diagnostics.
func Analyze(prog *ast.Program) ([]Violation, diag.List) {
	var vs []Violation
	for _, fn := range prog.Funcs() {
		if fn.Attrs.Has(semantic.AttrReversible) {
			vs = append(vs, Check(fn)...)
		}
	}
	var ds diag.List
	for _, v := range vs {
		ds.Add(v.Diagnostic())
	}
	return vs, ds
}

// Check analyzes a single function regardless of its attributes.
func Check(fn *ast.Function) []Violation {
	a := &analyzer{fn: fn}
	st := newState()
	// parameters hold caller-visible values and start unsaved;
	// locals introduced by the function itself are always writable
	a.block(fn.Body, st, true)
	return a.violations
}

type locSet = map[string]struct{}

// state is the per-path working set: locations with a saved prior value,
// and locations newly introduced in this function.
type state struct {
	saved  locSet
	locals locSet
}

func newState() state {
	return state{saved: locSet{}, locals: locSet{}}
}

func (s state) clone() state {
	return state{saved: maps.Clone(s.saved), locals: maps.Clone(s.locals)}
}

func (s state) equal(o state) bool {
	return setEqual(s.saved, o.saved) && setEqual(s.locals, o.locals)
}

func intersect(a, b state) state {
	return state{
		saved:  setIntersect(a.saved, b.saved),
		locals: setIntersect(a.locals, b.locals),
	}
}

func setIntersect(a, b locSet) locSet {
	ret := locSet{}
	for k := range a {
		if _, ok := b[k]; ok {
			ret[k] = struct{}{}
		}
	}
	return ret
}

func setEqual(a, b locSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

type analyzer struct {
	fn         *ast.Function
	violations []Violation
}

// block runs the analysis over one block and returns the exit state.
// Saves made inside the block are intersected away against the entry
// state, so they never escape their scope.
func (a *analyzer) block(blk *ast.Block, in state, report bool) state {
	out := a.flow(blk, in, report)
	return intersect(in, out)
}

// basicBlock is a maximal run of statements with no internal label or
// branch. Labels start a new basic block; branches end one.
type basicBlock struct {
	label string // entry label, "" for the block head or a fall-through split
	stmts []ast.Stmt
	// branch targets out of this basic block, plus fall-through
	targets     []string
	fallthru    bool
	exits       bool // RET, HALT, or branch to a label outside this block
	uncondExits bool
}

// flow builds the mini-CFG for blk's statement list and runs the forward
// fixed point over it.
func (a *analyzer) flow(blk *ast.Block, in state, report bool) state {
	bbs, byLabel := splitBlocks(blk)
	if len(bbs) == 0 {
		return in
	}

	// fixed point over per-bb entry states; nil means unreached so far
	ins := make([]*state, len(bbs))
	first := in.clone()
	ins[0] = &first
	changed := true
	for changed {
		changed = false
		for i, bb := range bbs {
			if ins[i] == nil {
				continue
			}
			out := a.transfer(bb, ins[i].clone(), false)
			succs := bb.succs(i, len(bbs), byLabel)
			for _, j := range succs {
				if ins[j] == nil {
					next := out.clone()
					ins[j] = &next
					changed = true
				} else if merged := intersect(*ins[j], out); !merged.equal(*ins[j]) {
					ins[j] = &merged
					changed = true
				}
			}
		}
	}

	// report with the converged entry states, and gather the exit state
	exit := in.clone()
	haveExit := false
	for i, bb := range bbs {
		if ins[i] == nil {
			continue
		}
		out := a.transfer(bb, ins[i].clone(), report)
		if bb.exits {
			if !haveExit {
				exit, haveExit = out, true
			} else {
				exit = intersect(exit, out)
			}
		}
	}
	return exit
}

func (bb *basicBlock) succs(i, n int, byLabel map[string]int) []int {
	var ret []int
	for _, t := range bb.targets {
		if j, ok := byLabel[t]; ok {
			ret = append(ret, j)
		}
	}
	if bb.fallthru && !bb.uncondExits && i+1 < n {
		ret = append(ret, i+1)
	}
	return ret
}

func splitBlocks(blk *ast.Block) ([]*basicBlock, map[string]int) {
	var bbs []*basicBlock
	byLabel := map[string]int{}
	cur := &basicBlock{}
	flush := func(label string) {
		cur.fallthru = true
		bbs = append(bbs, cur)
		cur = &basicBlock{label: label}
	}
	for _, s := range blk.Stmts {
		switch s := s.(type) {
		case *ast.LabelDef:
			flush(s.Name)
			byLabel[s.Name] = len(bbs)
		case *ast.Instr:
			cur.stmts = append(cur.stmts, s)
			op, _ := isa.Lookup(s.Mnemonic)
			if kind := branchKind(op); kind != branchNone {
				if t := branchTarget(op, s); t != "" {
					cur.targets = append(cur.targets, t)
				}
				cur.fallthru = true
				cur.exits = kind == branchStop
				cur.uncondExits = kind == branchStop || kind == branchAlways
				bbs = append(bbs, cur)
				cur = &basicBlock{}
			}
		default:
			cur.stmts = append(cur.stmts, s)
		}
	}
	// last bb falls off the end of the block
	cur.fallthru = true
	bbs = append(bbs, cur)

	// a branch to a label this block does not define leaves the block
	for _, bb := range bbs {
		for _, t := range bb.targets {
			if _, ok := byLabel[t]; !ok {
				bb.exits = true
			}
		}
	}
	// falling off the end of the statement list leaves the block
	if last := bbs[len(bbs)-1]; last.fallthru && !last.uncondExits {
		last.exits = true
	}
	return bbs, byLabel
}

type branchClass int

const (
	branchNone branchClass = iota
	branchCond
	branchAlways
	branchStop
)

func branchKind(op isa.Op) branchClass {
	switch op {
	case isa.JZ, isa.JNZ, isa.BR_IF:
		return branchCond
	case isa.JMP:
		return branchAlways
	case isa.RET, isa.HALT:
		return branchStop
	default:
		return branchNone
	}
}

// branchTarget returns the symbolic label a branch instruction targets.
func branchTarget(op isa.Op, in *ast.Instr) string {
	var idx int
	switch op {
	case isa.JMP:
		idx = 0
	case isa.JZ, isa.JNZ:
		idx = 1
	case isa.BR_IF:
		idx = 3
	default:
		return ""
	}
	if idx >= len(in.Operands) {
		return ""
	}
	o := in.Operands[idx]
	if o.Kind == ast.OpdSym {
		return o.Text
	}
	return ""
}

// transfer applies one basic block's statements to the state.
func (a *analyzer) transfer(bb *basicBlock, st state, report bool) state {
	for _, s := range bb.stmts {
		switch s := s.(type) {
		case *ast.Instr:
			st = a.instr(s, st, report)
		case *ast.LocalDecl:
			st.locals[s.Name] = struct{}{}
			// binding a register's value to a fresh name preserves it
			if id, ok := s.Value.(*ast.Ident); ok {
				st.saved[id.Name] = struct{}{}
			}
		case *ast.Block:
			st = a.block(s, st, report)
		}
	}
	return st
}

func (a *analyzer) instr(in *ast.Instr, st state, report bool) state {
	op, ok := isa.Lookup(in.Mnemonic)
	if !ok {
		return st
	}
	switch op {
	case isa.SAVE_DELTA:
		if len(in.Operands) >= 2 {
			st.saved[in.Operands[1].Text] = struct{}{}
		}
		return st
	case isa.RESTORE_DELTA:
		// the delta is consumed: the target returns to unproven
		if len(in.Operands) >= 1 {
			delete(st.saved, in.Operands[0].Text)
		}
		return st
	case isa.REV_ADD, isa.REV_SWAP:
		// invertible by construction, erases nothing
		return st
	}
	for _, idx := range writtenOperands(op) {
		if idx >= len(in.Operands) {
			continue
		}
		o := in.Operands[idx]
		switch o.Kind {
		case ast.OpdReg, ast.OpdVReg, ast.OpdSym:
		default:
			continue
		}
		name := o.Text
		if _, ok := st.locals[name]; ok {
			continue
		}
		if _, ok := st.saved[name]; ok {
			continue
		}
		if report {
			a.violations = append(a.violations, Violation{
				Fn:     a.fn.Name,
				Target: name,
				Instr:  in,
				Loc:    in.Loc,
			})
		}
	}
	return st
}

// writtenOperands lists the operand indexes an opcode writes.
func writtenOperands(op isa.Op) []int {
	switch op {
	case isa.XCHG:
		return []int{0, 1}
	case isa.FUSED_LOAD_ADD, isa.FUSED_LOAD_VDOT32:
		return []int{0, 1}
	default:
		if op.Info().WritesDest {
			return []int{0}
		}
		return nil
	}
}
