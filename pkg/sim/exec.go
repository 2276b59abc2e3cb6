package sim

import (
	"fmt"

	"github.com/dlathrop/svsim/internal/hdl"
)

// PendingWrites accumulates the signal and memory writes produced by
// walking a cycle's sequential blocks, per spec.md §4.7 step 2, for Commit
// to apply. Blocking writes are also applied immediately to the block's own
// scratch environment/memory overlay as they are computed; non-blocking
// writes are only collected here and take effect at Commit.
type PendingWrites struct {
	BlockingSignals    map[string]int64
	NonblockingSignals map[string]int64
	BlockingMemory     map[string]map[int64]int64
	NonblockingMemory  map[string]map[int64]int64
}

func newPendingWrites() *PendingWrites {
	return &PendingWrites{
		BlockingSignals:    make(map[string]int64),
		NonblockingSignals: make(map[string]int64),
		BlockingMemory:     make(map[string]map[int64]int64),
		NonblockingMemory:  make(map[string]map[int64]int64),
	}
}

// memShadow layers a block-local blocking-write overlay over a real
// MemoryArray, so that within one sequential block, a blocking write is
// visible to a later read in the same block (glossary: blocking writes are
// visible to later statements in the same cycle) without mutating the
// shared array until Commit.
type memShadow struct {
	base    *MemoryArray
	overlay map[int64]int64
}

func newMemShadow(base *MemoryArray) *memShadow {
	return &memShadow{base: base, overlay: make(map[int64]int64)}
}

func (s *memShadow) ReadWord(addr int64) int64 {
	a := clampAddr(addr, s.base.Depth())
	if v, ok := s.overlay[a]; ok {
		return v
	}

	return s.base.ReadWord(a)
}

func (s *memShadow) Depth() int { return s.base.Depth() }

func (s *memShadow) writeBlocking(addr int64, value int64) {
	a := clampAddr(addr, s.base.Depth())
	s.overlay[a] = maskWord(value, s.base.Decl.WordWidth)
}

// applyEnvTarget writes value into env for any non-memory target, masking
// to the target's declared width and keeping bus/bit-alias coherence
// (invariant P2). Memory targets are handled separately by the caller,
// since they need access to the memory array, not the signal environment.
func applyEnvTarget(env *hdl.Env, signals map[string]*hdl.SignalDecl, target hdl.Target, value int64) {
	switch t := target.(type) {
	case *hdl.WholeTarget:
		setWhole(env, signals, t.Signal, value)
	case *hdl.IndexedSignalTarget:
		setWhole(env, signals, t.Signal, value)
	case *hdl.BitTarget:
		setBit(env, signals, t.Signal, t.Index, value)
	case *hdl.SliceTarget:
		setSlice(env, signals, t.Signal, t.MSB, t.LSB, value)
	}
}

func setWhole(env *hdl.Env, signals map[string]*hdl.SignalDecl, name string, value int64) {
	decl := signals[name]

	width := 1
	if decl != nil {
		width = decl.Width()
	}

	masked := maskWord(value, width)
	env.Set(name, masked)

	if decl != nil && decl.Width() > 1 {
		hdl.ExpandBus(env, decl, masked)
	}
}

func setBit(env *hdl.Env, signals map[string]*hdl.SignalDecl, name string, idx int, value int64) {
	decl := signals[name]
	bit := value & 1

	env.Set(fmt.Sprintf("%s[%d]", name, idx), bit)

	if decl == nil || decl.Width() <= 1 {
		env.Set(name, bit)
		return
	}

	if v, ok := hdl.CollapseBus(env, decl); ok {
		env.Set(name, v)
	}
}

func setSlice(env *hdl.Env, signals map[string]*hdl.SignalDecl, name string, msb, lsb int, value int64) {
	decl := signals[name]

	lo, hi := lsb, msb
	if lo > hi {
		lo, hi = hi, lo
	}

	width := hi - lo + 1
	mask := ((int64(1) << uint(width)) - 1) << uint(lo)

	cur, _ := env.Get(name)
	newVal := (cur &^ mask) | ((maskWord(value, width) << uint(lo)) & mask)

	env.Set(name, newVal)

	if decl != nil && decl.Width() > 1 {
		hdl.ExpandBus(env, decl, newVal)
	}
}

func targetWidth(signals map[string]*hdl.SignalDecl, target hdl.Target) int {
	switch t := target.(type) {
	case *hdl.WholeTarget:
		if d, ok := signals[t.Signal]; ok {
			return d.Width()
		}

		return 0
	case *hdl.IndexedSignalTarget:
		if d, ok := signals[t.Signal]; ok {
			return d.Width()
		}

		return 0
	case *hdl.BitTarget:
		return 1
	case *hdl.SliceTarget:
		lo, hi := t.LSB, t.MSB
		if lo > hi {
			lo, hi = hi, lo
		}

		return hi - lo + 1
	default:
		return 0
	}
}

// ===========================================================================
// always_comb execution: non-blocking degenerates to blocking (spec.md §4.6)
// ===========================================================================

func execCombStmt(
	stmt hdl.Stmt,
	env *hdl.Env,
	readMems hdl.Memories,
	widths hdl.WidthLookup,
	signals map[string]*hdl.SignalDecl,
	memArrays map[string]*MemoryArray,
) error {
	switch s := stmt.(type) {
	case *hdl.Block:
		for _, c := range s.Children {
			if err := execCombStmt(c, env, readMems, widths, signals, memArrays); err != nil {
				return err
			}
		}

		return nil
	case *hdl.IfStmt:
		cond, err := hdl.Eval(s.Cond, env, readMems, widths, -1)
		if err != nil {
			return err
		}

		if cond != 0 {
			if s.Then != nil {
				return execCombStmt(s.Then, env, readMems, widths, signals, memArrays)
			}

			return nil
		}

		if s.Else != nil {
			return execCombStmt(s.Else, env, readMems, widths, signals, memArrays)
		}

		return nil
	case *hdl.CaseStmt:
		body, err := selectCaseArm(s, env, readMems, widths)
		if err != nil {
			return err
		}

		if body != nil {
			return execCombStmt(body, env, readMems, widths, signals, memArrays)
		}

		return nil
	case *hdl.BlockingAssign:
		return execCombAssign(s.Target, s.Rhs, env, readMems, widths, signals, memArrays)
	case *hdl.NonblockingAssign:
		return execCombAssign(s.Target, s.Rhs, env, readMems, widths, signals, memArrays)
	case *hdl.EmptyStmt, *hdl.RawStmt:
		return nil
	default:
		return nil
	}
}

func execCombAssign(
	target hdl.Target,
	rhs hdl.Expr,
	env *hdl.Env,
	readMems hdl.Memories,
	widths hdl.WidthLookup,
	signals map[string]*hdl.SignalDecl,
	memArrays map[string]*MemoryArray,
) error {
	if mt, ok := target.(*hdl.MemoryWordTarget); ok {
		addr, err := hdl.Eval(mt.Index, env, readMems, widths, -1)
		if err != nil {
			return err
		}

		value, err := hdl.Eval(rhs, env, readMems, widths, -1)
		if err != nil {
			return err
		}

		if mem, ok := memArrays[mt.Memory]; ok {
			mem.Write(addr, value)
		}

		return nil
	}

	value, err := hdl.Eval(rhs, env, readMems, widths, targetWidth(signals, target))
	if err != nil {
		return err
	}

	applyEnvTarget(env, signals, target, value)

	return nil
}

func selectCaseArm(s *hdl.CaseStmt, env *hdl.Env, readMems hdl.Memories, widths hdl.WidthLookup) (hdl.Stmt, error) {
	v, err := hdl.Eval(s.Expr, env, readMems, widths, -1)
	if err != nil {
		return nil, err
	}

	for _, arm := range s.Arms {
		for _, label := range arm.Labels {
			lv, err := hdl.Eval(label, env, readMems, widths, -1)
			if err != nil {
				return nil, err
			}

			if lv == v {
				return arm.Body, nil
			}
		}
	}

	return s.Default, nil
}

// ===========================================================================
// always_ff execution: blocking visible immediately (scratch copy),
// non-blocking deferred to Commit (spec.md §4.7 step 2).
// ===========================================================================

func execSeqStmt(
	stmt hdl.Stmt,
	scratch *hdl.Env,
	shadows map[string]*memShadow,
	widths hdl.WidthLookup,
	signals map[string]*hdl.SignalDecl,
	pending *PendingWrites,
) error {
	readMems := shadowsAsMemories(shadows)

	switch s := stmt.(type) {
	case *hdl.Block:
		for _, c := range s.Children {
			if err := execSeqStmt(c, scratch, shadows, widths, signals, pending); err != nil {
				return err
			}
		}

		return nil
	case *hdl.IfStmt:
		cond, err := hdl.Eval(s.Cond, scratch, readMems, widths, -1)
		if err != nil {
			return err
		}

		if cond != 0 {
			if s.Then != nil {
				return execSeqStmt(s.Then, scratch, shadows, widths, signals, pending)
			}

			return nil
		}

		if s.Else != nil {
			return execSeqStmt(s.Else, scratch, shadows, widths, signals, pending)
		}

		return nil
	case *hdl.CaseStmt:
		body, err := selectCaseArm(s, scratch, readMems, widths)
		if err != nil {
			return err
		}

		if body != nil {
			return execSeqStmt(body, scratch, shadows, widths, signals, pending)
		}

		return nil
	case *hdl.BlockingAssign:
		return execSeqAssign(s.Target, s.Rhs, scratch, shadows, widths, signals, pending, true)
	case *hdl.NonblockingAssign:
		return execSeqAssign(s.Target, s.Rhs, scratch, shadows, widths, signals, pending, false)
	case *hdl.EmptyStmt, *hdl.RawStmt:
		return nil
	default:
		return nil
	}
}

func execSeqAssign(
	target hdl.Target,
	rhs hdl.Expr,
	scratch *hdl.Env,
	shadows map[string]*memShadow,
	widths hdl.WidthLookup,
	signals map[string]*hdl.SignalDecl,
	pending *PendingWrites,
	blocking bool,
) error {
	readMems := shadowsAsMemories(shadows)

	if mt, ok := target.(*hdl.MemoryWordTarget); ok {
		addr, err := hdl.Eval(mt.Index, scratch, readMems, widths, -1)
		if err != nil {
			return err
		}

		value, err := hdl.Eval(rhs, scratch, readMems, widths, -1)
		if err != nil {
			return err
		}

		if blocking {
			if sh, ok := shadows[mt.Memory]; ok {
				sh.writeBlocking(addr, value)
			}

			recordMemWrite(pending.BlockingMemory, mt.Memory, addr, value)
		} else {
			recordMemWrite(pending.NonblockingMemory, mt.Memory, addr, value)
		}

		return nil
	}

	value, err := hdl.Eval(rhs, scratch, readMems, widths, targetWidth(signals, target))
	if err != nil {
		return err
	}

	name := hdl.TargetSignal(target)

	if blocking {
		applyEnvTarget(scratch, signals, target, value)

		if v, ok := scratch.Get(name); ok {
			pending.BlockingSignals[name] = v
		}
	} else {
		// Non-blocking writes are computed now (against the pre-write
		// scratch state) but must not be visible to later statements in
		// this cycle, so they bypass `scratch` and are applied to a
		// private copy of the signal instead.
		cur, ok := pending.NonblockingSignals[name]
		if !ok {
			cur, _ = scratch.Get(name)
		}

		tmp := hdl.NewEnv()
		tmp.Set(name, cur)

		if decl := signals[name]; decl != nil {
			hdl.ExpandBus(tmp, decl, cur)
		}

		applyEnvTarget(tmp, signals, target, value)

		v, _ := tmp.Get(name)
		pending.NonblockingSignals[name] = v
	}

	return nil
}

func widthOrOne(decl *hdl.SignalDecl) int {
	if decl == nil {
		return 1
	}

	return decl.Width()
}

func recordMemWrite(m map[string]map[int64]int64, mem string, addr, value int64) {
	if m[mem] == nil {
		m[mem] = make(map[int64]int64)
	}

	m[mem][addr] = value
}

func shadowsAsMemories(shadows map[string]*memShadow) hdl.Memories {
	mems := make(hdl.Memories, len(shadows))
	for k, v := range shadows {
		mems[k] = v
	}

	return mems
}
