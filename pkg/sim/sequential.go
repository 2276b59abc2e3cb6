package sim

import (
	"sort"

	"github.com/dlathrop/svsim/internal/hdl"
)

// Sequential implements C7: the per-cycle Sample/Compute/Commit/Re-present
// wrapper around an embedded Combinational, for a module that declares at
// least one always_ff block. Persistent state (registers and memories)
// lives here and survives across calls to Evaluate.
type Sequential struct {
	ir    *hdl.ModuleIR
	inner *Combinational

	// state holds the current value of every output port and every
	// signal assigned in an always_ff body of this module (spec.md §3: a
	// sequential instance's own state, not a descendant's).
	state map[string]int64
}

func newSequential(
	ir *hdl.ModuleIR,
	cache *hdl.Cache,
	sourceDir string,
	instancePath string,
	bindings []Binding,
	cfg Config,
) (*Sequential, error) {
	inner, err := newCombinational(ir, cache, sourceDir, instancePath, bindings, cfg)
	if err != nil {
		return nil, err
	}

	s := &Sequential{
		ir:    ir,
		inner: inner,
		state: make(map[string]int64),
	}

	// State is seeded from every output port (an `output reg` port still
	// parses with Kind == KindOutput; the `reg` modifier is not a separate
	// signal kind) plus any signal that appears as a target in a sequential
	// block body, per spec.md §4.7.
	for _, name := range ir.Outputs {
		s.state[name] = 0
	}

	for _, blk := range ir.SeqBlocks {
		for _, name := range seqBlockTargets(blk.Body) {
			s.state[name] = 0
		}
	}

	return s, nil
}

// seqBlockTargets collects the distinct non-memory signal names assigned
// anywhere in a sequential block's body.
func seqBlockTargets(stmt hdl.Stmt) []string {
	var names []string

	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	var walk func(hdl.Stmt)
	walk = func(stmt hdl.Stmt) {
		switch s := stmt.(type) {
		case *hdl.Block:
			for _, c := range s.Children {
				walk(c)
			}
		case *hdl.IfStmt:
			walk(s.Then)
			walk(s.Else)
		case *hdl.CaseStmt:
			for _, arm := range s.Arms {
				walk(arm.Body)
			}

			walk(s.Default)
		case *hdl.BlockingAssign:
			if _, ok := s.Target.(*hdl.MemoryWordTarget); !ok {
				add(hdl.TargetSignal(s.Target))
			}
		case *hdl.NonblockingAssign:
			if _, ok := s.Target.(*hdl.MemoryWordTarget); !ok {
				add(hdl.TargetSignal(s.Target))
			}
		}
	}

	walk(stmt)

	return names
}

// IsSequential implements Evaluator.
func (s *Sequential) IsSequential() bool { return true }

// Reset implements Evaluator: zeroes all tracked state, reinitializes
// memories from their bindings, and recursively resets children.
func (s *Sequential) Reset() {
	for name := range s.state {
		s.state[name] = 0
	}

	s.inner.Reset()
}

// Evaluate implements Evaluator, running one full clock cycle: Sample,
// Compute, Commit, Re-present (spec.md §4.7 steps 1-5).
func (s *Sequential) Evaluate(inputs map[string]int64) (map[string]int64, error) {
	return s.cycle(inputs)
}

// Peek implements Evaluator: reports the current outputs (state ∪ inputs
// run through the inner combinational fixed point, without advancing any
// state anywhere in the subtree).
func (s *Sequential) Peek(inputs map[string]int64) (map[string]int64, error) {
	presented := s.presented(inputs)

	env, err := s.inner.run(presented, false)
	if err != nil {
		return nil, err
	}

	return s.inner.gatherOutputs(env), nil
}

func (s *Sequential) presented(inputs map[string]int64) map[string]int64 {
	presented := make(map[string]int64, len(inputs)+len(s.state))

	for name, v := range s.state {
		presented[name] = v
	}

	for name, v := range inputs {
		presented[name] = v
	}

	return presented
}

// cycle implements the four-phase always_ff cycle (spec.md §4.7 steps
// 1-4).
func (s *Sequential) cycle(inputs map[string]int64) (map[string]int64, error) {
	// 1. Sample: run the inner fixed point with state ∪ inputs as the
	// pre-edge environment. Descendant sequential sub-instances advance
	// here, off the pre-edge snapshot (spec.md §4.7 step 1).
	preEdge, err := s.inner.run(s.presented(inputs), true)
	if err != nil {
		return nil, err
	}

	// 2. Compute: walk every always_ff block whose clock edge is active,
	// each against its own scratch copy of the pre-edge environment, to
	// produce pending blocking/non-blocking writes.
	active := s.activeBlocks(preEdge)

	pending := newPendingWrites()

	for _, blk := range active {
		scratch := preEdge.Clone()
		shadows := s.newShadows()

		if err := execSeqStmt(blk.Body, scratch, shadows, s.ir, s.ir.Signals, pending); err != nil {
			return nil, err
		}
	}

	// 3. Commit: blocking writes, then non-blocking, signals then
	// memories.
	s.commit(pending)

	// 4. Re-present: re-run the inner fixed point against the
	// just-committed state to compute post-edge combinational outputs,
	// without advancing descendant sequential sub-instances again (they
	// already advanced once this cycle, in Sample).
	postEdge, err := s.inner.run(s.presented(inputs), false)
	if err != nil {
		return nil, err
	}

	out := s.inner.gatherOutputs(postEdge)
	for _, name := range s.ir.Outputs {
		if _, ok := out[name]; !ok {
			if v, ok := s.state[name]; ok {
				out[name] = v
			}
		}
	}

	return out, nil
}

// activeBlocks returns the always_ff blocks whose clock is active this
// cycle, in declaration order (spec.md §4.7 step 2). Activation is a pure
// level check against the input presented this call: a posedge block
// fires whenever its clock reads 1, a negedge block whenever it reads 0.
// Callers drive edges themselves by toggling the clock input between
// calls; this type carries no memory of the clock's previous value. A
// clock that is not one of the module's own scope inputs is always
// active.
func (s *Sequential) activeBlocks(env *hdl.Env) []*hdl.SeqBlock {
	var active []*hdl.SeqBlock

	for _, blk := range s.ir.SeqBlocks {
		if !isScopeInput(s.ir, blk.Clock) {
			active = append(active, blk)
			continue
		}

		v, _ := env.Get(blk.Clock)

		fired := v == 1
		if blk.Negedge {
			fired = v == 0
		}

		if fired {
			active = append(active, blk)
		}
	}

	sort.SliceStable(active, func(i, j int) bool { return active[i].Order < active[j].Order })

	return active
}

func isScopeInput(ir *hdl.ModuleIR, name string) bool {
	for _, in := range ir.Inputs {
		if in == name {
			return true
		}
	}

	return false
}

func (s *Sequential) newShadows() map[string]*memShadow {
	shadows := make(map[string]*memShadow, len(s.inner.memories))
	for name, mem := range s.inner.memories {
		shadows[name] = newMemShadow(mem)
	}

	return shadows
}

func (s *Sequential) commit(pending *PendingWrites) {
	for name, v := range pending.BlockingSignals {
		if _, ok := s.state[name]; ok {
			s.state[name] = v
		}
	}

	for name, v := range pending.NonblockingSignals {
		if _, ok := s.state[name]; ok {
			s.state[name] = v
		}
	}

	for memName, writes := range pending.BlockingMemory {
		mem, ok := s.inner.memories[memName]
		if !ok {
			continue
		}

		for addr, v := range writes {
			mem.Write(addr, v)
		}
	}

	for memName, writes := range pending.NonblockingMemory {
		mem, ok := s.inner.memories[memName]
		if !ok {
			continue
		}

		for addr, v := range writes {
			mem.Write(addr, v)
		}
	}
}
