package sim

import (
	"strconv"

	"github.com/dlathrop/svsim/internal/hdl"
)

// Combinational implements C6: a fixed-point propagator over a module's
// continuous assignments, always_comb blocks, and sub-instances. It is
// used both as the evaluator for a purely combinational module and as the
// inner engine a Sequential instance re-runs on Sample and Re-present.
type Combinational struct {
	ir           *hdl.ModuleIR
	cache        *hdl.Cache
	sourceDir    string
	instancePath string
	cfg          Config
	bindings     []Binding

	memories map[string]*MemoryArray
	children map[string]Evaluator
}

func newCombinational(
	ir *hdl.ModuleIR,
	cache *hdl.Cache,
	sourceDir string,
	instancePath string,
	bindings []Binding,
	cfg Config,
) (*Combinational, error) {
	mems, err := bindMemories(ir, instancePath, bindings)
	if err != nil {
		return nil, err
	}

	return &Combinational{
		ir:           ir,
		cache:        cache,
		sourceDir:    sourceDir,
		instancePath: instancePath,
		cfg:          cfg,
		bindings:     bindings,
		memories:     mems,
		children:     make(map[string]Evaluator),
	}, nil
}

// IsSequential implements Evaluator.
func (c *Combinational) IsSequential() bool { return false }

// Evaluate implements Evaluator: advances any sequential children.
func (c *Combinational) Evaluate(inputs map[string]int64) (map[string]int64, error) {
	env, err := c.run(inputs, true)
	if err != nil {
		return nil, err
	}

	return c.gatherOutputs(env), nil
}

// Peek implements Evaluator: recomputes the fixed point without advancing
// any sequential child.
func (c *Combinational) Peek(inputs map[string]int64) (map[string]int64, error) {
	env, err := c.run(inputs, false)
	if err != nil {
		return nil, err
	}

	return c.gatherOutputs(env), nil
}

// Reset implements Evaluator: reinitializes memories and recursively
// resets every elaborated child.
func (c *Combinational) Reset() {
	for _, mem := range c.memories {
		mem.ResetState()
	}

	for _, child := range c.children {
		child.Reset()
	}
}

func (c *Combinational) gatherOutputs(env *hdl.Env) map[string]int64 {
	out := make(map[string]int64, len(c.ir.Outputs))

	for _, name := range c.ir.Outputs {
		v, _ := env.Get(name)
		out[name] = v
	}

	return out
}

func (c *Combinational) getChild(inst *hdl.Instantiation) (Evaluator, error) {
	if child, ok := c.children[inst.Instance]; ok {
		return child, nil
	}

	childIR, err := c.cache.Get(inst.Child, c.sourceDir)
	if err != nil {
		return nil, err
	}

	childPath := childInstancePath(c.instancePath, inst.Instance)

	child, err := NewEvaluator(childIR, c.cache, c.sourceDir, childPath, c.bindings, c.cfg)
	if err != nil {
		return nil, err
	}

	c.children[inst.Instance] = child

	return child, nil
}

// run seeds the environment from inputs, then iterates continuous
// assignments, always_comb blocks, and sub-instance evaluation to a fixed
// point (spec.md §4.5), bounded by |assignments|+2*|combBlocks|+k
// iterations. advance controls whether sub-instances that are themselves
// sequential advance their persistent state (Evaluate) or merely report it
// (Peek).
func (c *Combinational) run(inputs map[string]int64, advance bool) (*hdl.Env, error) {
	env := hdl.NewEnv()

	for name, v := range inputs {
		if decl, ok := c.ir.Signals[name]; ok {
			env.Set(name, v)
			hdl.ExpandBus(env, decl, v)
		} else {
			env.Set(name, v)
		}
	}

	readMems := c.readMemories()

	bound := len(c.ir.AssignOrder) + 2*len(c.ir.CombBlocks) + int(c.cfg.FixedPointSlack)
	if bound < 1 {
		bound = 1
	}

	for iter := 0; iter < bound; iter++ {
		changed := false

		for _, name := range c.ir.AssignOrder {
			expr := c.ir.Assigns[name]

			width := 0
			if decl, ok := c.ir.Signals[name]; ok {
				width = decl.Width()
			}

			v, err := hdl.Eval(expr, env, readMems, c.ir, width)
			if err != nil {
				// A dependency may not be ready yet this early in the
				// fixed point; transient BadExpression is swallowed
				// and retried next iteration (spec.md §7). Anything
				// else is a hard failure.
				if hdl.Is(err, hdl.BadExpression) {
					continue
				}

				return nil, err
			}

			if cur, ok := env.Get(name); !ok || cur != v {
				setWhole(env, c.ir.Signals, name, v)
				changed = true
			}
		}

		for _, blk := range c.ir.CombBlocks {
			before := env.Clone()

			if err := execCombStmt(blk.Body, env, readMems, c.ir, c.ir.Signals, c.memories); err != nil {
				if hdl.Is(err, hdl.BadExpression) {
					continue
				}

				return nil, err
			}

			if !envsEqual(before, env) {
				changed = true
			}
		}

		// Sub-instances are only peeked while hunting for the fixed
		// point: a sequential child must advance its real state at
		// most once per parent cycle, not once per iteration (spec.md
		// §4.7's rationale for peek_outputs).
		instChanged, err := c.runInstances(env, false)
		if err != nil {
			return nil, err
		}

		if instChanged {
			changed = true
		}

		if !changed {
			break
		}
	}

	if advance {
		if _, err := c.runInstances(env, true); err != nil {
			return nil, err
		}
	}

	c.applySliceAssigns(env, readMems)

	if err := c.applyConcatAssigns(env, readMems); err != nil {
		return nil, err
	}

	return env, nil
}

func (c *Combinational) readMemories() hdl.Memories {
	mems := make(hdl.Memories, len(c.memories))
	for k, v := range c.memories {
		mems[k] = v
	}

	return mems
}

func (c *Combinational) runInstances(env *hdl.Env, advance bool) (bool, error) {
	changed := false

	for _, inst := range c.ir.Instances {
		child, err := c.getChild(inst)
		if err != nil {
			return false, err
		}

		childInputs := make(map[string]int64, len(inst.PortOrder))

		for _, port := range inst.PortOrder {
			ref := inst.Ports[port]

			v, err := resolvePortInput(ref, env)
			if err != nil {
				return false, err
			}

			childInputs[port] = v
		}

		var outputs map[string]int64

		if advance {
			outputs, err = child.Evaluate(childInputs)
		} else {
			outputs, err = child.Peek(childInputs)
		}

		if err != nil {
			return false, err
		}

		for port, value := range outputs {
			ref, ok := inst.Ports[port]
			if !ok {
				continue
			}

			if writePortOutput(ref, env, c.ir.Signals, value) {
				changed = true
			}
		}
	}

	return changed, nil
}

func (c *Combinational) applySliceAssigns(env *hdl.Env, mems hdl.Memories) {
	for _, sa := range c.ir.SliceAssigns {
		v, err := hdl.Eval(sa.Expr, env, mems, c.ir, 0)
		if err != nil {
			continue
		}

		setSlice(env, c.ir.Signals, sa.Target, sa.MSB, sa.LSB, v)
	}
}

func (c *Combinational) applyConcatAssigns(env *hdl.Env, mems hdl.Memories) error {
	for _, ca := range c.ir.ConcatAssigns {
		totalWidth := 0
		widths := make([]int, len(ca.Targets))

		for i, t := range ca.Targets {
			w := 1
			if decl, ok := c.ir.Signals[t]; ok {
				w = decl.Width()
			}

			widths[i] = w
			totalWidth += w
		}

		v, err := hdl.Eval(ca.Expr, env, mems, c.ir, totalWidth)
		if err != nil {
			return err
		}

		pos := totalWidth
		for i, t := range ca.Targets {
			pos -= widths[i]
			piece := (v >> uint(pos)) & ((int64(1) << uint(widths[i])) - 1)
			setWhole(env, c.ir.Signals, t, piece)
		}
	}

	return nil
}

// resolvePortInput reads the value a parent-scope PortRef currently
// carries, for binding into a child instance's input.
func resolvePortInput(ref hdl.PortRef, env *hdl.Env) (int64, error) {
	switch ref.Kind {
	case hdl.PortLiteral:
		return ref.Literal, nil
	case hdl.PortBare:
		v, _ := env.Get(ref.Signal)
		return v, nil
	case hdl.PortBit:
		if v, ok := env.Get(bitAliasName(ref.Signal, ref.MSB)); ok {
			return v & 1, nil
		}

		whole, _ := env.Get(ref.Signal)
		return (whole >> uint(ref.MSB)) & 1, nil
	case hdl.PortSlice:
		whole, _ := env.Get(ref.Signal)

		lo, hi := ref.LSB, ref.MSB
		if lo > hi {
			lo, hi = hi, lo
		}

		width := hi - lo + 1
		mask := (int64(1) << uint(width)) - 1

		return (whole >> uint(lo)) & mask, nil
	default:
		return 0, nil
	}
}

// writePortOutput writes a child output value into the parent-scope
// location named by ref, reporting whether the visible parent state
// changed.
func writePortOutput(ref hdl.PortRef, env *hdl.Env, signals map[string]*hdl.SignalDecl, value int64) bool {
	switch ref.Kind {
	case hdl.PortBare:
		cur, ok := env.Get(ref.Signal)
		if ok && cur == maskWord(value, widthOrOne(signals[ref.Signal])) {
			return false
		}

		setWhole(env, signals, ref.Signal, value)

		return true
	case hdl.PortBit:
		cur, ok := env.Get(bitAliasName(ref.Signal, ref.MSB))
		if ok && cur == value&1 {
			return false
		}

		setBit(env, signals, ref.Signal, ref.MSB, value)

		return true
	case hdl.PortSlice:
		setSlice(env, signals, ref.Signal, ref.MSB, ref.LSB, value)
		return true
	default:
		// PortLiteral is never a legal output binding; ignored.
		return false
	}
}

func bitAliasName(signal string, idx int) string {
	return signal + "[" + strconv.Itoa(idx) + "]"
}

func envsEqual(a, b *hdl.Env) bool {
	an, bn := a.Names(), b.Names()
	if len(an) != len(bn) {
		return false
	}

	for _, n := range an {
		av, _ := a.Get(n)
		bv, ok := b.Get(n)

		if !ok || av != bv {
			return false
		}
	}

	return true
}
