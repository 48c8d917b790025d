package process

import (
	"errors"
	"fmt"
	"math"

	"github.com/expr-lang/expr"

	"github.com/popsim/popsim/sim"
)

// MaxCallDepth bounds nested call() evaluations.
const MaxCallDepth = 64

var (
	ErrCallDepth = errors.New("process call depth exceeded")
	ErrNotNumber = errors.New("not a number")
)

// Evaluator runs compiled nodes with expr-lang. It is stateless; the
// per-context scope lives in the context's evaluator state.
type Evaluator struct{}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate runs node of tree against ctx.
func (e *Evaluator) Evaluate(tree sim.Tree, node int, ctx *sim.SimulationContext) (any, error) {
	t, ok := tree.(*Tree)
	if !ok {
		return nil, fmt.Errorf("evaluate: unsupported tree type %T", tree)
	}
	if node < 0 || node >= len(t.nodes) {
		return nil, fmt.Errorf("evaluate: process %q has no node %d", t.label, node)
	}
	s := scopeFor(ctx)
	s.refresh()
	return expr.Run(t.nodes[node].program, s.vars)
}

// ReturnType returns the static type of node, TypeAny when unknown.
func (e *Evaluator) ReturnType(tree sim.Tree, node int, _ *sim.SimulationContext) sim.TypeTag {
	t, ok := tree.(*Tree)
	if !ok || node < 0 || node >= len(t.nodes) {
		return sim.TypeAny
	}
	return t.nodes[node].ret
}

// scope is the expr environment of one context. Its functions close over
// the context, so a scope is only ever used by the context's own thread.
type scope struct {
	ctx   *sim.SimulationContext
	vars  map[string]any
	none  sim.Variables
	depth int
}

func scopeFor(ctx *sim.SimulationContext) *scope {
	if s, ok := ctx.EvaluatorState().(*scope); ok && s.ctx == ctx {
		return s
	}
	s := newScope(ctx)
	ctx.SetEvaluatorState(s)
	return s
}

// prototype is the scope the type checker compiles against.
func prototype() map[string]any {
	return newScope(nil).vars
}

func newScope(ctx *sim.SimulationContext) *scope {
	s := &scope{ctx: ctx, none: sim.Variables{}}
	s.vars = map[string]any{
		"tick":  int64(0),
		"year":  float64(0),
		"month": float64(0),
		"day":   float64(0),
		"id":    int(sim.EnvironmentID),
		"ind":   s.none,
		"env":   sim.Variables{},
		"local": sim.Variables{},

		"define": s.define,
		"assign": s.assign,
		"get":    s.get,
		"has":    s.has,
		"set":    s.set,
		"setEnv": s.setEnv,
		"push": func(label string, delay any, unit string) (any, error) {
			return s.push(sim.TargetCurrent, 0, label, delay, unit)
		},
		"pushEnv": func(label string, delay any, unit string) (any, error) {
			return s.push(sim.TargetEnvironment, 0, label, delay, unit)
		},
		"pushAll": func(label string, delay any, unit string) (any, error) {
			return s.push(sim.TargetIndividuals, 0, label, delay, unit)
		},
		"pushTo": func(id any, label string, delay any, unit string) (any, error) {
			n, err := toID(id)
			if err != nil {
				return nil, fmt.Errorf("pushTo %q: %w", label, err)
			}
			return s.push(sim.TargetIndividualByID, n, label, delay, unit)
		},
		"call":       s.call,
		"random":     s.random,
		"population": s.population,
	}
	return s
}

// refresh points the scope at the context's current clock and entity.
func (s *scope) refresh() {
	c := s.ctx
	clock := c.Clock()
	s.vars["tick"] = clock.Tick()
	s.vars["year"] = clock.Value(sim.UnitYear)
	s.vars["month"] = clock.Value(sim.UnitMonth)
	s.vars["day"] = clock.Value(sim.UnitDay)
	s.vars["id"] = int(c.IndividualID())
	if c.HasIndividual() {
		s.vars["ind"] = c.Individual().Vars
	} else {
		s.vars["ind"] = s.none
	}
	s.vars["env"] = c.Environment().Vars
	s.vars["local"] = c.LocalVariables()
}

func (s *scope) define(name string, value any) (any, error) {
	s.ctx.InsertLocalVariable(name, value)
	return value, nil
}

func (s *scope) assign(name string, value any) (any, error) {
	if err := s.ctx.SetLocalVariable(name, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *scope) get(name string) (any, error) {
	return s.ctx.LocalVariable(name)
}

func (s *scope) has(name string) bool {
	_, err := s.ctx.LocalVariable(name)
	return err == nil
}

func (s *scope) set(name string, value any) (any, error) {
	if err := s.ctx.SetIndividualVariable(name, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *scope) setEnv(name string, value any) (any, error) {
	if err := s.ctx.SetEnvironmentVariable(name, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *scope) push(target sim.Target, id sim.IndividualID, label string, delay any, unit string) (any, error) {
	d, err := toFloat(delay)
	if err != nil {
		return nil, fmt.Errorf("push %q: delay: %w", label, err)
	}
	p, err := s.ctx.Push(label, target, d, sim.ParseTimeUnit(unit), id)
	if err != nil {
		return nil, err
	}
	return p.DueTick, nil
}

func (s *scope) call(label string) (any, error) {
	if s.depth >= MaxCallDepth {
		return nil, fmt.Errorf("%w: calling %q", ErrCallDepth, label)
	}
	s.depth++
	defer func() { s.depth-- }()
	return s.ctx.CallProcess(label)
}

func (s *scope) random() float64 {
	return s.ctx.Random()
}

func (s *scope) population() int {
	return s.ctx.PopulationSize()
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("%w: %v (%T)", ErrNotNumber, v, v)
}

func toID(v any) (sim.IndividualID, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: individual id %v is not integral", ErrNotNumber, v)
	}
	return sim.IndividualID(f), nil
}
