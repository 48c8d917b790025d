package process

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/popsim/popsim/sim"
)

// Process is a compiled, labelled tree bound to an evaluator.
type Process struct {
	tree *Tree
	eval sim.Evaluator
}

// Label returns the process label.
func (p *Process) Label() string { return p.tree.label }

// Tree returns the compiled tree.
func (p *Process) Tree() sim.Tree { return p.tree }

// Execute evaluates every node in order with ctx's tree set to this
// process, and returns the value of the last node.
func (p *Process) Execute(ctx *sim.SimulationContext) (any, error) {
	ctx.SetPrimitiveTree(p.tree)
	var last any
	for i := range p.tree.nodes {
		v, err := p.eval.Evaluate(p.tree, i, ctx)
		if err != nil {
			return nil, fmt.Errorf("process %q node %d: %w", p.tree.label, i, err)
		}
		last = v
	}
	return last, nil
}

// Registry maps labels to compiled processes. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	processes map[string]*Process
	labels    []string
}

// NewRegistry compiles defs. Every invalid definition is reported.
func NewRegistry(defs []sim.ProcessDefinition) (*Registry, error) {
	r := &Registry{processes: make(map[string]*Process, len(defs))}
	eval := NewEvaluator()

	var errs error
	for _, def := range defs {
		if _, dup := r.processes[def.Label]; dup {
			errs = multierr.Append(errs, fmt.Errorf("duplicate process label %q", def.Label))
			continue
		}
		tree, err := compileTree(def)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		r.processes[def.Label] = &Process{tree: tree, eval: eval}
		r.labels = append(r.labels, def.Label)
	}
	if errs != nil {
		return nil, errs
	}
	slices.Sort(r.labels)
	logrus.Debugf("compiled %d process(es): %v", len(r.labels), r.labels)
	return r, nil
}

// Process looks up label.
func (r *Registry) Process(label string) (sim.Process, error) {
	p, ok := r.processes[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", sim.ErrUnknownProcess, label)
	}
	return p, nil
}

// Labels returns the sorted process labels.
func (r *Registry) Labels() []string {
	return slices.Clone(r.labels)
}
