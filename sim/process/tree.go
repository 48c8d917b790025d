// Package process compiles scenario processes into expr-lang programs and
// evaluates them against a sim.SimulationContext.
//
// A process is a labelled sequence of expression nodes. Nodes run in order
// and share the process's local variables; the value of the last node is
// the value of the process.
package process

import (
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/popsim/popsim/sim"
)

// Node is one compiled expression of a Tree.
type Node struct {
	Source  string
	program *vm.Program
	ret     sim.TypeTag
}

// Tree is the compiled form of a process. It is immutable after compilation
// and shared by every thread.
type Tree struct {
	label string
	nodes []Node
}

// Label returns the process label.
func (t *Tree) Label() string { return t.label }

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns node i.
func (t *Tree) Node(i int) Node { return t.nodes[i] }

// compileTree compiles every node of def against the scope prototype.
func compileTree(def sim.ProcessDefinition) (*Tree, error) {
	if def.Label == "" {
		return nil, fmt.Errorf("process with %d node(s) has no label", len(def.Nodes))
	}
	if len(def.Nodes) == 0 {
		return nil, fmt.Errorf("process %q has no nodes", def.Label)
	}
	t := &Tree{label: def.Label, nodes: make([]Node, 0, len(def.Nodes))}
	for i, src := range def.Nodes {
		program, err := expr.Compile(src, expr.Env(prototype()))
		if err != nil {
			return nil, fmt.Errorf("process %q node %d: %w", def.Label, i, err)
		}
		t.nodes = append(t.nodes, Node{
			Source:  src,
			program: program,
			ret:     typeTagOf(program.Node().Type()),
		})
	}
	return t, nil
}

// typeTagOf maps the checker's static type onto a sim.TypeTag.
func typeTagOf(t reflect.Type) sim.TypeTag {
	if t == nil {
		return sim.TypeAny
	}
	switch t.Kind() {
	case reflect.Bool:
		return sim.TypeBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return sim.TypeNumber
	case reflect.Slice, reflect.Array:
		return sim.TypeVector
	case reflect.String:
		return sim.TypeAtom
	default:
		return sim.TypeAny
	}
}
