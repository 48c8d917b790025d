package sim

// TypeTag is the static result type of an expression node.
type TypeTag int

const (
	TypeAny TypeTag = iota
	TypeNumber
	TypeBool
	TypeVector
	TypeAtom
)

func (t TypeTag) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeBool:
		return "bool"
	case TypeVector:
		return "vector"
	case TypeAtom:
		return "atom"
	default:
		return "any"
	}
}

// Tree is a handle on an expression tree. The kernel never looks inside;
// it only stores the handle in the context so nested evaluations can find
// their enclosing tree.
type Tree interface {
	Label() string
	Len() int
}

// Evaluator evaluates the nodes of a Tree against a SimulationContext.
// Implementations must be safe for concurrent use by different contexts.
type Evaluator interface {
	Evaluate(tree Tree, node int, ctx *SimulationContext) (any, error)
	ReturnType(tree Tree, node int, ctx *SimulationContext) TypeTag
}

// Process is a labelled, executable expression tree.
type Process interface {
	Label() string
	Tree() Tree
	Execute(ctx *SimulationContext) (any, error)
}

// ProcessRegistry resolves process labels. It is read-only once the run
// has started and shared by every context.
type ProcessRegistry interface {
	Process(label string) (Process, error)
	Labels() []string
}

// ProcessDefinition is the scenario form of a process: a label and the
// source of its expression nodes, evaluated in order.
type ProcessDefinition struct {
	Label string   `yaml:"label" json:"label"`
	Nodes []string `yaml:"nodes" json:"nodes"`
}

// NewProcessRegistryFunc compiles process definitions into a registry.
// Set by sim/process's init(); production code imports sim/process.
var NewProcessRegistryFunc func(defs []ProcessDefinition) (ProcessRegistry, error)

// NewProcessRegistry compiles defs with the registered implementation.
func NewProcessRegistry(defs []ProcessDefinition) (ProcessRegistry, error) {
	if NewProcessRegistryFunc == nil {
		panic("NewProcessRegistryFunc not registered: import sim/process to register it")
	}
	return NewProcessRegistryFunc(defs)
}
