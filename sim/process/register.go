// register.go wires the expr-lang registry into the sim package's
// registration variable (NewProcessRegistryFunc). Importing sim/process
// runs this init(); package sim itself never imports it.
package process

import "github.com/popsim/popsim/sim"

func init() {
	sim.NewProcessRegistryFunc = func(defs []sim.ProcessDefinition) (sim.ProcessRegistry, error) {
		r, err := NewRegistry(defs)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}
