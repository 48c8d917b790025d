package sim

import (
	"maps"
	"math/rand"
)

// IndividualID identifies an individual; it equals its population index.
type IndividualID int

// EnvironmentID addresses the environment's pseudo-queue in WaitingQMaps.
const EnvironmentID IndividualID = -1

// Variables holds the state of an entity as read and written by processes.
type Variables map[string]any

// Clone returns a shallow copy.
func (v Variables) Clone() Variables {
	if v == nil {
		return Variables{}
	}
	return maps.Clone(v)
}

// Individual is one simulated entity.
type Individual struct {
	ID   IndividualID
	Vars Variables
	rng  *rand.Rand
}

// Rand returns the individual's private RNG stream.
func (ind *Individual) Rand() *rand.Rand {
	return ind.rng
}

// Environment is the state shared by all individuals. Workers only read it;
// the coordinator's environment context is the only writer.
type Environment struct {
	Vars Variables
	rng  *rand.Rand
}

// Population is the coordinator-owned, append-only set of individuals.
// It only grows between steps.
type Population struct {
	individuals []*Individual
	rng         *PartitionedRNG
}

// NewPopulation creates size individuals, each starting from a copy of vars.
func NewPopulation(size int, vars Variables, rng *PartitionedRNG) *Population {
	p := &Population{rng: rng}
	for i := 0; i < size; i++ {
		p.Add(vars)
	}
	return p
}

// NewEnvironment creates the environment with its own RNG stream.
func NewEnvironment(vars Variables, rng *PartitionedRNG) *Environment {
	return &Environment{Vars: vars.Clone(), rng: rng.ForSubsystem(SubsystemEnvironment)}
}

// Add appends one individual and returns its id.
func (p *Population) Add(vars Variables) IndividualID {
	id := IndividualID(len(p.individuals))
	p.individuals = append(p.individuals, &Individual{
		ID:   id,
		Vars: vars.Clone(),
		rng:  p.rng.ForSubsystem(SubsystemIndividual(id)),
	})
	return id
}

// Len returns the number of individuals.
func (p *Population) Len() int {
	if p == nil {
		return 0
	}
	return len(p.individuals)
}

// Get returns the individual at index i, or nil when out of range.
func (p *Population) Get(i int) *Individual {
	if p == nil || i < 0 || i >= len(p.individuals) {
		return nil
	}
	return p.individuals[i]
}

// Contains reports whether id names an existing individual.
func (p *Population) Contains(id IndividualID) bool {
	return id >= 0 && int(id) < p.Len()
}
