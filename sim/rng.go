package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// SimulationKey identifies a reproducible run. Two runs with the same key
// and scenario produce identical results regardless of the thread count.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// SubsystemEnvironment is the RNG stream of the environment.
const SubsystemEnvironment = "environment"

// SubsystemIndividual returns the RNG stream name of individual id.
// Each individual owns its stream so draws do not depend on partitioning.
func SubsystemIndividual(id IndividualID) string {
	return fmt.Sprintf("individual_%d", id)
}

// PartitionedRNG hands out isolated, deterministically seeded RNG streams.
//
// Derivation: masterSeed XOR fnv1a64(subsystemName).
//
// Thread-safety: NOT thread-safe. Streams are created by the coordinator
// while workers are quiesced; each returned *rand.Rand is then used by a
// single owner.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the RNG for the named subsystem, creating it on
// first use. The same name always yields the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
