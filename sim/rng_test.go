package sim

import (
	"math"
	"math/rand"
	"testing"
)

// === SimulationKey Tests ===

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewSimulationKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// BDD: Same key+name produces same sequence
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 3; i++ {
		v1 := rng1.ForSubsystem(SubsystemEnvironment).Float64()
		v2 := rng2.ForSubsystem(SubsystemEnvironment).Float64()
		if v1 != v2 {
			t.Errorf("Value %d: got %v and %v, want identical", i, v1, v2)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// BDD: Drawing from one individual's stream doesn't affect another's
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	rngB := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemIndividual(0)).Float64()
	}
	for i := 0; i < 5; i++ {
		rngB.ForSubsystem(SubsystemIndividual(1)).Float64()
	}

	aFirst := rngA.ForSubsystem(SubsystemIndividual(1)).Float64()
	bSixth := rngB.ForSubsystem(SubsystemIndividual(1)).Float64()

	fresh := NewPartitionedRNG(NewSimulationKey(42))
	expectedFirst := fresh.ForSubsystem(SubsystemIndividual(1)).Float64()

	if aFirst != expectedFirst {
		t.Errorf("A's individual_1 first value = %v, want %v (isolation broken)", aFirst, expectedFirst)
	}
	if bSixth == expectedFirst {
		t.Error("B's 6th individual_1 value equals 1st value - unexpected")
	}
}

func TestPartitionedRNG_SeedDerivation(t *testing.T) {
	// BDD: stream seed is masterSeed XOR fnv1a64(name), for every name
	seed := int64(42)
	rng := NewPartitionedRNG(NewSimulationKey(seed))
	env := rng.ForSubsystem(SubsystemEnvironment)
	direct := rand.New(rand.NewSource(seed ^ fnv1a64(SubsystemEnvironment)))

	for i := 0; i < 10; i++ {
		if got, want := env.Float64(), direct.Float64(); got != want {
			t.Errorf("Value %d: environment RNG = %v, direct RNG = %v", i, got, want)
		}
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))

	if rng.ForSubsystem(SubsystemIndividual(3)) != rng.ForSubsystem(SubsystemIndividual(3)) {
		t.Error("ForSubsystem returned different instances for same name")
	}
}

func TestPartitionedRNG_Key(t *testing.T) {
	seed := int64(12345)
	rng := NewPartitionedRNG(NewSimulationKey(seed))

	if rng.Key() != SimulationKey(seed) {
		t.Errorf("Key() = %v, want %v", rng.Key(), seed)
	}
}

func TestPartitionedRNG_ExtremeSeeds(t *testing.T) {
	for _, seed := range []int64{0, math.MinInt64, math.MaxInt64} {
		rng := NewPartitionedRNG(NewSimulationKey(seed))
		v := rng.ForSubsystem(SubsystemIndividual(0)).Float64()
		if v < 0 || v >= 1 {
			t.Errorf("seed %d: Float64() returned %v, want [0, 1)", seed, v)
		}
	}
}

func TestPartitionedRNG_LazyInitialization(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))

	if len(rng.subsystems) != 0 {
		t.Errorf("New PartitionedRNG has %d subsystems, want 0", len(rng.subsystems))
	}
	rng.ForSubsystem(SubsystemEnvironment)
	if len(rng.subsystems) != 1 {
		t.Errorf("After one ForSubsystem call, have %d subsystems, want 1", len(rng.subsystems))
	}
}

// === fnv1a64 Tests ===

func TestFnv1a64_NoCollisionsAcrossStreams(t *testing.T) {
	names := []string{SubsystemEnvironment, ""}
	for i := 0; i < 1000; i++ {
		names = append(names, SubsystemIndividual(IndividualID(i)))
	}

	hashes := make(map[int64]string)
	for _, name := range names {
		h := fnv1a64(name)
		if existing, ok := hashes[h]; ok {
			t.Errorf("Hash collision: %q and %q both hash to %d", name, existing, h)
		}
		hashes[h] = name
	}
}

func TestSubsystemIndividual(t *testing.T) {
	tests := []struct {
		id   IndividualID
		want string
	}{
		{0, "individual_0"},
		{1, "individual_1"},
		{100, "individual_100"},
	}

	for _, tt := range tests {
		if got := SubsystemIndividual(tt.id); got != tt.want {
			t.Errorf("SubsystemIndividual(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

// === Benchmark ===

func BenchmarkPartitionedRNG_ForSubsystem_CacheHit(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	rng.ForSubsystem(SubsystemEnvironment)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.ForSubsystem(SubsystemEnvironment)
	}
}
