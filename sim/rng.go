package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey and identical configuration
// MUST produce identical partitions and identical round-by-round metrics.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemSplit shuffles the loaded dataset into train/val/test.
	SubsystemSplit = "split"

	// SubsystemPartition drives the Dirichlet draws of the training partition.
	SubsystemPartition = "partition"

	// SubsystemPartitionVal drives the iid validation partition.
	SubsystemPartitionVal = "partition-val"

	// SubsystemPartitionTest drives the single-client test partition.
	SubsystemPartitionTest = "partition-test"

	// SubsystemGlobalModel initialises the shared FedAvg parameters.
	SubsystemGlobalModel = "model/global"
)

// SubsystemScheduler returns the subsystem name for client N's data release.
func SubsystemScheduler(id int) string {
	return fmt.Sprintf("scheduler/client_%d", id)
}

// SubsystemModel returns the subsystem name for client N's local model.
func SubsystemModel(id int) string {
	return fmt.Sprintf("model/client_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName), fed to a PCG source.
// The returned *rand.Rand satisfies math/rand/v2.Source and can be handed to
// gonum distributions directly.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
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

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derivedSeed := uint64(int64(p.key) ^ fnv1a64(name))
	rng := rand.New(rand.NewPCG(derivedSeed, derivedSeed>>1|1))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
