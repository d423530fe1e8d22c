// Package sim provides the data and scheduling core of the federated
// learning simulator.
//
// # Reading Guide
//
// Start with these files to understand how data reaches a client:
//   - dataset.go: immutable labeled table, CSV loading, train/val/test split
//   - partition.go: Dirichlet (non-iid) and iid index partitions across clients
//   - scheduler.go: per-round release of partition slices into a client's visible set
//
// # Architecture
//
// The sim package defines interfaces and shared types; implementations live
// in sub-packages:
//   - sim/models/: concrete local model variants (softmax, MLP, KNN, forest, neural net)
//   - sim/federation/: clients, FedAvg and ensemble servers, the round loop
//   - sim/report/: per-round records, CSV tables, run header and metrics textfile
//
// sim/models registers its constructor via init() by setting the
// package-level factory variable NewModelFunc.
//
// # Key Interfaces
//
//   - Model: fit on visible rows, predict class probabilities, clone
//   - ParameterModel: a Model with fixed-shape parameter matrices, used by averaging
//
// All randomness flows from one seed through PartitionedRNG, one stream per
// subsystem. Partitions, releases and model initialisation depend only on the
// seed. The random forest library draws from the process-wide math/rand
// generator, which its Fit reseeds from the client's model stream, so
// sequential runs with the same seed match round for round. Measured times
// differ between runs.
package sim
