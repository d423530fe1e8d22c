// Package federation runs the client and server sides of a federated
// learning round.
//
// A Simulator owns the client population and one aggregation server. Each
// communication round proceeds in two phases separated by a barrier:
//
//  1. Every client, in ascending id order, receives the current global
//     model (from round 1 on), is released a new slice of its training
//     partition, retrains on its whole visible set, and is evaluated on its
//     validation partition and the shared test set.
//  2. The server aggregates: FedAvgServer averages client parameters
//     weighted by data volume; EBLServer builds (round 0) or re-scores
//     (later rounds) a weighted-vote Ensemble of the client models.
//
// Clients never share references to server state: the ensemble is cloned
// on hand-off and averaged parameters are copied on load.
package federation
