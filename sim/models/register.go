// register.go wires the concrete model variants into the sim package's
// registration variable (NewModelFunc). This init() runs when any package
// imports sim/models, breaking the import cycle between sim/ (interface owner)
// and sim/models/ (implementations and their libraries).
package models

import (
	"github.com/inference-sim/fedsim/sim"
	randomforest "github.com/malaschitz/randomForest"
)

func init() {
	sim.NewModelFunc = New
	// One worker builds trees in index order, so the shared generator is
	// consumed in a fixed sequence.
	randomforest.NumWorkers = 1
}
