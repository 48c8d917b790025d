// Package sim provides the core multi-threaded discrete-event population
// simulation engine.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - coordinator.go: the step loop, barrier protocol, drain and clock advance
//   - thread.go: worker goroutines, each owning a slice of the population
//   - context.go: per-thread execution state seen by running processes
//
// # Architecture
//
// A run is a sequence of steps. In each step the coordinator first runs the
// environment's due processes, then releases every SimulationThread through
// a shared barrier. Each thread pops the due processes of the individuals it
// owns from the WaitingQMaps and runs them with its own SimulationContext.
// Pushes produced by processes are posted to the BlackBoard and only drained
// into the WaitingQMaps once every thread is parked again, so no individual
// observes work pushed during the same pass. The Clock advances only between
// steps.
//
// The sim package defines interfaces and bridge types; implementations live in
// sub-packages:
//   - sim/process/: expression-based process trees and their evaluator
//   - sim/trace/: push trace recording and summaries
//
// Sub-packages register their implementations via init() functions that set
// package-level factory variables (NewProcessRegistryFunc).
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Process: executes one process for the acting entity of a context
//   - ProcessRegistry: resolves process labels to processes
//   - Tree: compiled process nodes, evaluated one at a time
//   - Evaluator: evaluates a tree node against a SimulationContext
package sim
