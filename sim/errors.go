package sim

import "errors"

// Run-time lookup errors. They indicate a malformed scenario and abort the run.
var (
	ErrUnknownLocalVariable = errors.New("unknown local variable")
	ErrUnknownProcess       = errors.New("unknown process")
	ErrInvalidTarget        = errors.New("invalid push target")
	ErrUnknownIndividual    = errors.New("unknown individual")
	ErrEnvironmentReadOnly  = errors.New("environment is read-only during a step")
)
