package sim

import (
	"fmt"
	"strings"
)

// Target selects which waiting queue(s) a Push lands in.
type Target int

const (
	TargetCurrent        Target = iota // the entity that produced the push
	TargetEnvironment                  // the environment pseudo-queue
	TargetIndividuals                  // broadcast to every individual
	TargetIndividualByID               // one named individual
)

var targetNames = map[Target]string{
	TargetCurrent:        "current",
	TargetEnvironment:    "environment",
	TargetIndividuals:    "individuals",
	TargetIndividualByID: "individual",
}

// String returns the target label used in scenarios and traces.
func (t Target) String() string {
	if name, ok := targetNames[t]; ok {
		return name
	}
	return fmt.Sprintf("target(%d)", int(t))
}

// Valid reports whether t is one of the known targets.
func (t Target) Valid() bool {
	_, ok := targetNames[t]
	return ok
}

// ParseTarget maps a target label to a Target.
func ParseTarget(name string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "current", "":
		return TargetCurrent, nil
	case "environment", "env":
		return TargetEnvironment, nil
	case "individuals", "all":
		return TargetIndividuals, nil
	case "individual", "id":
		return TargetIndividualByID, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, name)
}

// Push is a request to invoke a process at a future tick.
// It is created by a worker during a step and consumed once by the drain.
type Push struct {
	Label        string
	Target       Target
	DueTick      int64
	IndividualID IndividualID // only meaningful for TargetIndividualByID
	Origin       IndividualID // acting entity, resolves TargetCurrent
}

func (p Push) String() string {
	if p.Target == TargetIndividualByID {
		return fmt.Sprintf("push(%s -> %s#%d @%d)", p.Label, p.Target, p.IndividualID, p.DueTick)
	}
	return fmt.Sprintf("push(%s -> %s @%d)", p.Label, p.Target, p.DueTick)
}

// Resolve checks that p can be delivered in a population of the given size.
func (p Push) Resolve(population int) error {
	switch p.Target {
	case TargetCurrent:
		if p.Origin != EnvironmentID && (p.Origin < 0 || int(p.Origin) >= population) {
			return fmt.Errorf("%w: %s from origin %d", ErrUnknownIndividual, p, p.Origin)
		}
	case TargetEnvironment, TargetIndividuals:
	case TargetIndividualByID:
		if p.IndividualID < 0 || int(p.IndividualID) >= population {
			return fmt.Errorf("%w: %s", ErrUnknownIndividual, p)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTarget, p)
	}
	return nil
}
