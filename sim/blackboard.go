package sim

import (
	"context"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

// BlackBoard collects the pushes produced during one step.
//
// Workers append while holding the binary guard (Wait/Post); the
// coordinator drains it once every worker has reported completion, at
// which point no guard is needed.
type BlackBoard struct {
	guard  *semaphore.Weighted
	held   atomic.Bool
	pushes []Push
}

// NewBlackBoard creates an empty blackboard.
func NewBlackBoard() *BlackBoard {
	return &BlackBoard{guard: semaphore.NewWeighted(1)}
}

// Wait acquires the blackboard guard.
func (b *BlackBoard) Wait(ctx context.Context) error {
	if err := b.guard.Acquire(ctx, 1); err != nil {
		return err
	}
	b.held.Store(true)
	return nil
}

// Post releases the blackboard guard.
func (b *BlackBoard) Post() {
	if !b.held.Swap(false) {
		panic("BlackBoard.Post: guard not held")
	}
	b.guard.Release(1)
}

// Push appends p. The caller must hold the guard. The check only sees
// whether the guard is held, not by whom: a goroutine pushing while another
// holds it is not detected.
func (b *BlackBoard) Push(p Push) {
	if !b.held.Load() {
		panic("BlackBoard.Push: guard not held")
	}
	b.pushes = append(b.pushes, p)
}

// Append acquires the guard, appends every push and releases the guard,
// even if appending panics.
func (b *BlackBoard) Append(ctx context.Context, pushes ...Push) error {
	if len(pushes) == 0 {
		return nil
	}
	if err := b.Wait(ctx); err != nil {
		return err
	}
	defer b.Post()
	for _, p := range pushes {
		b.Push(p)
	}
	return nil
}

// Len returns the number of pushes collected so far.
// Only meaningful while workers are quiesced.
func (b *BlackBoard) Len() int {
	return len(b.pushes)
}

// DrainInto resolves every collected push into w and clears the board.
// population is the number of individuals at drain time. Pushes that cannot
// be resolved are reported in the returned error; the others are still
// scheduled. Returns the drained pushes in collection order.
func (b *BlackBoard) DrainInto(w *WaitingQMaps, population int) ([]Push, error) {
	if b.held.Load() {
		panic("BlackBoard.DrainInto: guard held during drain")
	}
	drained := b.pushes
	b.pushes = nil

	var errs error
	for _, p := range drained {
		if err := p.Resolve(population); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		switch p.Target {
		case TargetCurrent:
			w.ScheduleFor(p.Origin, p.Label, p.DueTick)
		case TargetEnvironment:
			w.ScheduleFor(EnvironmentID, p.Label, p.DueTick)
		case TargetIndividuals:
			for i := 0; i < population; i++ {
				w.ScheduleFor(IndividualID(i), p.Label, p.DueTick)
			}
		case TargetIndividualByID:
			w.ScheduleFor(p.IndividualID, p.Label, p.DueTick)
		}
	}
	return drained, errs
}
