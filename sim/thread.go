package sim

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Position tells a released thread what kind of pass to run.
type Position int

const (
	PositionStep    Position = iota // full pass, then merge new indexes
	PositionSubstep                 // same-tick continuation pass
	PositionEnd                     // leave the main loop
)

func (p Position) String() string {
	switch p {
	case PositionStep:
		return "step"
	case PositionSubstep:
		return "substep"
	case PositionEnd:
		return "end"
	default:
		return fmt.Sprintf("position(%d)", int(p))
	}
}

// ThreadState is the observable lifecycle state of a SimulationThread.
type ThreadState int32

const (
	StateCreated ThreadState = iota
	StateWaitingForRelease
	StateRunning
	StatePostingResults
	StateEnd
)

func (s ThreadState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateWaitingForRelease:
		return "waiting"
	case StateRunning:
		return "running"
	case StatePostingResults:
		return "posting"
	case StateEnd:
		return "end"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// barrier releases every thread into the next pass. Threads wait until the
// generation moves past the last one they ran.
type barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	generation uint64
}

func newBarrier() *barrier {
	b := &barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// release runs set under the barrier lock, then wakes every waiter.
func (b *barrier) release(set func()) {
	b.mu.Lock()
	set()
	b.generation++
	b.cond.Broadcast()
	b.mu.Unlock()
}

// PassStats counts the work done by one thread in one pass.
type PassStats struct {
	Individuals int
	Processes   int
	Pushes      int
	Errors      int
}

// SimulationThread evaluates the scheduled processes of a fixed share of
// the population. It is created and driven by a Coordinator.
type SimulationThread struct {
	idx      int
	nThreads int

	ctx        *SimulationContext
	blackboard *BlackBoard
	waiting    *WaitingQMaps
	barrier    *barrier
	done       chan error

	position Position // guarded by barrier.mu
	ended    bool     // guarded by barrier.mu

	indexes    []int
	newIndexes []int
	scenario   string

	state atomic.Int32
	stats PassStats
	log   *logrus.Entry
}

func newSimulationThread(idx, nThreads int, ctx *SimulationContext, bb *BlackBoard,
	waiting *WaitingQMaps, b *barrier) *SimulationThread {
	return &SimulationThread{
		idx:        idx,
		nThreads:   nThreads,
		ctx:        ctx,
		blackboard: bb,
		waiting:    waiting,
		barrier:    b,
		done:       make(chan error, 1),
		log:        logrus.WithField("thread", idx),
	}
}

// Index returns the thread's position in the pool.
func (t *SimulationThread) Index() int { return t.idx }

// Context returns the thread's private context. Only inspect it while the
// thread is not running.
func (t *SimulationThread) Context() *SimulationContext { return t.ctx }

// State returns the current lifecycle state.
func (t *SimulationThread) State() ThreadState { return ThreadState(t.state.Load()) }

func (t *SimulationThread) setState(s ThreadState) { t.state.Store(int32(s)) }

// SetPosition selects the kind of the next pass. Panics once the thread
// has been sent to End.
func (t *SimulationThread) SetPosition(p Position) {
	t.barrier.mu.Lock()
	defer t.barrier.mu.Unlock()
	t.setPositionLocked(p)
}

func (t *SimulationThread) setPositionLocked(p Position) {
	if t.ended {
		panic(fmt.Sprintf("SimulationThread %d: SetPosition(%s) after end", t.idx, p))
	}
	t.position = p
	if p == PositionEnd {
		t.ended = true
	}
}

// SetScenarioLabel tags the thread's log lines with the scenario.
func (t *SimulationThread) SetScenarioLabel(label string) {
	t.scenario = label
	t.log = logrus.WithFields(logrus.Fields{"thread": t.idx, "scenario": label})
}

// ScenarioLabel returns the scenario the thread runs.
func (t *SimulationThread) ScenarioLabel() string { return t.scenario }

// ResetIndexes forgets every assigned index.
func (t *SimulationThread) ResetIndexes() {
	t.indexes = t.indexes[:0]
	t.newIndexes = t.newIndexes[:0]
}

// AddIndex assigns one population index to this thread.
func (t *SimulationThread) AddIndex(i int) {
	t.indexes = append(t.indexes, i)
}

// AddNewIndexes takes this thread's round-robin share (i mod N) of the
// freshly added indexes [lower, upper).
func (t *SimulationThread) AddNewIndexes(lower, upper int) {
	for i := lower; i < upper; i++ {
		if i%t.nThreads == t.idx {
			t.newIndexes = append(t.newIndexes, i)
		}
	}
}

// Indexes returns a copy of the assigned indexes.
func (t *SimulationThread) Indexes() []int { return slices.Clone(t.indexes) }

// NewIndexes returns a copy of the indexes added since the last step.
func (t *SimulationThread) NewIndexes() []int { return slices.Clone(t.newIndexes) }

// Stats returns the counters of the last completed pass.
func (t *SimulationThread) Stats() PassStats { return t.stats }

func (t *SimulationThread) awaitRelease(seen uint64) (uint64, Position) {
	b := t.barrier
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.generation == seen {
		b.cond.Wait()
	}
	return b.generation, t.position
}

// run is the thread's main loop: wait for release, run the pass, signal
// completion, repeat until End.
func (t *SimulationThread) run() error {
	var seen uint64
	for {
		t.setState(StateWaitingForRelease)
		gen, pos := t.awaitRelease(seen)
		seen = gen
		if pos == PositionEnd {
			t.setState(StateEnd)
			t.log.Debug("thread ended")
			return nil
		}
		t.done <- t.runPass(pos)
	}
}

// runPass evaluates every due process of the thread's individuals and posts
// the resulting pushes to the blackboard.
func (t *SimulationThread) runPass(pos Position) error {
	t.setState(StateRunning)
	t.stats = PassStats{}
	tick := t.ctx.Clock().Tick()

	var errs error
	var batch []Push
	for _, list := range [][]int{t.indexes, t.newIndexes} {
		for _, idx := range list {
			pushes, err := t.visit(idx, tick)
			if err != nil {
				t.stats.Errors++
				errs = multierr.Append(errs, err)
				continue
			}
			batch = append(batch, pushes...)
		}
	}
	if pos == PositionStep && len(t.newIndexes) > 0 {
		t.indexes = append(t.indexes, t.newIndexes...)
		t.newIndexes = t.newIndexes[:0]
	}

	t.setState(StatePostingResults)
	if err := t.postResults(batch); err != nil {
		errs = multierr.Append(errs, err)
	}
	t.stats.Pushes = len(batch)
	if errs != nil {
		t.log.Warnf("[tick %07d] %s pass finished with %d error(s)", tick, pos, t.stats.Errors)
	}
	return errs
}

// visit runs the due processes of one individual. Its pushes are returned
// only if every process succeeded.
func (t *SimulationThread) visit(idx int, tick int64) (pushes []Push, err error) {
	if err := t.ctx.SetIndividualByIndex(idx); err != nil {
		return nil, fmt.Errorf("thread %d: %w", t.idx, err)
	}
	id := t.ctx.IndividualID()
	due := t.waiting.PopDue(id, tick)
	if len(due) == 0 {
		return nil, nil
	}
	t.stats.Individuals++

	var current string
	defer func() {
		if r := recover(); r != nil {
			t.ctx.DiscardPushes()
			pushes, err = nil, fmt.Errorf("thread %d: individual %d: process %q panicked: %v", t.idx, id, current, r)
		}
	}()
	for _, s := range due {
		current = s.Label
		t.stats.Processes++
		if _, err := t.ctx.RunProcess(s.Label); err != nil {
			t.ctx.DiscardPushes()
			return nil, fmt.Errorf("thread %d: individual %d: process %q: %w", t.idx, id, s.Label, err)
		}
	}
	return t.ctx.TakePushes(), nil
}

func (t *SimulationThread) waitBlackBoard(ctx context.Context) error {
	return t.blackboard.Wait(ctx)
}

func (t *SimulationThread) postBlackBoard() {
	t.blackboard.Post()
}

// postResults appends batch to the blackboard under its guard. The guard
// is released even if appending panics.
func (t *SimulationThread) postResults(batch []Push) error {
	if len(batch) == 0 {
		return nil
	}
	if err := t.waitBlackBoard(context.Background()); err != nil {
		return err
	}
	defer t.postBlackBoard()
	for _, p := range batch {
		t.blackboard.Push(p)
	}
	return nil
}
