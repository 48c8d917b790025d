package sim

import (
	"container/heap"
	"slices"
	"sync"
)

// Scheduled is a pending process invocation in an entity's waiting queue.
type Scheduled struct {
	Label   string
	DueTick int64
	seq     uint64 // insertion order, breaks ties between equal due ticks
}

// waitingHeap implements heap.Interface.
// Ordering: due tick, then insertion sequence (FIFO among equal ticks).
type waitingHeap []Scheduled

func (h waitingHeap) Len() int { return len(h) }
func (h waitingHeap) Less(i, j int) bool {
	if h[i].DueTick != h[j].DueTick {
		return h[i].DueTick < h[j].DueTick
	}
	return h[i].seq < h[j].seq
}
func (h waitingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *waitingHeap) Push(x any) {
	*h = append(*h, x.(Scheduled))
}

func (h *waitingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// waitingQueue is one entity's queue. During a step it is touched only by
// the thread owning that entity, so it carries no lock of its own.
type waitingQueue struct {
	items waitingHeap
}

// WaitingQMaps maps each entity to its queue of scheduled invocations.
//
// ScheduleFor is coordinator-only (setup and drain, workers quiesced).
// PopDue is called concurrently by workers, each for the entities it owns;
// the RWMutex only protects the map structure, not the queues.
type WaitingQMaps struct {
	mu     sync.RWMutex
	queues map[IndividualID]*waitingQueue
	seq    uint64
}

// NewWaitingQMaps creates empty waiting queues.
func NewWaitingQMaps() *WaitingQMaps {
	return &WaitingQMaps{queues: make(map[IndividualID]*waitingQueue)}
}

// ScheduleFor inserts label into id's queue at dueTick. Every call adds an
// entry: two identical pushes run twice.
func (w *WaitingQMaps) ScheduleFor(id IndividualID, label string, dueTick int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	q, ok := w.queues[id]
	if !ok {
		q = &waitingQueue{}
		w.queues[id] = q
	}
	w.seq++
	heap.Push(&q.items, Scheduled{Label: label, DueTick: dueTick, seq: w.seq})
}

func (w *WaitingQMaps) queue(id IndividualID) *waitingQueue {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.queues[id]
}

// PopDue removes and returns every entry of id with DueTick <= tick, in
// due-tick order with ties in insertion order. Only the thread owning id
// for the current step may call it.
func (w *WaitingQMaps) PopDue(id IndividualID, tick int64) []Scheduled {
	q := w.queue(id)
	if q == nil {
		return nil
	}
	var due []Scheduled
	for q.items.Len() > 0 && q.items[0].DueTick <= tick {
		due = append(due, heap.Pop(&q.items).(Scheduled))
	}
	return due
}

// Len returns the number of pending entries for id.
func (w *WaitingQMaps) Len(id IndividualID) int {
	q := w.queue(id)
	if q == nil {
		return 0
	}
	return q.items.Len()
}

// NextDue returns the earliest due tick pending for id.
func (w *WaitingQMaps) NextDue(id IndividualID) (int64, bool) {
	q := w.queue(id)
	if q == nil || q.items.Len() == 0 {
		return 0, false
	}
	return q.items[0].DueTick, true
}

// Pending returns the total number of pending entries. Coordinator-only.
func (w *WaitingQMaps) Pending() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, q := range w.queues {
		n += q.items.Len()
	}
	return n
}

// HasDue reports whether any individual (not the environment) has an entry
// due at or before tick. Coordinator-only.
func (w *WaitingQMaps) HasDue(tick int64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for id, q := range w.queues {
		if id == EnvironmentID {
			continue
		}
		if q.items.Len() > 0 && q.items[0].DueTick <= tick {
			return true
		}
	}
	return false
}

// Individuals returns the ids that own a queue, sorted.
func (w *WaitingQMaps) Individuals() []IndividualID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]IndividualID, 0, len(w.queues))
	for id := range w.queues {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
