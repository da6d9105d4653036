package validation

import (
	"sync"

	"github.com/google/uuid"
)

// Queue is the set of pointers awaiting validation. Two actors touch it (API
// callers enqueue, the worker drains), so it is mutex-guarded. Drain empties
// the set in one shot: a pointer re-enqueued mid-cycle lands in the next
// cycle, never the one in flight.
type Queue struct {
	mu      sync.Mutex
	pending map[uuid.UUID]struct{}
}

func NewQueue() *Queue {
	return &Queue{pending: make(map[uuid.UUID]struct{})}
}

func (q *Queue) Enqueue(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	q.mu.Lock()
	q.pending[id] = struct{}{}
	q.mu.Unlock()
}

func (q *Queue) Remove(id uuid.UUID) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}

func (q *Queue) Contains(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[id]
	return ok
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Drain() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	q.pending = make(map[uuid.UUID]struct{})
	return ids
}
