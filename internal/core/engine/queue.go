package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BlenoCardoso/despesas-b-f-sub001/internal/core/change"
)

// queuedOperation is one outstanding change awaiting delivery.
type queuedOperation struct {
	id       string
	change   change.ChangeSet
	attempts int
	queuedAt time.Time
}

// operationQueue is the manager-owned FIFO of outstanding changes. The
// manager is its only mutator; the mutex covers the host threads calling
// Sync concurrently with the drain goroutine.
type operationQueue struct {
	mu  sync.Mutex
	ops []*queuedOperation
}

func newOperationQueue() *operationQueue {
	return &operationQueue{}
}

func (q *operationQueue) enqueue(cs change.ChangeSet) *queuedOperation {
	op := &queuedOperation{
		id:       uuid.NewString(),
		change:   cs,
		queuedAt: time.Now(),
	}
	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()
	return op
}

// batch returns up to n operations from the head without removing them;
// failed deliveries stay queued for the next tick.
func (q *operationQueue) batch(n int) []*queuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.ops) {
		n = len(q.ops)
	}
	out := make([]*queuedOperation, n)
	copy(out, q.ops[:n])
	return out
}

func (q *operationQueue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, op := range q.ops {
		if op.id == id {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			return
		}
	}
}

func (q *operationQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
