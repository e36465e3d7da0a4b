// Package pending holds mutations that failed against the remote store and
// are waiting to be replayed. The queue lives in memory only; operations
// queued at the time the process dies are lost. That loss is accepted and
// documented rather than masked.
package pending

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tabula-sync/tabula/internal/couch"
	"github.com/tabula-sync/tabula/internal/domain"
)

// Kind tags what a queued operation will do when replayed.
type Kind string

const (
	KindAdd    Kind = "add"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Operation is one not-yet-applied mutation. Exactly one of the payload
// fields is meaningful for a given Kind: Doc for add, RemoteID+Fields for
// update, RemoteID for delete.
type Operation struct {
	ID       uuid.UUID
	Kind     Kind
	Doc      couch.Document
	RemoteID string
	Fields   domain.FavoriteUpdate
}

// Queue is an ordered list of pending operations. Replay itself lives on
// the favorites service so queued mutations go through the same code paths
// as live ones.
type Queue struct {
	mu  sync.Mutex
	ops []Operation
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends op, assigning it an id for log correlation.
func (q *Queue) Enqueue(op Operation) uuid.UUID {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()
	return op.ID
}

// TakeAll snapshots the queue in order and clears it. Operations that fail
// replay are expected to come back via Requeue.
func (q *Queue) TakeAll() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.ops
	q.ops = nil
	return ops
}

// Requeue re-appends a failed operation so it is not lost.
func (q *Queue) Requeue(op Operation) {
	q.mu.Lock()
	q.ops = append(q.ops, op)
	q.mu.Unlock()
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}
