package tui

import (
	"sync"

	"vergabeflow/internal/types"
)

// NoticeQueue collects notices raised while a command runs off the UI loop.
// The model drains it when the command's result arrives.
type NoticeQueue struct {
	mu    sync.Mutex
	items []types.Notice
}

// Notify queues n.
func (q *NoticeQueue) Notify(n types.Notice) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
}

// Drain returns and clears the queued notices.
func (q *NoticeQueue) Drain() []types.Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
