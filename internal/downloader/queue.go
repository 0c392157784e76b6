package downloader

import (
	"context"
	"sync"

	"github.com/yungbote/nftbridge-backend/internal/types"
)

// tierWeights drives weighted round-robin draining: within one round a tier
// yields at most its weight in tasks, so lower tiers always make progress.
var tierWeights = [5]int{
	types.PriorityImmediate:  16,
	types.PriorityHigh:       8,
	types.PriorityMedium:     4,
	types.PriorityLow:        2,
	types.PriorityBestEffort: 1,
}

// Queue is an in-memory priority queue of download tasks with per-id
// deduplication: pushing an id that is already pending coalesces the two
// requests instead of queueing twice.
type Queue struct {
	mu      sync.Mutex
	tiers   [5][]string
	pending map[string]*types.DownloadTask
	credits [5]int
	notify  chan struct{}
	closed  bool
}

func NewQueue() *Queue {
	q := &Queue{
		pending: make(map[string]*types.DownloadTask),
		notify:  make(chan struct{}, 1),
	}
	q.credits = tierWeights
	return q
}

// Push enqueues or coalesces. Coalescing takes the maximum priority, keeps
// Force when either request forced, and only suppresses the notification
// when both requests asked for suppression.
func (q *Queue) Push(task types.DownloadTask) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	existing, ok := q.pending[task.ID]
	if ok {
		merged := *existing
		if task.Priority > merged.Priority {
			// Move between tiers; the stale tier entry is skipped on pop.
			q.tiers[task.Priority] = append(q.tiers[task.Priority], task.ID)
			merged.Priority = task.Priority
		}
		merged.Force = merged.Force || task.Force
		merged.Suppress = merged.Suppress && task.Suppress
		if task.ScheduledAt.Before(merged.ScheduledAt) {
			merged.ScheduledAt = task.ScheduledAt
		}
		q.pending[task.ID] = &merged
		q.mu.Unlock()
		return
	}
	t := task
	q.pending[task.ID] = &t
	q.tiers[task.Priority] = append(q.tiers[task.Priority], task.ID)
	q.mu.Unlock()
	q.wake()
}

// Pop blocks until a task is available, the queue closes, or ctx ends.
// A closed empty queue returns false.
func (q *Queue) Pop(ctx context.Context) (types.DownloadTask, bool) {
	for {
		q.mu.Lock()
		if task, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return task, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			// Pass the wake token on so every other blocked Pop unblocks too.
			q.wake()
			return types.DownloadTask{}, false
		}
		select {
		case <-ctx.Done():
			return types.DownloadTask{}, false
		case <-q.notify:
		}
	}
}

func (q *Queue) popLocked() (types.DownloadTask, bool) {
	for pass := 0; pass < 2; pass++ {
		for tier := int(types.PriorityImmediate); tier >= int(types.PriorityBestEffort); tier-- {
			if q.credits[tier] <= 0 {
				continue
			}
			if task, ok := q.popTierLocked(tier); ok {
				q.credits[tier]--
				return task, true
			}
		}
		// Either every non-empty tier is out of credits or everything is
		// empty; start a new round and rescan once.
		q.credits = tierWeights
	}
	return types.DownloadTask{}, false
}

func (q *Queue) popTierLocked(tier int) (types.DownloadTask, bool) {
	for len(q.tiers[tier]) > 0 {
		id := q.tiers[tier][0]
		q.tiers[tier] = q.tiers[tier][1:]
		task, ok := q.pending[id]
		// Skip stale entries left behind by priority coalescing.
		if !ok || int(task.Priority) != tier {
			continue
		}
		delete(q.pending, id)
		return *task, true
	}
	return types.DownloadTask{}, false
}

// Len reports the number of distinct pending ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close makes Pop drain remaining tasks and then return false. The notify
// channel is never closed: a Push racing with Close may still send a wake,
// and a send on a closed channel would panic mid-shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
