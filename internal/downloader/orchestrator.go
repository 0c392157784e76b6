// Package downloader schedules, rate-limits, and executes asynchronous
// metadata downloads feeding the item aggregates.
package downloader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yungbote/nftbridge-backend/internal/logger"
	"github.com/yungbote/nftbridge-backend/internal/optimistic"
	"github.com/yungbote/nftbridge-backend/internal/repos"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

// ChangeNotifier re-publishes an item after its metadata changed.
type ChangeNotifier interface {
	OnItemChanged(ctx context.Context, id types.ItemID) error
}

// Orchestrator ties the queue, admission control, worker pool, and executor
// together. At most one download per id is in flight; requests arriving for a
// running id are parked and re-queued when it finishes.
type Orchestrator struct {
	cfg      Config
	queue    *Queue
	entries  repos.DownloadEntryRepo
	executor *Executor
	notifier ChangeNotifier
	retrier  *optimistic.Retrier
	log      *logger.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	deferred map[string]types.DownloadTask

	wg sync.WaitGroup
}

func NewOrchestrator(
	cfg Config,
	entries repos.DownloadEntryRepo,
	executor *Executor,
	notifier ChangeNotifier,
	baseLog *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		queue:    NewQueue(),
		entries:  entries,
		executor: executor,
		notifier: notifier,
		retrier: optimistic.NewRetrier(optimistic.Policy{
			Retryable: func(err error) bool { return errors.Is(err, repos.ErrVersionConflict) },
		}),
		log:      baseLog.With("service", "DownloadOrchestrator"),
		inflight: make(map[string]struct{}),
		deferred: make(map[string]types.DownloadTask),
	}
}

// Schedule admits one task. Non-forced tasks are dropped when the entry is
// terminal, was touched within the debounce window, or has counters above the
// configured ceilings; the last two double as backpressure against noisy ids.
func (o *Orchestrator) Schedule(ctx context.Context, task types.DownloadTask) error {
	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = time.Now()
	}
	entry, err := o.entries.Get(ctx, nil, task.ID)
	if err != nil {
		return err
	}
	if entry != nil && !task.Force {
		switch {
		case entry.Status.Terminal():
			o.log.Debug("skipping download for terminal entry", "id", task.ID, "status", string(entry.Status))
			return nil
		case time.Since(entry.UpdatedAt) < o.cfg.DebounceWindow:
			o.log.Debug("skipping download inside debounce window", "id", task.ID)
			return nil
		case entry.Fails > o.cfg.MaxFails:
			o.log.Debug("skipping download over fail ceiling", "id", task.ID, "fails", entry.Fails)
			return nil
		case entry.Downloads > o.cfg.MaxDownloads:
			o.log.Debug("skipping download over download ceiling", "id", task.ID, "downloads", entry.Downloads)
			return nil
		}
	}

	if entry == nil || task.Force {
		if err := o.markScheduled(ctx, task); err != nil {
			return err
		}
	}
	o.queue.Push(task)
	return nil
}

// markScheduled creates the entry, or starts a new generation for a forced
// refresh. Non-forced reschedules never touch the entry here so partial
// failure memory survives until execution.
func (o *Orchestrator) markScheduled(ctx context.Context, task types.DownloadTask) error {
	now := time.Now()
	return o.retrier.Run(ctx, func(ctx context.Context) error {
		current, err := o.entries.Get(ctx, nil, task.ID)
		if err != nil {
			return err
		}
		if current == nil {
			current = &types.DownloadEntry{ID: task.ID}
		} else if !task.Force {
			return nil
		}
		next := *current
		next.Status = types.DownloadStatusScheduled
		next.ScheduledAt = &now
		if task.Force {
			next.Retries = 0
			next.FailedProviders = nil
			next.ErrorMessage = ""
		}
		_, err = o.entries.Save(ctx, nil, &next)
		return err
	})
}

// Run starts the worker pool and blocks until ctx ends and the workers exit.
// Tasks still queued at cancellation are dropped, not executed.
func (o *Orchestrator) Run(ctx context.Context) {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}
	<-ctx.Done()
	o.queue.Close()
	o.wg.Wait()
}

// Start runs the pool in the background; Stop is done by cancelling ctx.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.Run(ctx)
}

func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	for {
		task, ok := o.queue.Pop(ctx)
		if !ok {
			return
		}
		if !o.begin(task) {
			continue
		}
		o.execute(ctx, task)
		o.finish(task.ID)
	}
}

// begin claims the id; a task for a running id is parked instead.
func (o *Orchestrator) begin(task types.DownloadTask) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.inflight[task.ID]; running {
		o.deferred[task.ID] = coalesceTasks(o.deferred[task.ID], task)
		return false
	}
	o.inflight[task.ID] = struct{}{}
	return true
}

func (o *Orchestrator) finish(id string) {
	o.mu.Lock()
	parked, ok := o.deferred[id]
	delete(o.deferred, id)
	delete(o.inflight, id)
	o.mu.Unlock()
	if ok {
		o.queue.Push(parked)
	}
}

func (o *Orchestrator) execute(ctx context.Context, task types.DownloadTask) {
	entry, err := o.executor.Execute(ctx, task)
	if err != nil {
		o.log.Error("download execution failed", "id", task.ID, "error", err)
		return
	}
	if entry == nil {
		return
	}

	switch entry.Status {
	case types.DownloadStatusRetry, types.DownloadStatusRetryPartial:
		o.reschedule(task, entry.Retries)
	}

	hasUsableData := entry.Status == types.DownloadStatusSuccess ||
		(entry.Status == types.DownloadStatusRetryPartial && entry.Data != nil)
	if !hasUsableData || task.Suppress {
		return
	}
	id, err := types.ParseItemID(entry.ID)
	if err != nil {
		o.log.Warn("download entry has malformed id", "id", entry.ID)
		return
	}
	if err := o.notifier.OnItemChanged(ctx, id); err != nil {
		o.log.Error("post-download notification failed", "id", entry.ID, "error", err)
	}
}

// reschedule re-queues the failed generation after a linear backoff. The
// retry keeps the task's priority but drops Force: the new generation was
// already opened by the first execution.
func (o *Orchestrator) reschedule(task types.DownloadTask, retries int) {
	backoff := time.Duration(retries) * o.cfg.RetryBackoff
	next := types.DownloadTask{
		ID:          task.ID,
		Priority:    task.Priority,
		Suppress:    task.Suppress,
		ScheduledAt: time.Now().Add(backoff),
	}
	time.AfterFunc(backoff, func() {
		o.queue.Push(next)
	})
	o.log.Info("download rescheduled", "id", task.ID, "retries", retries, "backoff", backoff.String())
}

// QueueDepth reports distinct pending ids, for the health endpoint.
func (o *Orchestrator) QueueDepth() int {
	return o.queue.Len()
}

func coalesceTasks(a, b types.DownloadTask) types.DownloadTask {
	if a.ID == "" {
		return b
	}
	out := a
	if b.Priority > out.Priority {
		out.Priority = b.Priority
	}
	out.Force = out.Force || b.Force
	out.Suppress = out.Suppress && b.Suppress
	if b.ScheduledAt.Before(out.ScheduledAt) {
		out.ScheduledAt = b.ScheduledAt
	}
	return out
}
