package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/nftbridge-backend/internal/logger"
)

// ReconcileQueue holds ids of entities whose derived state failed validation.
// One redis list per entity kind; a repair worker drains them out of band.
type ReconcileQueue struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewReconcileQueue(rdb *goredis.Client, baseLog *logger.Logger) *ReconcileQueue {
	return &ReconcileQueue{
		rdb: rdb,
		log: baseLog.With("service", "ReconcileQueue"),
	}
}

func reconcileKey(kind string) string { return "reconcile:" + kind }

func (q *ReconcileQueue) EnqueueItem(ctx context.Context, id string) error {
	return q.enqueue(ctx, "item", id)
}

func (q *ReconcileQueue) EnqueueOwnership(ctx context.Context, id string) error {
	return q.enqueue(ctx, "ownership", id)
}

func (q *ReconcileQueue) EnqueueCollection(ctx context.Context, id string) error {
	return q.enqueue(ctx, "collection", id)
}

func (q *ReconcileQueue) enqueue(ctx context.Context, kind, id string) error {
	if err := q.rdb.RPush(ctx, reconcileKey(kind), id).Err(); err != nil {
		return fmt.Errorf("reconcile enqueue %s %s: %w", kind, id, err)
	}
	q.log.Warn("entity enqueued for reconciliation", "kind", kind, "id", id)
	return nil
}

// Dequeue pops the oldest id for a kind; empty string when the list is empty.
func (q *ReconcileQueue) Dequeue(ctx context.Context, kind string) (string, error) {
	id, err := q.rdb.LPop(ctx, reconcileKey(kind)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Depth reports the queued backlog for a kind.
func (q *ReconcileQueue) Depth(ctx context.Context, kind string) (int64, error) {
	return q.rdb.LLen(ctx, reconcileKey(kind)).Result()
}
