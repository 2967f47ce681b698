package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/clinsight/ctr-registry-api/internal/realtime"
)

// auditRecorder appends one audit row inside the caller's transaction.
// Every mutating service path calls it exactly once per logical
// mutation; a recording failure fails the transaction.
type auditRecorder interface {
	Record(ctx context.Context, q sqlx.ExtContext, tableName, recordID, action string, actorID *string, payload interface{}) error
}

// broadcaster publishes committed-mutation events to the realtime hub.
// Callers must only invoke it after their transaction has committed.
type broadcaster interface {
	Publish(event realtime.Event)
}

// cacheInvalidator drops cached snapshots matching a key pattern.
type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// mutationMetrics receives mutation-path observability signals.
type mutationMetrics interface {
	MutationCommitted(entity, action string)
	CounterClamped()
}

// trackerCacheKey is the cache key for one effort's tracker matrix.
func trackerCacheKey(effortID string) string {
	return "trackers:effort:" + effortID
}

// trackerCachePattern matches every cached view of one effort.
func trackerCachePattern(effortID string) string {
	return "trackers:effort:" + effortID + "*"
}
