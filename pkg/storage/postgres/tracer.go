package postgres

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ctxKey struct{}

type queryStart struct {
	sql     string
	startAt time.Time
}

// queryTracer implements pgx.QueryTracer: it counts queries, errors, and
// total duration, and flags queries slower than the threshold.
type queryTracer struct {
	threshold time.Duration
	logger    *zap.Logger

	queries     atomic.Int64
	slowQueries atomic.Int64
	errors      atomic.Int64
	totalMillis atomic.Int64
}

func newQueryTracer(threshold time.Duration, logger *zap.Logger) *queryTracer {
	return &queryTracer{threshold: threshold, logger: logger}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, ctxKey{}, queryStart{
		sql:     data.SQL,
		startAt: time.Now(),
	})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(ctxKey{}).(queryStart)
	if !ok {
		return
	}

	elapsed := time.Since(start.startAt)
	t.queries.Add(1)
	t.totalMillis.Add(elapsed.Milliseconds())

	if data.Err != nil {
		t.errors.Add(1)
	}

	if elapsed >= t.threshold {
		t.slowQueries.Add(1)
		t.logger.Warn("slow query",
			zap.Duration("elapsed", elapsed),
			zap.String("sql", start.sql),
		)
	}
}

func (t *queryTracer) snapshot() (queries, slow, errs, totalMillis int64) {
	return t.queries.Load(), t.slowQueries.Load(), t.errors.Load(), t.totalMillis.Load()
}
