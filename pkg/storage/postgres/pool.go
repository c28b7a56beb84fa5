// Package postgres provides the PostgreSQL storage backend: pgvector
// similarity search, full-text keyword search, and an instrumented pgxpool
// connection pool with reconnect backoff and slow-query detection.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"
)

// Pool tuning defaults. Deployment profiles override these through
// PoolConfig.
const (
	DefaultMinConns             = 2
	DefaultMaxConns             = 10
	DefaultMaxConnIdleTime      = 5 * time.Minute
	DefaultStatementTimeout     = 10 * time.Second
	DefaultSlowQueryThreshold   = time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 500 * time.Millisecond
)

// PoolConfig holds connection-pool configuration.
type PoolConfig struct {
	// URL is the PostgreSQL connection URI.
	URL string

	// MinConns and MaxConns bound the pool size.
	MinConns int32
	MaxConns int32

	// MaxConnIdleTime evicts idle connections.
	MaxConnIdleTime time.Duration

	// StatementTimeout is enforced server-side on every connection.
	StatementTimeout time.Duration

	// SlowQueryThreshold flags queries slower than this.
	SlowQueryThreshold time.Duration

	// MaxReconnectAttempts bounds the reconnect backoff loop.
	MaxReconnectAttempts int

	// ReconnectBaseDelay is the initial backoff delay, doubled per attempt.
	ReconnectBaseDelay time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MinConns <= 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	if c.StatementTimeout <= 0 {
		c.StatementTimeout = DefaultStatementTimeout
	}
	if c.SlowQueryThreshold <= 0 {
		c.SlowQueryThreshold = DefaultSlowQueryThreshold
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	return c
}

// PoolStats is a point-in-time snapshot of pool and query metrics.
type PoolStats struct {
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	TotalConns    int32 `json:"total_conns"`
	WaitingOnLock int64 `json:"waiting_on_lock"`

	QueryCount     int64 `json:"query_count"`
	SlowQueryCount int64 `json:"slow_query_count"`
	ErrorCount     int64 `json:"error_count"`

	// AvgQueryMillis is the mean query duration since startup.
	AvgQueryMillis float64 `json:"avg_query_millis"`
}

// Pool wraps pgxpool with query instrumentation and bounded-backoff
// reconnection.
type Pool struct {
	pool   *pgxpool.Pool
	cfg    PoolConfig
	tracer *queryTracer
	logger *zap.Logger

	healthy atomic.Bool
}

// NewPool connects to PostgreSQL with exponential-backoff retries bounded by
// MaxReconnectAttempts.
func NewPool(ctx context.Context, cfg PoolConfig, logger *zap.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()

	tracer := newQueryTracer(cfg.SlowQueryThreshold, logger)

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection url: %w", err)
	}

	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.Tracer = tracer
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] =
		strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	p := &Pool{
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}

	if err := p.connect(ctx, poolCfg); err != nil {
		return nil, err
	}

	return p, nil
}

// connect attempts to establish and verify the pool, backing off
// exponentially between attempts. Exhausting attempts is a hard failure for
// the caller but never a panic.
func (p *Pool) connect(ctx context.Context, poolCfg *pgxpool.Config) error {
	delay := p.cfg.ReconnectBaseDelay

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxReconnectAttempts; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				p.pool = pool
				p.healthy.Store(true)
				p.logger.Info("database pool connected",
					zap.Int32("min_conns", p.cfg.MinConns),
					zap.Int32("max_conns", p.cfg.MaxConns),
				)
				return nil
			}
			pool.Close()
		}
		lastErr = err

		p.logger.Warn("database connection failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	p.healthy.Store(false)
	return fmt.Errorf("database unreachable after %d attempts: %w",
		p.cfg.MaxReconnectAttempts, lastErr)
}

// Ping verifies connectivity and updates the health flag.
func (p *Pool) Ping(ctx context.Context) error {
	err := p.pool.Ping(ctx)
	p.healthy.Store(err == nil)
	return err
}

// Healthy reports the result of the most recent connectivity check.
func (p *Pool) Healthy() bool {
	return p.healthy.Load()
}

// Stats returns a snapshot of pool and query metrics.
func (p *Pool) Stats() PoolStats {
	stat := p.pool.Stat()
	queries, slow, errs, totalMillis := p.tracer.snapshot()

	var avg float64
	if queries > 0 {
		avg = float64(totalMillis) / float64(queries)
	}

	return PoolStats{
		AcquiredConns:  stat.AcquiredConns(),
		IdleConns:      stat.IdleConns(),
		TotalConns:     stat.TotalConns(),
		WaitingOnLock:  stat.EmptyAcquireCount(),
		QueryCount:     queries,
		SlowQueryCount: slow,
		ErrorCount:     errs,
		AvgQueryMillis: avg,
	}
}

// Close closes the underlying pool.
func (p *Pool) Close() {
	p.pool.Close()
}
