// Package ingest provides the asynchronous embedding worker pool. Messages
// are stored synchronously at ingestion; their embeddings are generated by
// this pool afterwards, keeping the event hot path free of provider calls.
package ingest

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/embeddings"
	"github.com/mnemohq/mnemo/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of embedding work: a stored message awaiting its vector.
type Job struct {
	MessageID string
	Text      string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Store receives the computed embeddings via UpdateEmbedding.
	Store storage.Driver

	// Embedder generates the embeddings. Wrap it with the cached decorator
	// so re-ingested text never hits the provider twice.
	Embedder embeddings.Embedder

	// ModelTag is recorded alongside each embedding.
	ModelTag string

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel.
	QueueSize uint

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool processes embedding jobs asynchronously via a bounded worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Store == nil || c.Embedder == nil {
		return nil, fmt.Errorf("ingest pool requires a store and an embedder")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a job for processing. Returns true if enqueued, false if
// the queue is full and the job was dropped; the backfill command sweeps up
// dropped messages later via FindUnembedded.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		return true
	default:
		p.logger.Error("embedding job dropped, queue full",
			zap.String("message_id", job.MessageID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("embedding worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("embedding worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if job.Text == "" {
		return
	}

	result, err := p.config.Embedder.Embed(ctx, job.Text)
	if err != nil {
		p.logger.Error("async embedding failed",
			zap.String("message_id", job.MessageID),
			zap.Error(err),
		)
		return
	}

	if err := p.config.Store.UpdateEmbedding(ctx, job.MessageID,
		pgvector.NewVector(result.Vector), p.config.ModelTag); err != nil {
		p.logger.Error("storing embedding failed",
			zap.String("message_id", job.MessageID),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("embedding stored",
		zap.String("message_id", job.MessageID),
	)
}

// Backfill embeds every stored message with a missing embedding, in batches,
// until none remain or ctx is cancelled. It is used by the offline backfill
// command and returns the number of messages embedded.
func (p *Pool) Backfill(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := p.config.Store.FindUnembedded(ctx, batchSize)
		if err != nil {
			return total, fmt.Errorf("finding unembedded messages: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}

		results, err := p.config.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embedding batch: %w", err)
		}

		for i := range batch {
			if err := p.config.Store.UpdateEmbedding(ctx, batch[i].ID,
				pgvector.NewVector(results[i].Vector), p.config.ModelTag); err != nil {
				return total, fmt.Errorf("storing embedding for %s: %w", batch[i].ID, err)
			}
			total++
		}

		p.logger.Info("backfilled embeddings",
			zap.Int("batch", len(batch)),
			zap.Int("total", total),
		)
	}
}
