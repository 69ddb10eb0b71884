package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/lock"
	"github.com/prn-tf/pan-storage/internal/metrics"
	"github.com/prn-tf/pan-storage/internal/repository"
	"github.com/prn-tf/pan-storage/internal/storage"
)

// ChunkJanitor removes chunks of uploads that were never completed.
type ChunkJanitor struct {
	chunks  repository.FileChunkRepository
	engine  storage.Engine
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  JanitorConfig
	now     func() time.Time

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// JanitorConfig contains expired chunk collection configuration.
type JanitorConfig struct {
	// Interval is how often to run collection.
	Interval time.Duration

	// BatchSize is the maximum number of chunks fetched per query.
	BatchSize int

	// MaxBatches bounds the number of batches per run.
	MaxBatches int

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool
}

// DefaultJanitorConfig returns sensible defaults.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Interval:   time.Hour,
		BatchSize:  500,
		MaxBatches: 20,
	}
}

// NewChunkJanitor creates a new ChunkJanitor. locker may be nil.
func NewChunkJanitor(
	chunks repository.FileChunkRepository,
	engine storage.Engine,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config JanitorConfig,
) *ChunkJanitor {
	defaults := DefaultJanitorConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxBatches <= 0 {
		config.MaxBatches = defaults.MaxBatches
	}

	return &ChunkJanitor{
		chunks:   chunks,
		engine:   storage.WithValidation(engine),
		locker:   locker,
		metrics:  m,
		logger:   logger.With().Str("service", "chunk_janitor").Logger(),
		config:   config,
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the collection scheduler.
func (j *ChunkJanitor) Start() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()

	j.logger.Info().
		Dur("interval", j.config.Interval).
		Int("batch_size", j.config.BatchSize).
		Bool("dry_run", j.config.DryRun).
		Msg("starting chunk janitor")

	go j.runLoop()
}

// Stop stops the scheduler and waits for a running pass to finish.
func (j *ChunkJanitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.mu.Unlock()

	close(j.stopChan)
	<-j.doneChan

	j.logger.Info().Msg("chunk janitor stopped")
}

func (j *ChunkJanitor) runLoop() {
	defer close(j.doneChan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-j.stopChan
		cancel()
	}()

	// Run immediately on start
	j.RunOnce(ctx)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-j.stopChan:
			return
		}
	}
}

// JanitorResult contains the result of a collection run.
type JanitorResult struct {
	// ChunksDeleted is the number of chunk records removed (or that would be, on a dry run).
	ChunksDeleted int64

	// Errors is the number of errors encountered.
	Errors int

	// Skipped is true when another instance held the collection lock.
	Skipped bool

	// Duration is how long the run took.
	Duration time.Duration
}

// RunOnce executes a single collection run.
// This can be called manually or by the scheduler.
func (j *ChunkJanitor) RunOnce(ctx context.Context) JanitorResult {
	start := time.Now()
	result := JanitorResult{}

	if j.locker != nil {
		key := lock.Keys.ChunkGC()
		ttl := max(j.config.Interval/2, 5*time.Minute)

		acquired, err := j.locker.Acquire(ctx, key, ttl)
		if err != nil {
			j.logger.Error().Err(err).Msg("failed to acquire janitor lock")
			result.Errors++
			result.Duration = time.Since(start)
			return result
		}
		if !acquired {
			j.logger.Debug().Msg("janitor lock held by another process, skipping run")
			result.Skipped = true
			result.Duration = time.Since(start)
			return result
		}
		defer func() {
			if _, err := j.locker.Release(context.WithoutCancel(ctx), key); err != nil {
				j.logger.Error().Err(err).Msg("failed to release janitor lock")
			}
		}()
	}

	cutoff := j.now()
	for batch := 0; batch < j.config.MaxBatches; batch++ {
		if ctx.Err() != nil {
			break
		}

		expired, err := j.chunks.ListExpired(ctx, cutoff, j.config.BatchSize)
		if err != nil {
			j.logger.Error().Err(err).Msg("failed to list expired chunks")
			result.Errors++
			break
		}
		if len(expired) == 0 {
			break
		}

		if j.config.DryRun {
			for _, c := range expired {
				j.logger.Info().
					Str("identifier", c.Identifier).
					Int("chunk_number", c.ChunkNumber).
					Str("real_path", c.RealPath).
					Msg("[DRY RUN] would delete expired chunk")
			}
			result.ChunksDeleted += int64(len(expired))
			break
		}

		removed := j.removeBytes(ctx, expired, &result)
		if len(removed) == 0 {
			break
		}

		n, err := j.chunks.DeleteByIDs(ctx, removed)
		if err != nil {
			j.logger.Error().Err(err).Msg("failed to delete expired chunk records")
			result.Errors++
			break
		}
		result.ChunksDeleted += n

		if len(expired) < j.config.BatchSize {
			break
		}
	}

	result.Duration = time.Since(start)
	if !j.config.DryRun {
		j.metrics.ChunksCollected(result.ChunksDeleted)
	}

	j.logger.Info().
		Int64("chunks_deleted", result.ChunksDeleted).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Bool("dry_run", j.config.DryRun).
		Msg("chunk janitor run completed")

	return result
}

// removeBytes deletes each chunk's bytes and returns the IDs whose bytes are gone.
// Chunks whose bytes could not be removed keep their records for the next run.
func (j *ChunkJanitor) removeBytes(ctx context.Context, chunks []*domain.FileChunk, result *JanitorResult) []int64 {
	removed := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		if err := j.engine.Delete(ctx, &storage.DeleteRequest{RealPaths: []string{c.RealPath}}); err != nil {
			j.logger.Error().
				Err(err).
				Str("real_path", c.RealPath).
				Msg("failed to delete expired chunk bytes")
			result.Errors++
			continue
		}
		removed = append(removed, c.ID)
	}
	return removed
}
