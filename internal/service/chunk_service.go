package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/lock"
	"github.com/prn-tf/pan-storage/internal/metrics"
	"github.com/prn-tf/pan-storage/internal/repository"
	"github.com/prn-tf/pan-storage/internal/storage"
)

// DefaultChunkTTL is how long a chunk counts towards completion.
const DefaultChunkTTL = 7 * 24 * time.Hour

// ChunkService tracks the chunks of an upload and merges them once all
// have arrived.
//
// Saving a chunk, checking completeness and merging run under one mutex so
// that two requests racing on the final chunk trigger at most one merge.
// A merge deletes the chunk records, so a late duplicate of the final chunk
// finds an incomplete upload. When a Locker is configured the same critical
// section also holds lock.Keys.ChunkUpload across server instances.
type ChunkService struct {
	chunks   repository.FileChunkRepository
	files    *FileService
	engine   storage.Engine
	ids      IDGenerator
	locker   lock.Locker
	lockOpts lock.Options
	reporter *ErrorReporter
	metrics  *metrics.Metrics
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu sync.Mutex
}

// ChunkServiceDeps holds the collaborators of a ChunkService.
// Locker, Reporter and Metrics are optional.
type ChunkServiceDeps struct {
	Chunks   repository.FileChunkRepository
	Files    *FileService
	Engine   storage.Engine
	IDs      IDGenerator
	Locker   lock.Locker
	Reporter *ErrorReporter
	Metrics  *metrics.Metrics

	// ChunkTTL defaults to DefaultChunkTTL.
	ChunkTTL time.Duration

	// LockOptions defaults to lock.DefaultOptions.
	LockOptions *lock.Options

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewChunkService creates a new ChunkService.
// The engine is wrapped with storage.WithValidation.
func NewChunkService(deps ChunkServiceDeps, logger zerolog.Logger) *ChunkService {
	s := &ChunkService{
		chunks:   deps.Chunks,
		files:    deps.Files,
		engine:   storage.WithValidation(deps.Engine),
		ids:      deps.IDs,
		locker:   deps.Locker,
		lockOpts: lock.DefaultOptions(),
		reporter: deps.Reporter,
		metrics:  deps.Metrics,
		ttl:      deps.ChunkTTL,
		now:      deps.Now,
		logger:   logger.With().Str("service", "chunk").Logger(),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultChunkTTL
	}
	if deps.LockOptions != nil {
		s.lockOpts = *deps.LockOptions
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// SaveChunkInput contains one chunk of a chunked upload.
type SaveChunkInput struct {
	UserID      int64
	Filename    string
	Identifier  string
	ChunkNumber int
	TotalChunks int
	ChunkSize   int64
	TotalSize   int64
	Body        io.Reader

	// AutoMerge merges the upload as soon as this chunk completes it.
	AutoMerge bool
}

// SaveChunkOutput contains the result of saving a chunk.
type SaveChunkOutput struct {
	Chunk *domain.FileChunk

	// MergeReady is true when every chunk of the upload is present.
	MergeReady bool

	// File is the merged file when AutoMerge ran.
	File *domain.PhysicalFile
}

// MergeInput identifies an upload to merge.
type MergeInput struct {
	UserID     int64
	Filename   string
	Identifier string

	// TotalChunks, when set, must match the number of active chunks.
	TotalChunks int

	// TotalSize is the size of the merged file. The merge fails with
	// domain.ErrSizeMismatch when the chunks add up to a different size.
	TotalSize int64
}

// =============================================================================
// Service Methods
// =============================================================================

// SaveChunk stores one chunk and records it.
// Re-sending a chunk number replaces the earlier chunk.
func (s *ChunkService) SaveChunk(ctx context.Context, input SaveChunkInput) (*SaveChunkOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out *SaveChunkOutput
	err := s.withUploadLock(ctx, input.UserID, input.Identifier, func(ctx context.Context) error {
		var err error
		out, err = s.saveChunk(ctx, input)
		return err
	})
	s.metrics.ChunkSaved(err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ChunkService) saveChunk(ctx context.Context, input SaveChunkInput) (*SaveChunkOutput, error) {
	realPath, err := s.engine.StoreChunk(ctx, &storage.StoreChunkRequest{
		Reader:      input.Body,
		Filename:    input.Filename,
		Identifier:  input.Identifier,
		UserID:      input.UserID,
		ChunkNumber: input.ChunkNumber,
		TotalChunks: input.TotalChunks,
		ChunkSize:   input.ChunkSize,
		TotalSize:   input.TotalSize,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BytesStored("chunk", input.ChunkSize)

	id, err := s.ids.Generate()
	if err != nil {
		s.metrics.IDFailure()
		s.files.compensate(ctx, input.UserID, []string{realPath}, err)
		return nil, err
	}

	now := s.now().UTC()
	chunk := &domain.FileChunk{
		ID:          id,
		Identifier:  input.Identifier,
		ChunkNumber: input.ChunkNumber,
		RealPath:    realPath,
		ExpiresAt:   now.Add(s.ttl),
		CreatorID:   input.UserID,
		CreatedAt:   now,
	}

	previousPath, err := s.chunks.Upsert(ctx, chunk)
	if err != nil {
		s.files.compensate(ctx, input.UserID, []string{realPath}, err)
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if previousPath != "" && previousPath != realPath {
		if err := s.engine.Delete(ctx, &storage.DeleteRequest{RealPaths: []string{previousPath}}); err != nil {
			s.logger.Warn().Err(err).Str("real_path", previousPath).Msg("failed to remove replaced chunk")
		}
	}

	s.logger.Debug().
		Int64("user_id", input.UserID).
		Str("identifier", input.Identifier).
		Int("chunk_number", input.ChunkNumber).
		Int("total_chunks", input.TotalChunks).
		Msg("chunk saved")

	complete, err := s.isComplete(ctx, input.Identifier, input.UserID, input.TotalChunks)
	if err != nil {
		return nil, err
	}

	out := &SaveChunkOutput{Chunk: chunk, MergeReady: complete}
	if complete && input.AutoMerge {
		file, err := s.merge(ctx, MergeInput{
			UserID:      input.UserID,
			Filename:    input.Filename,
			Identifier:  input.Identifier,
			TotalChunks: input.TotalChunks,
			TotalSize:   input.TotalSize,
		})
		if err != nil {
			return nil, err
		}
		out.File = file
	}
	return out, nil
}

// IsComplete reports whether the number of unexpired chunks equals totalChunks.
func (s *ChunkService) IsComplete(ctx context.Context, identifier string, userID int64, totalChunks int) (bool, error) {
	if totalChunks <= 0 {
		return false, domain.NewValidationError("total chunks")
	}
	return s.isComplete(ctx, identifier, userID, totalChunks)
}

func (s *ChunkService) isComplete(ctx context.Context, identifier string, userID int64, totalChunks int) (bool, error) {
	count, err := s.chunks.Count(ctx, repository.ChunkFilter{
		Identifier: identifier,
		CreatorID:  userID,
		ActiveAt:   s.now(),
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return count == totalChunks, nil
}

// UploadedChunks returns the sorted numbers of unexpired chunks, so a
// client can resume an interrupted upload.
func (s *ChunkService) UploadedChunks(ctx context.Context, identifier string, userID int64) ([]int, error) {
	if identifier == "" {
		return nil, domain.NewValidationError("identifier")
	}

	chunks, err := s.activeChunks(ctx, identifier, userID)
	if err != nil {
		return nil, err
	}

	numbers := make([]int, len(chunks))
	for i, c := range chunks {
		numbers[i] = c.ChunkNumber
	}
	sort.Ints(numbers)
	return numbers, nil
}

// Merge reassembles an upload from its unexpired chunks.
func (s *ChunkService) Merge(ctx context.Context, input MergeInput) (*domain.PhysicalFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var file *domain.PhysicalFile
	err := s.withUploadLock(ctx, input.UserID, input.Identifier, func(ctx context.Context) error {
		var err error
		file, err = s.merge(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (s *ChunkService) merge(ctx context.Context, input MergeInput) (file *domain.PhysicalFile, err error) {
	start := time.Now()
	defer func() { s.metrics.Merged(start, err) }()

	if input.Identifier == "" {
		return nil, domain.NewValidationError("identifier")
	}
	if input.TotalSize <= 0 {
		return nil, domain.NewValidationError("total size")
	}

	chunks, err := s.activeChunks(ctx, input.Identifier, input.UserID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.NewDomainError(domain.ErrChunksNotFound, "merge", input.Identifier)
	}
	if input.TotalChunks > 0 && len(chunks) != input.TotalChunks {
		return nil, domain.NewDomainError(domain.ErrChunksIncomplete,
			fmt.Sprintf("have %d of %d chunks", len(chunks), input.TotalChunks), input.Identifier)
	}

	domain.SortChunks(chunks)

	realPath, err := s.engine.MergeFile(ctx, &storage.MergeRequest{
		Filename:   input.Filename,
		Identifier: input.Identifier,
		UserID:     input.UserID,
		RealPaths:  domain.ChunkPaths(chunks),
		TotalSize:  input.TotalSize,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BytesStored("merge", input.TotalSize)

	// The chunk bytes are gone once MergeFile succeeds, so the records go too,
	// whether or not the merged file can be registered.
	defer s.dropChunkRecords(ctx, input.UserID, chunks)

	file, _, err = s.files.register(ctx, input.UserID, input.Filename, input.Identifier, realPath, input.TotalSize)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("file_id", file.ID).
		Int64("user_id", input.UserID).
		Str("identifier", input.Identifier).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("chunks merged")

	return file, nil
}

func (s *ChunkService) dropChunkRecords(ctx context.Context, userID int64, chunks []*domain.FileChunk) {
	if _, err := s.chunks.DeleteByIDs(ctx, domain.ChunkIDs(chunks)); err != nil {
		s.reporter.Reportf(ctx, userID, "failed to delete %d merged chunk records for %s: %v",
			len(chunks), chunks[0].Identifier, err)
	}
}

func (s *ChunkService) activeChunks(ctx context.Context, identifier string, userID int64) ([]*domain.FileChunk, error) {
	chunks, err := s.chunks.List(ctx, repository.ChunkFilter{
		Identifier: identifier,
		CreatorID:  userID,
		ActiveAt:   s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return chunks, nil
}

// withUploadLock runs fn holding the upload's distributed lock, if any.
func (s *ChunkService) withUploadLock(ctx context.Context, userID int64, identifier string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}

	key := lock.Keys.ChunkUpload(userID, identifier)
	err := lock.WithLock(ctx, s.locker, key, s.lockOpts, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return domain.NewDomainError(domain.ErrMergeInProgress, "upload locked by another instance", identifier)
	}
	return err
}
