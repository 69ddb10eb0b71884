// Package repository defines data access interfaces for pan storage.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, SQLite, in-memory for testing) while keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/pan-storage/internal/domain"
)

// =============================================================================
// Physical File Repository
// =============================================================================

// PhysicalFileRepository defines the interface for stored content records.
type PhysicalFileRepository interface {
	// Create inserts a new record.
	// Returns domain.ErrPhysicalFileExists if the creator already has a
	// record with the same identifier.
	Create(ctx context.Context, file *domain.PhysicalFile) error

	// GetByID retrieves a record by ID.
	// Returns domain.ErrPhysicalFileNotFound if no record exists.
	GetByID(ctx context.Context, id int64) (*domain.PhysicalFile, error)

	// List returns the records matching filter, oldest first.
	List(ctx context.Context, filter PhysicalFileFilter) ([]*domain.PhysicalFile, error)

	// Delete removes records by ID. Missing IDs are ignored.
	// Returns the number of rows removed.
	Delete(ctx context.Context, ids []int64) (int64, error)
}

// PhysicalFileFilter selects physical file records. Zero fields are ignored.
type PhysicalFileFilter struct {
	CreatorID  int64
	Identifier string
	IDs        []int64
	Limit      int
}

// =============================================================================
// File Chunk Repository
// =============================================================================

// FileChunkRepository defines the interface for chunk bookkeeping.
type FileChunkRepository interface {
	// Upsert records a chunk. A chunk with the same identifier, creator and
	// chunk number is replaced, keeping its ID.
	// Returns the real path of the replaced chunk, or "" if none existed.
	Upsert(ctx context.Context, chunk *domain.FileChunk) (previousPath string, err error)

	// Count returns the number of chunks matching filter.
	Count(ctx context.Context, filter ChunkFilter) (int, error)

	// List returns the chunks matching filter ordered by chunk number.
	List(ctx context.Context, filter ChunkFilter) ([]*domain.FileChunk, error)

	// ListExpired returns up to limit chunks that expired at or before before.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]*domain.FileChunk, error)

	// DeleteByIDs removes chunks by ID. Already deleted IDs are a no-op.
	// Returns the number of rows removed.
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// ChunkFilter selects the chunks of one upload.
type ChunkFilter struct {
	Identifier string
	CreatorID  int64

	// ActiveAt excludes chunks that expired at or before this instant.
	// The zero value includes expired chunks.
	ActiveAt time.Time
}

// =============================================================================
// Error Log Repository
// =============================================================================

// ErrorLogRepository defines the interface for operator error events.
type ErrorLogRepository interface {
	// Create inserts a new entry.
	Create(ctx context.Context, entry *domain.ErrorLog) error

	// GetByID retrieves an entry by ID.
	// Returns domain.ErrErrorLogNotFound if no entry exists.
	GetByID(ctx context.Context, id int64) (*domain.ErrorLog, error)

	// List returns entries matching filter, newest first.
	List(ctx context.Context, filter ErrorLogFilter) ([]*domain.ErrorLog, error)

	// UpdateStatus sets the status of the given entries.
	// Returns the number of rows changed.
	UpdateStatus(ctx context.Context, ids []int64, status domain.ErrorLogStatus) (int64, error)
}

// ErrorLogFilter selects error log entries. Nil or zero fields are ignored.
type ErrorLogFilter struct {
	Status    *domain.ErrorLogStatus
	CreatorID int64
	Limit     int
}
