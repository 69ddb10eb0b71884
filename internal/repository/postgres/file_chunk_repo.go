package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/repository"
)

// fileChunkRepository implements repository.FileChunkRepository.
type fileChunkRepository struct {
	db *DB
}

// NewFileChunkRepository creates a new PostgreSQL file chunk repository.
func NewFileChunkRepository(db *DB) repository.FileChunkRepository {
	return &fileChunkRepository{db: db}
}

const fileChunkColumns = `id, identifier, chunk_number, real_path, expires_at, creator_id, created_at`

// Upsert records a chunk, replacing an existing record for the same chunk number.
// The replaced record keeps its ID and chunk.ID is updated to match.
func (r *fileChunkRepository) Upsert(ctx context.Context, chunk *domain.FileChunk) (string, error) {
	// prev reads the pre-statement snapshot, so it yields the replaced path.
	query := `
		WITH prev AS (
			SELECT real_path FROM file_chunks
			WHERE identifier = $2 AND creator_id = $6 AND chunk_number = $3
		)
		INSERT INTO file_chunks (` + fileChunkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identifier, creator_id, chunk_number) DO UPDATE
		SET real_path = EXCLUDED.real_path,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
		RETURNING id, COALESCE((SELECT real_path FROM prev), '')
	`

	var previousPath string
	err := r.db.Pool.QueryRow(ctx, query,
		chunk.ID,
		chunk.Identifier,
		chunk.ChunkNumber,
		chunk.RealPath,
		chunk.ExpiresAt,
		chunk.CreatorID,
		chunk.CreatedAt,
	).Scan(&chunk.ID, &previousPath)
	if err != nil {
		return "", fmt.Errorf("failed to upsert file chunk: %w", err)
	}

	return previousPath, nil
}

func chunkWhere(filter repository.ChunkFilter) (string, []any) {
	where := "identifier = $1 AND creator_id = $2"
	args := []any{filter.Identifier, filter.CreatorID}
	if !filter.ActiveAt.IsZero() {
		where += " AND expires_at > $3"
		args = append(args, filter.ActiveAt)
	}
	return where, args
}

// Count returns the number of chunks matching filter.
func (r *fileChunkRepository) Count(ctx context.Context, filter repository.ChunkFilter) (int, error) {
	where, args := chunkWhere(filter)

	var count int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM file_chunks WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count file chunks: %w", err)
	}
	return count, nil
}

// List returns the chunks matching filter ordered by chunk number.
func (r *fileChunkRepository) List(ctx context.Context, filter repository.ChunkFilter) ([]*domain.FileChunk, error) {
	where, args := chunkWhere(filter)
	return r.query(ctx, `SELECT `+fileChunkColumns+` FROM file_chunks WHERE `+where+` ORDER BY chunk_number ASC`, args...)
}

// ListExpired returns up to limit chunks that expired at or before before.
func (r *fileChunkRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*domain.FileChunk, error) {
	query := `
		SELECT ` + fileChunkColumns + ` FROM file_chunks
		WHERE expires_at <= $1
		ORDER BY expires_at ASC, id ASC
		LIMIT $2
	`
	return r.query(ctx, query, before, limit)
}

// DeleteByIDs removes chunk records by ID.
func (r *fileChunkRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM file_chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete file chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *fileChunkRepository) query(ctx context.Context, query string, args ...any) ([]*domain.FileChunk, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list file chunks: %w", err)
	}

	chunks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.FileChunk, error) {
		chunk := &domain.FileChunk{}
		err := row.Scan(
			&chunk.ID,
			&chunk.Identifier,
			&chunk.ChunkNumber,
			&chunk.RealPath,
			&chunk.ExpiresAt,
			&chunk.CreatorID,
			&chunk.CreatedAt,
		)
		return chunk, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan file chunks: %w", err)
	}

	return chunks, nil
}

var _ repository.FileChunkRepository = (*fileChunkRepository)(nil)
