package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/repository"
)

// fileChunkRepository implements repository.FileChunkRepository for SQLite.
type fileChunkRepository struct {
	db *DB
}

// NewFileChunkRepository creates a new SQLite file chunk repository.
func NewFileChunkRepository(db *DB) repository.FileChunkRepository {
	return &fileChunkRepository{db: db}
}

const fileChunkColumns = `id, identifier, chunk_number, real_path, expires_at, creator_id, created_at`

// Upsert records a chunk, replacing an existing record for the same chunk number.
// The replaced record keeps its ID and chunk.ID is updated to match.
func (r *fileChunkRepository) Upsert(ctx context.Context, chunk *domain.FileChunk) (string, error) {
	var previousPath string

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		err := tx.QueryRowContext(ctx, `
			SELECT id, real_path FROM file_chunks
			WHERE identifier = ? AND creator_id = ? AND chunk_number = ?
		`, chunk.Identifier, chunk.CreatorID, chunk.ChunkNumber).Scan(&existingID, &previousPath)

		switch {
		case isNoRows(err):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO file_chunks (`+fileChunkColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
				chunk.ID,
				chunk.Identifier,
				chunk.ChunkNumber,
				chunk.RealPath,
				formatTime(chunk.ExpiresAt),
				chunk.CreatorID,
				formatTime(chunk.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert file chunk: %w", err)
			}
			return nil

		case err != nil:
			return fmt.Errorf("failed to check file chunk: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE file_chunks
			SET real_path = ?, expires_at = ?, created_at = ?
			WHERE id = ?
		`, chunk.RealPath, formatTime(chunk.ExpiresAt), formatTime(chunk.CreatedAt), existingID)
		if err != nil {
			return fmt.Errorf("failed to replace file chunk: %w", err)
		}
		chunk.ID = existingID
		return nil
	})
	if err != nil {
		return "", err
	}

	return previousPath, nil
}

func chunkWhere(filter repository.ChunkFilter) (string, []interface{}) {
	where := "identifier = ? AND creator_id = ?"
	args := []interface{}{filter.Identifier, filter.CreatorID}
	if !filter.ActiveAt.IsZero() {
		where += " AND expires_at > ?"
		args = append(args, formatTime(filter.ActiveAt))
	}
	return where, args
}

// Count returns the number of chunks matching filter.
func (r *fileChunkRepository) Count(ctx context.Context, filter repository.ChunkFilter) (int, error) {
	where, args := chunkWhere(filter)

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_chunks WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count file chunks: %w", err)
	}
	return count, nil
}

// List returns the chunks matching filter ordered by chunk number.
func (r *fileChunkRepository) List(ctx context.Context, filter repository.ChunkFilter) ([]*domain.FileChunk, error) {
	where, args := chunkWhere(filter)
	query := `SELECT ` + fileChunkColumns + ` FROM file_chunks WHERE ` + where + ` ORDER BY chunk_number ASC`

	return r.query(ctx, query, args...)
}

// ListExpired returns up to limit chunks that expired at or before before.
func (r *fileChunkRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*domain.FileChunk, error) {
	query := `
		SELECT ` + fileChunkColumns + ` FROM file_chunks
		WHERE expires_at <= ?
		ORDER BY expires_at ASC, id ASC
		LIMIT ?
	`
	return r.query(ctx, query, formatTime(before), limit)
}

// DeleteByIDs removes chunk records by ID.
func (r *fileChunkRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	in, args := inClause(ids)
	result, err := r.db.ExecContext(ctx, `DELETE FROM file_chunks WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete file chunks: %w", err)
	}

	n, _ := result.RowsAffected()
	return n, nil
}

func (r *fileChunkRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.FileChunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list file chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*domain.FileChunk
	for rows.Next() {
		chunk := &domain.FileChunk{}
		var expiresAt, createdAt string

		err := rows.Scan(
			&chunk.ID,
			&chunk.Identifier,
			&chunk.ChunkNumber,
			&chunk.RealPath,
			&expiresAt,
			&chunk.CreatorID,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file chunk: %w", err)
		}

		chunk.ExpiresAt = parseTime(expiresAt)
		chunk.CreatedAt = parseTime(createdAt)
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file chunks: %w", err)
	}

	return chunks, nil
}

var _ repository.FileChunkRepository = (*fileChunkRepository)(nil)
