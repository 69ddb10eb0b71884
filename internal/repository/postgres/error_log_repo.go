package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/repository"
)

// errorLogRepository implements repository.ErrorLogRepository.
type errorLogRepository struct {
	db *DB
}

// NewErrorLogRepository creates a new PostgreSQL error log repository.
func NewErrorLogRepository(db *DB) repository.ErrorLogRepository {
	return &errorLogRepository{db: db}
}

const errorLogColumns = `id, content, status, creator_id, created_at, updated_at`

// Create inserts a new error log entry.
func (r *errorLogRepository) Create(ctx context.Context, entry *domain.ErrorLog) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO error_logs (`+errorLogColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.Content, int16(entry.Status), entry.CreatorID, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create error log: %w", err)
	}
	return nil
}

// GetByID retrieves an error log entry by ID.
func (r *errorLogRepository) GetByID(ctx context.Context, id int64) (*domain.ErrorLog, error) {
	entry, err := scanErrorLog(r.db.Pool.QueryRow(ctx, `SELECT `+errorLogColumns+` FROM error_logs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrErrorLogNotFound
		}
		return nil, fmt.Errorf("failed to get error log: %w", err)
	}
	return entry, nil
}

// List returns error log entries matching filter, newest first.
func (r *errorLogRepository) List(ctx context.Context, filter repository.ErrorLogFilter) ([]*domain.ErrorLog, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != nil {
		conds = append(conds, "status = "+arg(int16(*filter.Status)))
	}
	if filter.CreatorID != 0 {
		conds = append(conds, "creator_id = "+arg(filter.CreatorID))
	}

	query := `SELECT ` + errorLogColumns + ` FROM error_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.ErrorLog, error) {
		return scanErrorLog(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan error logs: %w", err)
	}
	return entries, nil
}

// UpdateStatus sets the status of the given entries.
func (r *errorLogRepository) UpdateStatus(ctx context.Context, ids []int64, status domain.ErrorLogStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE error_logs SET status = $1, updated_at = $2 WHERE id = ANY($3)`,
		int16(status), time.Now().UTC(), ids,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update error log status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanErrorLog(row pgx.Row) (*domain.ErrorLog, error) {
	entry := &domain.ErrorLog{}
	var status int16

	if err := row.Scan(&entry.ID, &entry.Content, &status, &entry.CreatorID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return nil, err
	}

	entry.Status = domain.ErrorLogStatus(status)
	return entry, nil
}

var _ repository.ErrorLogRepository = (*errorLogRepository)(nil)
