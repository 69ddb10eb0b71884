package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/repository"
)

// errorLogRepository implements repository.ErrorLogRepository for SQLite.
type errorLogRepository struct {
	db *DB
}

// NewErrorLogRepository creates a new SQLite error log repository.
func NewErrorLogRepository(db *DB) repository.ErrorLogRepository {
	return &errorLogRepository{db: db}
}

const errorLogColumns = `id, content, status, creator_id, created_at, updated_at`

// Create inserts a new error log entry.
func (r *errorLogRepository) Create(ctx context.Context, entry *domain.ErrorLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO error_logs (`+errorLogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Content,
		int(entry.Status),
		entry.CreatorID,
		formatTime(entry.CreatedAt),
		formatTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create error log: %w", err)
	}
	return nil
}

// GetByID retrieves an error log entry by ID.
func (r *errorLogRepository) GetByID(ctx context.Context, id int64) (*domain.ErrorLog, error) {
	entry, err := scanErrorLog(r.db.QueryRowContext(ctx, `SELECT `+errorLogColumns+` FROM error_logs WHERE id = ?`, id))
	if err != nil {
		if isNoRows(err) {
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
		args  []interface{}
	)
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, int(*filter.Status))
	}
	if filter.CreatorID != 0 {
		conds = append(conds, "creator_id = ?")
		args = append(args, filter.CreatorID)
	}

	query := `SELECT ` + errorLogColumns + ` FROM error_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ErrorLog
	for rows.Next() {
		entry, err := scanErrorLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan error log: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error logs: %w", err)
	}

	return entries, nil
}

// UpdateStatus sets the status of the given entries.
func (r *errorLogRepository) UpdateStatus(ctx context.Context, ids []int64, status domain.ErrorLogStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	in, idArgs := inClause(ids)
	args := append([]interface{}{int(status), formatTime(time.Now())}, idArgs...)

	result, err := r.db.ExecContext(ctx, `UPDATE error_logs SET status = ?, updated_at = ? WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update error log status: %w", err)
	}

	n, _ := result.RowsAffected()
	return n, nil
}

func scanErrorLog(row rowScanner) (*domain.ErrorLog, error) {
	entry := &domain.ErrorLog{}
	var (
		status               int
		createdAt, updatedAt string
	)

	if err := row.Scan(&entry.ID, &entry.Content, &status, &entry.CreatorID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	entry.Status = domain.ErrorLogStatus(status)
	entry.CreatedAt = parseTime(createdAt)
	entry.UpdatedAt = parseTime(updatedAt)
	return entry, nil
}

var _ repository.ErrorLogRepository = (*errorLogRepository)(nil)
