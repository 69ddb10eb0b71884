package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/repository"
)

// physicalFileRepository implements repository.PhysicalFileRepository for SQLite.
type physicalFileRepository struct {
	db *DB
}

// NewPhysicalFileRepository creates a new SQLite physical file repository.
func NewPhysicalFileRepository(db *DB) repository.PhysicalFileRepository {
	return &physicalFileRepository{db: db}
}

const physicalFileColumns = `id, filename, identifier, real_path, size, size_desc, suffix, content_type, creator_id, created_at`

// Create inserts a new physical file record.
func (r *physicalFileRepository) Create(ctx context.Context, file *domain.PhysicalFile) error {
	query := `
		INSERT INTO physical_files (` + physicalFileColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		file.ID,
		file.Filename,
		file.Identifier,
		file.RealPath,
		file.Size,
		file.SizeDesc,
		file.Suffix,
		file.ContentType,
		file.CreatorID,
		formatTime(file.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPhysicalFileExists
		}
		return fmt.Errorf("failed to create physical file: %w", err)
	}

	return nil
}

// GetByID retrieves a physical file by ID.
func (r *physicalFileRepository) GetByID(ctx context.Context, id int64) (*domain.PhysicalFile, error) {
	query := `SELECT ` + physicalFileColumns + ` FROM physical_files WHERE id = ?`

	file, err := scanPhysicalFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPhysicalFileNotFound
		}
		return nil, fmt.Errorf("failed to get physical file: %w", err)
	}
	return file, nil
}

// List returns the physical files matching filter, oldest first.
func (r *physicalFileRepository) List(ctx context.Context, filter repository.PhysicalFileFilter) ([]*domain.PhysicalFile, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.CreatorID != 0 {
		conds = append(conds, "creator_id = ?")
		args = append(args, filter.CreatorID)
	}
	if filter.Identifier != "" {
		conds = append(conds, "identifier = ?")
		args = append(args, filter.Identifier)
	}
	if len(filter.IDs) > 0 {
		in, idArgs := inClause(filter.IDs)
		conds = append(conds, "id IN ("+in+")")
		args = append(args, idArgs...)
	}

	query := `SELECT ` + physicalFileColumns + ` FROM physical_files`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list physical files: %w", err)
	}
	defer rows.Close()

	var files []*domain.PhysicalFile
	for rows.Next() {
		file, err := scanPhysicalFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan physical file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating physical files: %w", err)
	}

	return files, nil
}

// Delete removes physical file records by ID.
func (r *physicalFileRepository) Delete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	in, args := inClause(ids)
	result, err := r.db.ExecContext(ctx, `DELETE FROM physical_files WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete physical files: %w", err)
	}

	n, _ := result.RowsAffected()
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPhysicalFile(row rowScanner) (*domain.PhysicalFile, error) {
	file := &domain.PhysicalFile{}
	var createdAt string

	err := row.Scan(
		&file.ID,
		&file.Filename,
		&file.Identifier,
		&file.RealPath,
		&file.Size,
		&file.SizeDesc,
		&file.Suffix,
		&file.ContentType,
		&file.CreatorID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	file.CreatedAt = parseTime(createdAt)
	return file, nil
}

var _ repository.PhysicalFileRepository = (*physicalFileRepository)(nil)
