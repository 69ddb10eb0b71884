package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/repository"
)

// physicalFileRepository implements repository.PhysicalFileRepository.
type physicalFileRepository struct {
	db *DB
}

// NewPhysicalFileRepository creates a new PostgreSQL physical file repository.
func NewPhysicalFileRepository(db *DB) repository.PhysicalFileRepository {
	return &physicalFileRepository{db: db}
}

const physicalFileColumns = `id, filename, identifier, real_path, size, size_desc, suffix, content_type, creator_id, created_at`

// Create inserts a new physical file record.
func (r *physicalFileRepository) Create(ctx context.Context, file *domain.PhysicalFile) error {
	query := `
		INSERT INTO physical_files (` + physicalFileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		file.ID,
		file.Filename,
		file.Identifier,
		file.RealPath,
		file.Size,
		file.SizeDesc,
		file.Suffix,
		file.ContentType,
		file.CreatorID,
		file.CreatedAt,
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
	row := r.db.Pool.QueryRow(ctx, `SELECT `+physicalFileColumns+` FROM physical_files WHERE id = $1`, id)

	file, err := scanPhysicalFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.CreatorID != 0 {
		conds = append(conds, "creator_id = "+arg(filter.CreatorID))
	}
	if filter.Identifier != "" {
		conds = append(conds, "identifier = "+arg(filter.Identifier))
	}
	if len(filter.IDs) > 0 {
		conds = append(conds, "id = ANY("+arg(filter.IDs)+")")
	}

	query := `SELECT ` + physicalFileColumns + ` FROM physical_files`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
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

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM physical_files WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete physical files: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPhysicalFile(row pgx.Row) (*domain.PhysicalFile, error) {
	file := &domain.PhysicalFile{}
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
		&file.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return file, nil
}

var _ repository.PhysicalFileRepository = (*physicalFileRepository)(nil)
