package repository

import (
	"context"
)

// Repositories holds all repository instances.
type Repositories struct {
	PhysicalFile PhysicalFileRepository
	FileChunk    FileChunkRepository
	ErrorLog     ErrorLogRepository
}

// DatabaseHealth is an interface for database health checks.
// The HTTP router uses it for the health endpoint.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Database is an opened metadata store with its repositories.
type Database interface {
	DatabaseHealth
	Migrator
}
