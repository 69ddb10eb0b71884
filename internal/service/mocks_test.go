package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/repository"
	"github.com/prn-tf/pan-storage/internal/storage"
)

// =============================================================================
// Mock Repository Types
// =============================================================================

type mockPhysicalFileRepository struct {
	mock.Mock
}

func (m *mockPhysicalFileRepository) Create(ctx context.Context, file *domain.PhysicalFile) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *mockPhysicalFileRepository) GetByID(ctx context.Context, id int64) (*domain.PhysicalFile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PhysicalFile), args.Error(1)
}

func (m *mockPhysicalFileRepository) List(ctx context.Context, filter repository.PhysicalFileFilter) ([]*domain.PhysicalFile, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PhysicalFile), args.Error(1)
}

func (m *mockPhysicalFileRepository) Delete(ctx context.Context, ids []int64) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

type mockFileChunkRepository struct {
	mock.Mock
}

func (m *mockFileChunkRepository) Upsert(ctx context.Context, chunk *domain.FileChunk) (string, error) {
	args := m.Called(ctx, chunk)
	return args.String(0), args.Error(1)
}

func (m *mockFileChunkRepository) Count(ctx context.Context, filter repository.ChunkFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *mockFileChunkRepository) List(ctx context.Context, filter repository.ChunkFilter) ([]*domain.FileChunk, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FileChunk), args.Error(1)
}

func (m *mockFileChunkRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]*domain.FileChunk, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FileChunk), args.Error(1)
}

func (m *mockFileChunkRepository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

type mockErrorLogRepository struct {
	mock.Mock
}

func (m *mockErrorLogRepository) Create(ctx context.Context, entry *domain.ErrorLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockErrorLogRepository) GetByID(ctx context.Context, id int64) (*domain.ErrorLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ErrorLog), args.Error(1)
}

func (m *mockErrorLogRepository) List(ctx context.Context, filter repository.ErrorLogFilter) ([]*domain.ErrorLog, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ErrorLog), args.Error(1)
}

func (m *mockErrorLogRepository) UpdateStatus(ctx context.Context, ids []int64, status domain.ErrorLogStatus) (int64, error) {
	args := m.Called(ctx, ids, status)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Mock Storage Engine
// =============================================================================

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Store(ctx context.Context, req *storage.StoreRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockEngine) Delete(ctx context.Context, req *storage.DeleteRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *mockEngine) StoreChunk(ctx context.Context, req *storage.StoreChunkRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockEngine) MergeFile(ctx context.Context, req *storage.MergeRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockEngine) ReadFile(ctx context.Context, req *storage.ReadRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// =============================================================================
// ID generators
// =============================================================================

type sequentialIDs struct {
	next atomic.Int64
}

func (s *sequentialIDs) Generate() (int64, error) {
	return s.next.Add(1), nil
}

type failingIDs struct{}

func (failingIDs) Generate() (int64, error) {
	return 0, domain.ErrClockRegression
}

var errDBDown = errors.New("db down")

// deleteOf matches a DeleteRequest for exactly paths.
func deleteOf(paths ...string) interface{} {
	return mock.MatchedBy(func(req *storage.DeleteRequest) bool {
		if len(req.RealPaths) != len(paths) {
			return false
		}
		for i := range paths {
			if req.RealPaths[i] != paths[i] {
				return false
			}
		}
		return true
	})
}
