package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/repository"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	ctx := context.Background()
	db, err := NewDB(ctx, DefaultConfig(":memory:"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "pan.db")

	db, err := NewDB(ctx, DefaultConfig(path), zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))

	states, err := db.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, s := range states {
		assert.True(t, s.Applied, "migration %d", s.Version)
	}
	assert.Equal(t, 1, states[0].Version)
	assert.Equal(t, "init", states[0].Name)
}

func TestPhysicalFileRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPhysicalFileRepository(newTestDB(t))

	file := domain.NewPhysicalFile(101, "report.pdf", "abc", "/files/2024/1/2/x.pdf", 2048, 7)
	require.NoError(t, repo.Create(ctx, file))

	got, err := repo.GetByID(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, file.Filename, got.Filename)
	assert.Equal(t, file.RealPath, got.RealPath)
	assert.Equal(t, int64(2048), got.Size)
	assert.Equal(t, ".pdf", got.Suffix)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.WithinDuration(t, file.CreatedAt, got.CreatedAt, time.Millisecond)

	t.Run("duplicate identifier for same creator", func(t *testing.T) {
		dup := domain.NewPhysicalFile(102, "copy.pdf", "abc", "/files/other", 2048, 7)
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, domain.ErrPhysicalFileExists)
	})

	t.Run("same identifier for another creator", func(t *testing.T) {
		other := domain.NewPhysicalFile(103, "report.pdf", "abc", "/files/third", 2048, 8)
		require.NoError(t, repo.Create(ctx, other))
	})

	t.Run("list by creator and identifier", func(t *testing.T) {
		files, err := repo.List(ctx, repository.PhysicalFileFilter{CreatorID: 7, Identifier: "abc"})
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, int64(101), files[0].ID)

		files, err = repo.List(ctx, repository.PhysicalFileFilter{IDs: []int64{101, 103, 999}})
		require.NoError(t, err)
		assert.Len(t, files, 2)

		files, err = repo.List(ctx, repository.PhysicalFileFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 999)
		assert.ErrorIs(t, err, domain.ErrPhysicalFileNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		n, err := repo.Delete(ctx, []int64{101, 999})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.Delete(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestFileChunkRepository_UpsertAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewFileChunkRepository(newTestDB(t))

	for n := 1; n <= 3; n++ {
		prev, err := repo.Upsert(ctx, domain.NewFileChunk(int64(n), "id1", n, "/c/"+string(rune('0'+n)), 7, time.Hour))
		require.NoError(t, err)
		assert.Empty(t, prev)
	}

	// Re-upload chunk 2.
	replacement := domain.NewFileChunk(50, "id1", 2, "/c/2-again", 7, time.Hour)
	prev, err := repo.Upsert(ctx, replacement)
	require.NoError(t, err)
	assert.Equal(t, "/c/2", prev)
	assert.Equal(t, int64(2), replacement.ID, "replaced record keeps its ID")

	count, err := repo.Count(ctx, repository.ChunkFilter{Identifier: "id1", CreatorID: 7, ActiveAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	chunks, err := repo.List(ctx, repository.ChunkFilter{Identifier: "id1", CreatorID: 7})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{chunks[0].ChunkNumber, chunks[1].ChunkNumber, chunks[2].ChunkNumber})
	assert.Equal(t, "/c/2-again", chunks[1].RealPath)

	// Another creator's upload with the same identifier is separate.
	count, err = repo.Count(ctx, repository.ChunkFilter{Identifier: "id1", CreatorID: 8})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFileChunkRepository_Expiry(t *testing.T) {
	ctx := context.Background()
	repo := NewFileChunkRepository(newTestDB(t))

	now := time.Now().UTC()
	expired := domain.NewFileChunk(1, "id1", 1, "/c/1", 7, time.Hour)
	expired.ExpiresAt = now.Add(-time.Minute)
	active := domain.NewFileChunk(2, "id1", 2, "/c/2", 7, time.Hour)

	_, err := repo.Upsert(ctx, expired)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, active)
	require.NoError(t, err)

	count, err := repo.Count(ctx, repository.ChunkFilter{Identifier: "id1", CreatorID: 7, ActiveAt: now})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	all, err := repo.Count(ctx, repository.ChunkFilter{Identifier: "id1", CreatorID: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, all)

	activeChunks, err := repo.List(ctx, repository.ChunkFilter{Identifier: "id1", CreatorID: 7, ActiveAt: now})
	require.NoError(t, err)
	require.Len(t, activeChunks, 1)
	assert.Equal(t, 2, activeChunks[0].ChunkNumber)

	stale, err := repo.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, int64(1), stale[0].ID)

	// Deleting is idempotent.
	n, err := repo.DeleteByIDs(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = repo.DeleteByIDs(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestErrorLogRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewErrorLogRepository(newTestDB(t))

	first := domain.NewErrorLog(1, 7, "delete failed: /a")
	second := domain.NewErrorLog(2, 7, "delete failed: /b")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	unresolved := domain.ErrorLogUnresolved
	entries, err := repo.List(ctx, repository.ErrorLogFilter{Status: &unresolved})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].ID, "newest first")

	n, err := repo.UpdateStatus(ctx, []int64{1}, domain.ErrorLogResolved)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err = repo.List(ctx, repository.ErrorLogFilter{Status: &unresolved})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ID)

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorLogResolved, got.Status)

	_, err = repo.GetByID(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrErrorLogNotFound)
}
