package domain

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		code string
	}{
		{"nil", nil, KindUnknown, ""},
		{"validation", NewValidationError("filename"), KindValidation, "VALIDATION_FAILED"},
		{"io", NewIOError("write", "/tmp/x", os.ErrPermission), KindIO, "STORAGE_IO"},
		{"wrapped clock", fmt.Errorf("generate: %w", ErrClockRegression), KindFatal, "CLOCK_REGRESSION"},
		{"decode", NewDomainError(ErrDecode, "bad base64", ""), KindDecode, "DECODE_FAILED"},
		{"not found", ErrChunksNotFound, KindNotFound, "CHUNKS_NOT_FOUND"},
		{"unknown", errors.New("boom"), KindUnknown, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestNewIOError_MatchesCause(t *testing.T) {
	err := NewIOError("open", "/data/a", os.ErrNotExist)
	assert.ErrorIs(t, err, ErrStorageIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "/data/a")
}

func TestWrapError_KeepsDomainError(t *testing.T) {
	orig := NewDomainError(ErrPhysicalFileNotFound, "lookup", "abc")
	assert.Same(t, orig, WrapError(orig, "outer"))
	assert.Nil(t, WrapError(nil, "x"))
}

func TestNewPhysicalFile(t *testing.T) {
	f := NewPhysicalFile(7, "Report.PDF", "md5", "/data/2024/1/2/x.pdf", 2048, 3)
	assert.Equal(t, ".pdf", f.Suffix)
	assert.Equal(t, "application/pdf", f.ContentType)
	assert.Equal(t, "2.0 kB", f.SizeDesc)
	assert.Equal(t, int64(3), f.CreatorID)

	noExt := NewPhysicalFile(8, "README", "md5", "/p", 0, 3)
	assert.Equal(t, "", noExt.Suffix)
	assert.Equal(t, "application/octet-stream", noExt.ContentType)
}

func TestFileChunk_SortAndExpiry(t *testing.T) {
	chunks := []*FileChunk{
		{ID: 3, ChunkNumber: 3, RealPath: "c"},
		{ID: 1, ChunkNumber: 1, RealPath: "a"},
		{ID: 2, ChunkNumber: 2, RealPath: "b"},
	}
	SortChunks(chunks)
	require.Equal(t, []string{"a", "b", "c"}, ChunkPaths(chunks))
	require.Equal(t, []int64{1, 2, 3}, ChunkIDs(chunks))

	c := NewFileChunk(1, "id", 1, "p", 1, time.Hour)
	assert.False(t, c.IsExpired(time.Now()))
	assert.True(t, c.IsExpired(c.ExpiresAt))
}
