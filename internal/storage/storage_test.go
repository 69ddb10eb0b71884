package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pan-storage/internal/domain"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Store(ctx context.Context, req *StoreRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) Delete(ctx context.Context, req *DeleteRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockEngine) StoreChunk(ctx context.Context, req *StoreChunkRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) MergeFile(ctx context.Context, req *MergeRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) ReadFile(ctx context.Context, req *ReadRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func validChunk() *StoreChunkRequest {
	return &StoreChunkRequest{
		Reader:      strings.NewReader("AA"),
		Filename:    "movie.mp4",
		Identifier:  "abc",
		UserID:      1,
		ChunkNumber: 1,
		TotalChunks: 5,
		ChunkSize:   2,
		TotalSize:   10,
	}
}

func TestWithValidation_RejectsBeforeBackend(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		call func(e Engine) error
	}{
		{"store nil request", func(e Engine) error { _, err := e.Store(ctx, nil); return err }},
		{"store blank filename", func(e Engine) error {
			_, err := e.Store(ctx, &StoreRequest{Reader: strings.NewReader("x"), Filename: "  ", TotalSize: 1})
			return err
		}},
		{"store negative size", func(e Engine) error {
			_, err := e.Store(ctx, &StoreRequest{Reader: strings.NewReader("x"), Filename: "a", TotalSize: -1})
			return err
		}},
		{"store nil reader", func(e Engine) error {
			_, err := e.Store(ctx, &StoreRequest{Filename: "a", TotalSize: 1})
			return err
		}},
		{"delete empty", func(e Engine) error { return e.Delete(ctx, &DeleteRequest{}) }},
		{"chunk missing number", func(e Engine) error {
			req := validChunk()
			req.ChunkNumber = 0
			_, err := e.StoreChunk(ctx, req)
			return err
		}},
		{"chunk blank identifier", func(e Engine) error {
			req := validChunk()
			req.Identifier = ""
			_, err := e.StoreChunk(ctx, req)
			return err
		}},
		{"chunk identifier climbs out of root", func(e Engine) error {
			req := validChunk()
			req.Identifier = "../../../../escaped"
			_, err := e.StoreChunk(ctx, req)
			return err
		}},
		{"chunk identifier with separator", func(e Engine) error {
			req := validChunk()
			req.Identifier = "abc/def"
			_, err := e.StoreChunk(ctx, req)
			return err
		}},
		{"chunk missing user", func(e Engine) error {
			req := validChunk()
			req.UserID = 0
			_, err := e.StoreChunk(ctx, req)
			return err
		}},
		{"chunk missing size", func(e Engine) error {
			req := validChunk()
			req.ChunkSize = 0
			_, err := e.StoreChunk(ctx, req)
			return err
		}},
		{"chunk number past total", func(e Engine) error {
			req := validChunk()
			req.ChunkNumber = 6
			_, err := e.StoreChunk(ctx, req)
			return err
		}},
		{"merge no paths", func(e Engine) error {
			_, err := e.MergeFile(ctx, &MergeRequest{Filename: "a"})
			return err
		}},
		{"merge blank path", func(e Engine) error {
			_, err := e.MergeFile(ctx, &MergeRequest{Filename: "a", RealPaths: []string{"p", " "}})
			return err
		}},
		{"read nil writer", func(e Engine) error { return e.ReadFile(ctx, &ReadRequest{RealPath: "p"}) }},
		{"read blank path", func(e Engine) error {
			return e.ReadFile(ctx, &ReadRequest{Writer: &bytes.Buffer{}})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := new(MockEngine)
			err := tt.call(WithValidation(backend))
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err), "got %v", err)
			backend.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
			backend.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
			backend.AssertNotCalled(t, "StoreChunk", mock.Anything, mock.Anything)
			backend.AssertNotCalled(t, "MergeFile", mock.Anything, mock.Anything)
			backend.AssertNotCalled(t, "ReadFile", mock.Anything, mock.Anything)
		})
	}
}

func TestIsSafeIdentifier(t *testing.T) {
	tests := []struct {
		identifier string
		want       bool
	}{
		{"0cc175b9c0f1b6a831c399e269772661", true},
		{"fp-1_v2", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../escaped", false},
		{"a/../../b", false},
		{"/etc", false},
		{`..\windows`, false},
		{"a\x00b", false},
		{"dir/", false},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafeIdentifier(tt.identifier))
		})
	}
}

func TestWithValidation_Delegates(t *testing.T) {
	ctx := context.Background()
	backend := new(MockEngine)
	req := validChunk()
	backend.On("StoreChunk", ctx, req).Return("/chunks/x", nil)

	engine := WithValidation(backend)
	assert.Same(t, engine, WithValidation(engine))

	got, err := engine.StoreChunk(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "/chunks/x", got)
	backend.AssertExpectations(t)
}

func TestPathLayout(t *testing.T) {
	fixed := time.Date(2024, time.March, 7, 10, 0, 0, 0, time.Local)
	layout := NewLocalLayout("/data/upload", "/data/chunk").WithClock(func() time.Time { return fixed })

	filePath := layout.FilePath("Holiday.JPG")
	pattern := regexp.MustCompile(`^/data/upload/2024/3/7/[0-9a-f-]{36}\.jpg$`)
	assert.Regexp(t, pattern, filepath.ToSlash(filePath))

	chunkPath := layout.ChunkPath("abc123", 4)
	pattern = regexp.MustCompile(`^/data/chunk/2024/3/7/abc123/[0-9a-f-]{36}__,__4$`)
	assert.Regexp(t, pattern, filepath.ToSlash(chunkPath))

	n, ok := ChunkNumberFromPath(chunkPath)
	require.True(t, ok)
	assert.Equal(t, 4, n)

	_, ok = ChunkNumberFromPath(filePath)
	assert.False(t, ok)

	object := NewObjectLayout("upload", "chunk").WithClock(func() time.Time { return fixed })
	assert.Regexp(t, `^upload/2024/3/7/[0-9a-f-]{36}$`, object.FilePath("README"))
	assert.NotEqual(t, object.FilePath("a"), object.FilePath("a"))
}
