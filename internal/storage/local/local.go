// Package local implements storage.Engine on the local filesystem.
//
// Transfers go through io.Copy between *os.File values and the caller's
// reader or writer, so on Linux the runtime uses copy_file_range, splice or
// sendfile instead of a user-space buffer whenever the other side allows it.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/storage"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// Engine stores files and chunks under two root directories.
type Engine struct {
	layout *storage.PathLayout
	logger zerolog.Logger
}

// Config holds local engine settings.
type Config struct {
	RootFilePath  string
	RootChunkPath string
}

// New creates a local Engine, creating both roots if needed.
func New(cfg Config, logger zerolog.Logger) (*Engine, error) {
	fileRoot, err := ensureRoot(cfg.RootFilePath)
	if err != nil {
		return nil, err
	}
	chunkRoot, err := ensureRoot(cfg.RootChunkPath)
	if err != nil {
		return nil, err
	}

	return &Engine{
		layout: storage.NewLocalLayout(fileRoot, chunkRoot),
		logger: logger.With().Str("component", "local_storage").Logger(),
	}, nil
}

// NewWithLayout creates a local Engine that places files according to layout.
func NewWithLayout(layout *storage.PathLayout, logger zerolog.Logger) *Engine {
	return &Engine{
		layout: layout,
		logger: logger.With().Str("component", "local_storage").Logger(),
	}
}

func ensureRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("storage root must not be empty")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return "", fmt.Errorf("create storage root %q: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve storage root: %w", err)
	}
	return abs, nil
}

var _ storage.Engine = (*Engine)(nil)

// Store writes exactly req.TotalSize bytes to a new file under the file root.
func (e *Engine) Store(ctx context.Context, req *storage.StoreRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	realPath := e.layout.FilePath(req.Filename)
	if err := writeExact(realPath, req.Reader, req.TotalSize); err != nil {
		return "", err
	}

	e.logger.Debug().
		Str("real_path", realPath).
		Int64("size", req.TotalSize).
		Msg("file stored")

	return realPath, nil
}

// Delete removes each path. Missing files are skipped; other failures are
// collected and returned together after every path was attempted.
func (e *Engine) Delete(ctx context.Context, req *storage.DeleteRequest) error {
	var errs []error
	for _, p := range req.RealPaths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, domain.NewIOError("delete", p, err))
		}
	}
	return errors.Join(errs...)
}

// StoreChunk writes exactly req.ChunkSize bytes to a new file under the chunk root.
func (e *Engine) StoreChunk(ctx context.Context, req *storage.StoreChunkRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	realPath := e.layout.ChunkPath(req.Identifier, req.ChunkNumber)
	if err := writeExact(realPath, req.Reader, req.ChunkSize); err != nil {
		return "", err
	}

	e.logger.Debug().
		Str("identifier", req.Identifier).
		Int("chunk_number", req.ChunkNumber).
		Str("real_path", realPath).
		Msg("chunk stored")

	return realPath, nil
}

// MergeFile creates an empty target and appends every chunk in order.
// A failed merge removes the partial target and leaves the chunks in place.
func (e *Engine) MergeFile(ctx context.Context, req *storage.MergeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	realPath := e.layout.FilePath(req.Filename)
	target, err := createFile(realPath)
	if err != nil {
		return "", err
	}

	var written int64
	for _, chunkPath := range req.RealPaths {
		n, err := appendFile(target, chunkPath)
		if err != nil {
			target.Close()
			os.Remove(realPath) //nolint:errcheck
			return "", err
		}
		written += n
	}

	if req.TotalSize > 0 && written != req.TotalSize {
		target.Close()
		os.Remove(realPath) //nolint:errcheck
		return "", domain.NewIOError(fmt.Sprintf("merge: got %d of %d bytes", written, req.TotalSize), realPath, domain.ErrSizeMismatch)
	}

	if err := target.Close(); err != nil {
		os.Remove(realPath) //nolint:errcheck
		return "", domain.NewIOError("close", realPath, err)
	}

	if err := e.Delete(ctx, &storage.DeleteRequest{RealPaths: req.RealPaths}); err != nil {
		e.logger.Warn().Err(err).
			Str("identifier", req.Identifier).
			Msg("failed to remove merged chunks")
	}

	e.logger.Debug().
		Str("identifier", req.Identifier).
		Int("chunks", len(req.RealPaths)).
		Int64("size", written).
		Str("real_path", realPath).
		Msg("chunks merged")

	return realPath, nil
}

// ReadFile copies the whole file at req.RealPath into req.Writer.
func (e *Engine) ReadFile(ctx context.Context, req *storage.ReadRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(req.RealPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewDomainError(domain.ErrPhysicalFileNotFound, "read", req.RealPath)
		}
		return domain.NewIOError("open", req.RealPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.NewIOError("stat", req.RealPath, err)
	}

	if _, err := io.CopyN(req.Writer, f, info.Size()); err != nil {
		return domain.NewIOError("read", req.RealPath, err)
	}
	return nil
}

// createFile creates realPath and its parent directories. The file must not exist.
func createFile(realPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(realPath), dirPerm); err != nil {
		return nil, domain.NewIOError("mkdir", filepath.Dir(realPath), err)
	}
	f, err := os.OpenFile(realPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, domain.NewIOError("create", realPath, err)
	}
	return f, nil
}

// writeExact copies size bytes from r into a new file at realPath.
// The file is removed if r ends early or the copy fails.
func writeExact(realPath string, r io.Reader, size int64) error {
	f, err := createFile(realPath)
	if err != nil {
		return err
	}

	n, werr := io.CopyN(f, r, size)
	cerr := f.Close()

	if werr != nil {
		os.Remove(realPath) //nolint:errcheck
		if errors.Is(werr, io.EOF) {
			return domain.NewIOError(fmt.Sprintf("write: got %d of %d bytes", n, size), realPath, domain.ErrSizeMismatch)
		}
		return domain.NewIOError("write", realPath, werr)
	}
	if cerr != nil {
		os.Remove(realPath) //nolint:errcheck
		return domain.NewIOError("close", realPath, cerr)
	}
	return nil
}

// appendFile copies the whole chunk at chunkPath to the end of target.
func appendFile(target *os.File, chunkPath string) (int64, error) {
	src, err := os.Open(chunkPath)
	if err != nil {
		return 0, domain.NewIOError("open chunk", chunkPath, err)
	}
	defer src.Close()

	n, err := io.Copy(target, src)
	if err != nil {
		return n, domain.NewIOError("append chunk", chunkPath, err)
	}
	return n, nil
}
