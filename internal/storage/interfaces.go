// Package storage defines the engine interface for file storage backends.
// The storage layer is responsible for persisting and retrieving raw file bytes
// and for reassembling chunked uploads.
package storage

import (
	"context"
	"io"
)

// Engine defines the interface for storage backends.
// Implementations include the local filesystem and S3-compatible object stores.
// Callers should wrap backends with WithValidation so every call is checked
// before any I/O happens.
type Engine interface {
	// Store writes exactly TotalSize bytes from the request reader and
	// returns the backend location of the new file.
	//
	// Returns:
	//   - realPath: backend-specific address of the stored bytes
	//   - err: validation or I/O error
	Store(ctx context.Context, req *StoreRequest) (realPath string, err error)

	// Delete removes every path in the request.
	// Paths are removed one by one and already removed paths are not restored
	// when a later removal fails. Missing paths are not an error.
	Delete(ctx context.Context, req *DeleteRequest) error

	// StoreChunk writes one chunk of a larger upload and returns its location.
	StoreChunk(ctx context.Context, req *StoreChunkRequest) (realPath string, err error)

	// MergeFile concatenates the chunk paths in the order given into a new file
	// and returns its location. Callers supply paths sorted by chunk number.
	// Chunk objects are removed once the merged file is complete.
	MergeFile(ctx context.Context, req *MergeRequest) (realPath string, err error)

	// ReadFile copies the stored bytes at RealPath to the request writer.
	ReadFile(ctx context.Context, req *ReadRequest) error
}

// StoreRequest describes a whole-file store.
type StoreRequest struct {
	// Reader is the source of the content.
	Reader io.Reader

	// Filename is the original file name. Only its suffix is kept in the path.
	Filename string

	// TotalSize is the exact number of bytes to read from Reader.
	TotalSize int64
}

// DeleteRequest lists backend locations to remove.
type DeleteRequest struct {
	RealPaths []string
}

// StoreChunkRequest describes one chunk of a chunked upload.
type StoreChunkRequest struct {
	// Reader is the source of the chunk bytes.
	Reader io.Reader

	// Filename is the name of the whole file.
	Filename string

	// Identifier is the fingerprint of the whole file.
	Identifier string

	// UserID is the uploading user.
	UserID int64

	// ChunkNumber is the 1-based position of this chunk.
	ChunkNumber int

	// TotalChunks is the number of chunks in the whole file.
	TotalChunks int

	// ChunkSize is the exact number of bytes in this chunk.
	ChunkSize int64

	// TotalSize is the size of the whole file.
	TotalSize int64
}

// MergeRequest describes the reassembly of a chunked upload.
type MergeRequest struct {
	// Filename is the name of the whole file.
	Filename string

	// Identifier is the fingerprint of the whole file.
	Identifier string

	// UserID is the uploading user.
	UserID int64

	// RealPaths are the chunk locations in chunk number order.
	RealPaths []string

	// TotalSize, when positive, is the expected length of the merged file.
	// A merge of any other length fails with domain.ErrSizeMismatch and
	// leaves the chunks in place.
	TotalSize int64
}

// ReadRequest describes a read of stored bytes into Writer.
type ReadRequest struct {
	RealPath string
	Writer   io.Writer
}
