package storage

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/prn-tf/pan-storage/internal/domain"
)

// validatingEngine checks requests before handing them to the backend.
type validatingEngine struct {
	backend Engine
}

// WithValidation wraps backend so that every call fails with a
// domain.ErrValidation error, without touching the backend, when a
// required field is missing or blank.
func WithValidation(backend Engine) Engine {
	if v, ok := backend.(*validatingEngine); ok {
		return v
	}
	return &validatingEngine{backend: backend}
}

var _ Engine = (*validatingEngine)(nil)

func (v *validatingEngine) Store(ctx context.Context, req *StoreRequest) (string, error) {
	if err := ValidateStore(req); err != nil {
		return "", err
	}
	return v.backend.Store(ctx, req)
}

func (v *validatingEngine) Delete(ctx context.Context, req *DeleteRequest) error {
	if err := ValidateDelete(req); err != nil {
		return err
	}
	return v.backend.Delete(ctx, req)
}

func (v *validatingEngine) StoreChunk(ctx context.Context, req *StoreChunkRequest) (string, error) {
	if err := ValidateStoreChunk(req); err != nil {
		return "", err
	}
	return v.backend.StoreChunk(ctx, req)
}

func (v *validatingEngine) MergeFile(ctx context.Context, req *MergeRequest) (string, error) {
	if err := ValidateMerge(req); err != nil {
		return "", err
	}
	return v.backend.MergeFile(ctx, req)
}

func (v *validatingEngine) ReadFile(ctx context.Context, req *ReadRequest) error {
	if err := ValidateRead(req); err != nil {
		return err
	}
	return v.backend.ReadFile(ctx, req)
}

// ValidateStore checks a StoreRequest.
func ValidateStore(req *StoreRequest) error {
	switch {
	case req == nil:
		return domain.NewValidationError("store request")
	case isBlank(req.Filename):
		return domain.NewValidationError("filename")
	case req.TotalSize < 0:
		return domain.NewValidationError("total size")
	case req.Reader == nil:
		return domain.NewValidationError("input stream")
	}
	return nil
}

// ValidateDelete checks a DeleteRequest.
func ValidateDelete(req *DeleteRequest) error {
	if req == nil || len(req.RealPaths) == 0 {
		return domain.NewValidationError("real path list")
	}
	return nil
}

// ValidateStoreChunk checks a StoreChunkRequest.
func ValidateStoreChunk(req *StoreChunkRequest) error {
	switch {
	case req == nil:
		return domain.NewValidationError("store chunk request")
	case isBlank(req.Filename):
		return domain.NewValidationError("filename")
	case isBlank(req.Identifier):
		return domain.NewValidationError("identifier")
	case !IsSafeIdentifier(req.Identifier):
		return domain.NewDomainError(domain.ErrValidation, "identifier must be a single path element", req.Identifier)
	case req.TotalSize <= 0:
		return domain.NewValidationError("total size")
	case req.Reader == nil:
		return domain.NewValidationError("chunk stream")
	case req.TotalChunks <= 0:
		return domain.NewValidationError("total chunks")
	case req.ChunkNumber <= 0:
		return domain.NewValidationError("chunk number")
	case req.ChunkSize <= 0:
		return domain.NewValidationError("chunk size")
	case req.UserID <= 0:
		return domain.NewValidationError("user id")
	case req.ChunkNumber > req.TotalChunks:
		return domain.NewDomainError(domain.ErrInvalidChunkNumber, "chunk number exceeds total chunks", req.Identifier)
	}
	return nil
}

// ValidateMerge checks a MergeRequest.
func ValidateMerge(req *MergeRequest) error {
	switch {
	case req == nil:
		return domain.NewValidationError("merge request")
	case isBlank(req.Filename):
		return domain.NewValidationError("filename")
	case len(req.RealPaths) == 0:
		return domain.NewValidationError("chunk path list")
	case req.TotalSize < 0:
		return domain.NewValidationError("total size")
	}
	for _, p := range req.RealPaths {
		if isBlank(p) {
			return domain.NewValidationError("chunk path")
		}
	}
	return nil
}

// ValidateRead checks a ReadRequest.
func ValidateRead(req *ReadRequest) error {
	switch {
	case req == nil:
		return domain.NewValidationError("read request")
	case isBlank(req.RealPath):
		return domain.NewValidationError("real path")
	case req.Writer == nil:
		return domain.NewValidationError("output stream")
	}
	return nil
}

// IsSafeIdentifier reports whether identifier can be used as one directory
// name below a storage root.
func IsSafeIdentifier(identifier string) bool {
	switch {
	case identifier == "", identifier == ".", strings.Contains(identifier, ".."):
		return false
	case strings.ContainsAny(identifier, `/\`+"\x00"):
		return false
	}
	return filepath.Base(identifier) == identifier && filepath.Clean(identifier) == identifier
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
