package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/metrics"
	"github.com/prn-tf/pan-storage/internal/pkg/crypto"
	"github.com/prn-tf/pan-storage/internal/repository"
	"github.com/prn-tf/pan-storage/internal/storage"
)

// DefaultDedupCacheTTL bounds how long an identifier to file ID mapping is cached.
const DefaultDedupCacheTTL = 24 * time.Hour

// FileService handles whole-file storage, instant upload and reads.
type FileService struct {
	files    repository.PhysicalFileRepository
	cache    repository.Cache
	engine   storage.Engine
	ids      IDGenerator
	cipher   *crypto.IDCipher
	reporter *ErrorReporter
	metrics  *metrics.Metrics
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// FileServiceDeps holds the collaborators of a FileService.
// Cache, Reporter and Metrics are optional.
type FileServiceDeps struct {
	Files    repository.PhysicalFileRepository
	Cache    repository.Cache
	Engine   storage.Engine
	IDs      IDGenerator
	Cipher   *crypto.IDCipher
	Reporter *ErrorReporter
	Metrics  *metrics.Metrics
	CacheTTL time.Duration
}

// NewFileService creates a new FileService.
// The engine is wrapped with storage.WithValidation.
func NewFileService(deps FileServiceDeps, logger zerolog.Logger) *FileService {
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = DefaultDedupCacheTTL
	}
	return &FileService{
		files:    deps.Files,
		cache:    deps.Cache,
		engine:   storage.WithValidation(deps.Engine),
		ids:      deps.IDs,
		cipher:   deps.Cipher,
		reporter: deps.Reporter,
		metrics:  deps.Metrics,
		cacheTTL: ttl,
		logger:   logger.With().Str("service", "file").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// SecUploadInput identifies content a user may already have stored.
type SecUploadInput struct {
	UserID     int64
	Identifier string
}

// UploadInput contains the data needed to store a whole file.
type UploadInput struct {
	UserID     int64
	Filename   string
	Identifier string
	Size       int64
	Body       io.Reader
}

// UploadOutput contains the result of storing a whole file.
type UploadOutput struct {
	File *domain.PhysicalFile

	// Instant is true when existing content was reused and no bytes moved.
	Instant bool
}

// =============================================================================
// Service Methods
// =============================================================================

// FindPhysicalFile returns the user's physical file for identifier.
// Returns domain.ErrPhysicalFileNotFound if there is none.
func (s *FileService) FindPhysicalFile(ctx context.Context, userID int64, identifier string) (*domain.PhysicalFile, error) {
	if identifier == "" {
		return nil, domain.NewValidationError("identifier")
	}

	key := repository.CacheKeys.PhysicalFile(userID, identifier)
	if file := s.fromCache(ctx, key, userID, identifier); file != nil {
		return file, nil
	}

	files, err := s.files.List(ctx, repository.PhysicalFileFilter{
		CreatorID:  userID,
		Identifier: identifier,
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if len(files) == 0 {
		return nil, domain.ErrPhysicalFileNotFound
	}

	s.toCache(ctx, files[0])
	return files[0], nil
}

// fromCache resolves a cached file ID. Stale or broken entries are dropped.
func (s *FileService) fromCache(ctx context.Context, key string, userID int64, identifier string) *domain.PhysicalFile {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("dedup cache lookup failed")
		}
		return nil
	}

	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err == nil {
		file, getErr := s.files.GetByID(ctx, id)
		if getErr == nil && file.CreatorID == userID && file.Identifier == identifier {
			return file
		}
	}

	_ = s.cache.Delete(ctx, key)
	return nil
}

func (s *FileService) toCache(ctx context.Context, file *domain.PhysicalFile) {
	if s.cache == nil {
		return
	}
	key := repository.CacheKeys.PhysicalFile(file.CreatorID, file.Identifier)
	if err := s.cache.Set(ctx, key, []byte(strconv.FormatInt(file.ID, 10)), s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dedup cache fill failed")
	}
}

// SecUpload looks for content the user already stored under the same identifier.
// On a hit the existing file is returned with true and no bytes are transferred.
func (s *FileService) SecUpload(ctx context.Context, input SecUploadInput) (*domain.PhysicalFile, bool, error) {
	file, err := s.FindPhysicalFile(ctx, input.UserID, input.Identifier)
	if err != nil {
		if errors.Is(err, domain.ErrPhysicalFileNotFound) {
			s.metrics.DedupLookup(false)
			return nil, false, nil
		}
		return nil, false, err
	}

	s.metrics.DedupLookup(true)
	s.logger.Debug().
		Int64("user_id", input.UserID).
		Str("identifier", input.Identifier).
		Int64("file_id", file.ID).
		Msg("instant upload hit")
	return file, true, nil
}

// Upload stores a whole file unless the user already has the same content.
func (s *FileService) Upload(ctx context.Context, input UploadInput) (*UploadOutput, error) {
	existing, hit, err := s.SecUpload(ctx, SecUploadInput{UserID: input.UserID, Identifier: input.Identifier})
	if err != nil {
		return nil, err
	}
	if hit {
		return &UploadOutput{File: existing, Instant: true}, nil
	}

	realPath, err := s.engine.Store(ctx, &storage.StoreRequest{
		Reader:    input.Body,
		Filename:  input.Filename,
		TotalSize: input.Size,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.BytesStored("file", input.Size)

	file, reused, err := s.register(ctx, input.UserID, input.Filename, input.Identifier, realPath, input.Size)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("file_id", file.ID).
		Int64("user_id", input.UserID).
		Str("real_path", file.RealPath).
		Int64("size", file.Size).
		Msg("file stored")

	return &UploadOutput{File: file, Instant: reused}, nil
}

// register records bytes already written at realPath as a PhysicalFile.
// When the record cannot be written the bytes are removed again. If a
// concurrent upload won the unique (creator, identifier) slot, its record
// is returned with reused set.
func (s *FileService) register(ctx context.Context, userID int64, filename, identifier, realPath string, size int64) (file *domain.PhysicalFile, reused bool, err error) {
	id, err := s.ids.Generate()
	if err != nil {
		s.metrics.IDFailure()
		s.compensate(ctx, userID, []string{realPath}, err)
		return nil, false, err
	}

	file = domain.NewPhysicalFile(id, filename, identifier, realPath, size, userID)
	err = s.files.Create(ctx, file)
	switch {
	case err == nil:
		s.toCache(ctx, file)
		return file, false, nil

	case errors.Is(err, domain.ErrPhysicalFileExists):
		s.compensate(ctx, userID, []string{realPath}, err)
		winner, findErr := s.FindPhysicalFile(ctx, userID, identifier)
		if findErr != nil {
			return nil, false, findErr
		}
		return winner, true, nil

	default:
		s.compensate(ctx, userID, []string{realPath}, err)
		return nil, false, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
}

// compensate deletes bytes whose metadata could not be recorded.
// A failed delete is reported; the caller still returns the original cause.
func (s *FileService) compensate(ctx context.Context, userID int64, realPaths []string, cause error) {
	if err := s.engine.Delete(ctx, &storage.DeleteRequest{RealPaths: realPaths}); err != nil {
		s.reporter.Reportf(ctx, userID, "compensating delete of %v failed after %v: %v", realPaths, cause, err)
		return
	}
	s.logger.Debug().Strs("real_paths", realPaths).Err(cause).Msg("removed unrecorded bytes")
}

// Get returns a physical file by ID.
func (s *FileService) Get(ctx context.Context, fileID int64) (*domain.PhysicalFile, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, domain.ErrPhysicalFileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return file, nil
}

// GetByToken returns the physical file addressed by an obfuscated ID.
func (s *FileService) GetByToken(ctx context.Context, token string) (*domain.PhysicalFile, error) {
	id, err := s.cipher.Reveal(token)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Token returns the obfuscated form of a file ID for external references.
func (s *FileService) Token(fileID int64) string {
	return s.cipher.Obfuscate(fileID)
}

// Stream copies the bytes of file to w.
func (s *FileService) Stream(ctx context.Context, file *domain.PhysicalFile, w io.Writer) error {
	return s.engine.ReadFile(ctx, &storage.ReadRequest{RealPath: file.RealPath, Writer: w})
}

// Read copies the bytes of the file with fileID to w.
func (s *FileService) Read(ctx context.Context, fileID int64, w io.Writer) (*domain.PhysicalFile, error) {
	file, err := s.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := s.Stream(ctx, file, w); err != nil {
		return nil, err
	}
	return file, nil
}

// ReadByToken reveals token and copies the addressed file to w.
func (s *FileService) ReadByToken(ctx context.Context, token string, w io.Writer) (*domain.PhysicalFile, error) {
	id, err := s.cipher.Reveal(token)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, id, w)
}

// DeletePhysical removes physical files and their bytes.
// Records go first so no reader can reach deleted bytes; bytes that
// cannot be removed afterwards are reported.
func (s *FileService) DeletePhysical(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, domain.NewValidationError("physical file ids")
	}

	files, err := s.files.List(ctx, repository.PhysicalFileFilter{IDs: ids})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if len(files) == 0 {
		return 0, nil
	}

	n, err := s.files.Delete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	paths := make([]string, len(files))
	keys := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.RealPath
		keys[i] = repository.CacheKeys.PhysicalFile(f.CreatorID, f.Identifier)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, keys...); err != nil {
			s.logger.Warn().Err(err).Msg("dedup cache invalidation failed")
		}
	}

	if err := s.engine.Delete(ctx, &storage.DeleteRequest{RealPaths: paths}); err != nil {
		s.reporter.Reportf(ctx, files[0].CreatorID, "delete of physical file bytes %v failed: %v", paths, err)
		return n, err
	}

	s.logger.Info().Int64("count", n).Msg("physical files deleted")
	return n, nil
}
