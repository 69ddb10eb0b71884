package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/repository"
)

// ErrorReporter records operator-visible error events, such as a
// compensating delete that left bytes behind.
// A nil *ErrorReporter only drops events.
type ErrorReporter struct {
	repo   repository.ErrorLogRepository
	ids    IDGenerator
	logger zerolog.Logger
}

// NewErrorReporter creates a new ErrorReporter.
func NewErrorReporter(repo repository.ErrorLogRepository, ids IDGenerator, logger zerolog.Logger) *ErrorReporter {
	return &ErrorReporter{
		repo:   repo,
		ids:    ids,
		logger: logger.With().Str("service", "error_reporter").Logger(),
	}
}

// Report logs msg at error level and persists it as an unresolved entry.
// Persistence failures are logged and otherwise ignored.
func (r *ErrorReporter) Report(ctx context.Context, userID int64, msg string) {
	if r == nil {
		return
	}

	r.logger.Error().Int64("user_id", userID).Msg(msg)

	id, err := r.ids.Generate()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to generate error log id")
		return
	}

	if err := r.repo.Create(ctx, domain.NewErrorLog(id, userID, msg)); err != nil {
		r.logger.Error().Err(err).Int64("error_log_id", id).Msg("failed to persist error log")
	}
}

// Reportf is Report with a format string.
func (r *ErrorReporter) Reportf(ctx context.Context, userID int64, format string, args ...any) {
	if r == nil {
		return
	}
	r.Report(ctx, userID, fmt.Sprintf(format, args...))
}

// ListUnresolved returns up to limit unresolved entries, newest first.
func (r *ErrorReporter) ListUnresolved(ctx context.Context, limit int) ([]*domain.ErrorLog, error) {
	status := domain.ErrorLogUnresolved
	entries, err := r.repo.List(ctx, repository.ErrorLogFilter{Status: &status, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return entries, nil
}

// Resolve marks the given entries resolved and returns how many changed.
func (r *ErrorReporter) Resolve(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, domain.NewValidationError("error log ids")
	}

	n, err := r.repo.UpdateStatus(ctx, ids, domain.ErrorLogResolved)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	r.logger.Info().Int64("count", n).Msg("resolved error logs")
	return n, nil
}
