// Package fastdfs holds the FastDFS storage engine.
//
// No FastDFS client is wired in yet, so every operation returns
// domain.ErrBackendUnsupported. The engine exists so that configuration
// and wiring can select it and fail loudly on first use.
package fastdfs

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/storage"
)

// Config holds FastDFS tracker settings.
type Config struct {
	Trackers []string
	Group    string
}

// Engine is a storage.Engine for FastDFS.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates an Engine.
func New(cfg Config, logger zerolog.Logger) *Engine {
	l := logger.With().Str("component", "fastdfs_storage").Logger()
	l.Warn().Strs("trackers", cfg.Trackers).Msg("fastdfs engine selected; all operations will fail")
	return &Engine{cfg: cfg, logger: l}
}

var _ storage.Engine = (*Engine)(nil)

func (e *Engine) unsupported(op string) error {
	return domain.NewDomainError(domain.ErrBackendUnsupported, op, "fastdfs/"+e.cfg.Group)
}

func (e *Engine) Store(context.Context, *storage.StoreRequest) (string, error) {
	return "", e.unsupported("store")
}

func (e *Engine) Delete(context.Context, *storage.DeleteRequest) error {
	return e.unsupported("delete")
}

func (e *Engine) StoreChunk(context.Context, *storage.StoreChunkRequest) (string, error) {
	return "", e.unsupported("store chunk")
}

func (e *Engine) MergeFile(context.Context, *storage.MergeRequest) (string, error) {
	return "", e.unsupported("merge file")
}

func (e *Engine) ReadFile(context.Context, *storage.ReadRequest) error {
	return e.unsupported("read file")
}
