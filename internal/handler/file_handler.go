package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/domain"
)

// FileReader resolves and streams physical files.
// Implemented by *service.FileService.
type FileReader interface {
	GetByToken(ctx context.Context, token string) (*domain.PhysicalFile, error)
	Stream(ctx context.Context, file *domain.PhysicalFile, w io.Writer) error
}

// FileHandler serves stored files addressed by obfuscated ID.
type FileHandler struct {
	files  FileReader
	logger zerolog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(files FileReader, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		files:  files,
		logger: logger.With().Str("handler", "file").Logger(),
	}
}

// RegisterRoutes registers file routes.
// Tokens are standard Base64 and may contain '/', so the token is the whole
// remainder of the path, either literal or percent-encoded.
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/files/*", h.HandleDownload)
	r.Head("/files/*", h.HandleDownload)
}

// HandleDownload streams the file named by the token in the path.
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")
	token, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, domain.NewDomainError(domain.ErrDecode, "invalid token escaping", raw))
		return
	}

	file, err := h.files.GetByToken(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.Filename}))

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	cw := &countingWriter{w: w}
	if err := h.files.Stream(r.Context(), file, cw); err != nil {
		if cw.n == 0 {
			w.Header().Del("Content-Length")
			w.Header().Del("Content-Disposition")
			writeError(w, err)
			return
		}
		// Headers are already sent.
		h.logger.Error().
			Err(err).
			Int64("file_id", file.ID).
			Str("real_path", file.RealPath).
			Msg("failed to stream file")
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
