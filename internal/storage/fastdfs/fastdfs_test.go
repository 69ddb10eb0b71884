package fastdfs

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/storage"
)

func TestEngine_Unsupported(t *testing.T) {
	ctx := context.Background()
	e := storage.WithValidation(New(Config{Trackers: []string{"127.0.0.1:22122"}, Group: "group1"}, zerolog.Nop()))

	_, err := e.Store(ctx, &storage.StoreRequest{Reader: strings.NewReader("x"), Filename: "a", TotalSize: 1})
	require.ErrorIs(t, err, domain.ErrBackendUnsupported)
	assert.Equal(t, domain.KindFatal, domain.KindOf(err))

	err = e.ReadFile(ctx, &storage.ReadRequest{RealPath: "group1/M00/a", Writer: &bytes.Buffer{}})
	require.ErrorIs(t, err, domain.ErrBackendUnsupported)

	// Validation still runs first.
	_, err = e.Store(ctx, &storage.StoreRequest{Filename: "a"})
	assert.True(t, domain.IsValidation(err))
}
