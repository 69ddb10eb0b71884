package objectstore

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pan-storage/internal/storage"
)

// getTestConfig reads object store settings from the environment.
// The test is skipped unless PAN_TEST_S3_ENDPOINT is set.
func getTestConfig(t *testing.T) Config {
	t.Helper()
	endpoint := os.Getenv("PAN_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("PAN_TEST_S3_ENDPOINT not set")
	}
	return Config{
		Endpoint:        endpoint,
		Region:          getEnv("PAN_TEST_S3_REGION", "us-east-1"),
		Bucket:          getEnv("PAN_TEST_S3_BUCKET", "pan-test"),
		AccessKeyID:     getEnv("PAN_TEST_S3_ACCESS_KEY_ID", "minioadmin"),
		SecretAccessKey: getEnv("PAN_TEST_S3_SECRET_ACCESS_KEY", "minioadmin"),
		UsePathStyle:    true,
		FilePrefix:      "it/upload",
		ChunkPrefix:     "it/chunk",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func TestIntegration_ChunkedUpload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := getTestConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := NewClient(ctx, cfg)
	require.NoError(t, err)

	_, _ = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)})

	e := storage.WithValidation(New(client, cfg, zerolog.Nop()))

	parts := []string{"AA", "BB", "CC"}
	keys := make([]string, len(parts))
	for i, p := range parts {
		keys[i], err = e.StoreChunk(ctx, &storage.StoreChunkRequest{
			Reader:      strings.NewReader(p),
			Filename:    "it.txt",
			Identifier:  "integration",
			UserID:      1,
			ChunkNumber: i + 1,
			TotalChunks: len(parts),
			ChunkSize:   int64(len(p)),
			TotalSize:   6,
		})
		require.NoError(t, err)
	}

	merged, err := e.MergeFile(ctx, &storage.MergeRequest{Filename: "it.txt", Identifier: "integration", UserID: 1, RealPaths: keys})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, e.ReadFile(ctx, &storage.ReadRequest{RealPath: merged, Writer: &out}))
	require.Equal(t, "AABBCC", out.String())

	require.NoError(t, e.Delete(ctx, &storage.DeleteRequest{RealPaths: []string{merged}}))
}
