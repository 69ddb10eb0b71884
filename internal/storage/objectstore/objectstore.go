// Package objectstore implements storage.Engine on S3-compatible object stores
// such as AWS S3, Aliyun OSS and MinIO.
//
// The real path of a stored file is its object key.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/storage"
)

const (
	// minPartSize is the smallest part S3 accepts for every part but the last.
	minPartSize = 5 * 1024 * 1024

	// maxDeleteBatch is the DeleteObjects key limit.
	maxDeleteBatch = 1000
)

// API is the subset of *s3.Client the engine uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPartCopy(ctx context.Context, in *s3.UploadPartCopyInput, optFns ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

var _ API = (*s3.Client)(nil)

// Config holds object store connection settings.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	FilePrefix      string
	ChunkPrefix     string
}

// Engine stores files and chunks as objects in one bucket.
type Engine struct {
	client API
	bucket string
	layout *storage.PathLayout
	logger zerolog.Logger
}

// NewClient builds an *s3.Client from cfg.
// Static credentials are used when given, otherwise the default AWS chain.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// New creates an Engine on top of client.
func New(client API, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		client: client,
		bucket: cfg.Bucket,
		layout: storage.NewObjectLayout(cfg.FilePrefix, cfg.ChunkPrefix),
		logger: logger.With().Str("component", "s3_storage").Str("bucket", cfg.Bucket).Logger(),
	}
}

var _ storage.Engine = (*Engine)(nil)

// Store uploads exactly req.TotalSize bytes as a new object.
func (e *Engine) Store(ctx context.Context, req *storage.StoreRequest) (string, error) {
	key := e.layout.FilePath(req.Filename)
	if err := e.put(ctx, key, req.Reader, req.TotalSize, domain.ContentTypeFor(domain.FileSuffix(req.Filename))); err != nil {
		return "", err
	}
	return key, nil
}

// StoreChunk uploads exactly req.ChunkSize bytes as a chunk object.
func (e *Engine) StoreChunk(ctx context.Context, req *storage.StoreChunkRequest) (string, error) {
	key := e.layout.ChunkPath(req.Identifier, req.ChunkNumber)
	if err := e.put(ctx, key, req.Reader, req.ChunkSize, "application/octet-stream"); err != nil {
		return "", err
	}
	return key, nil
}

func (e *Engine) put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          io.LimitReader(r, size),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return domain.NewIOError("put object", key, err)
	}
	return nil
}

// Delete removes the objects in batches. Keys that do not exist are not
// reported by S3, so only real failures are returned.
func (e *Engine) Delete(ctx context.Context, req *storage.DeleteRequest) error {
	var errs []error
	for start := 0; start < len(req.RealPaths); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(req.RealPaths))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range req.RealPaths[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := e.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(e.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			errs = append(errs, domain.NewIOError("delete objects", e.bucket, err))
			continue
		}
		for _, oe := range out.Errors {
			errs = append(errs, domain.NewIOError("delete object", aws.ToString(oe.Key), errors.New(aws.ToString(oe.Message))))
		}
	}
	return errors.Join(errs...)
}

// MergeFile concatenates the chunk objects into a new object.
// Chunks large enough for S3 multipart are copied server side; otherwise the
// chunk bodies are streamed into a single upload.
func (e *Engine) MergeFile(ctx context.Context, req *storage.MergeRequest) (string, error) {
	sizes := make([]int64, len(req.RealPaths))
	var total int64
	for i, key := range req.RealPaths {
		head, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(e.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return "", domain.NewIOError("head chunk", key, err)
		}
		sizes[i] = aws.ToInt64(head.ContentLength)
		total += sizes[i]
	}
	if req.TotalSize > 0 && total != req.TotalSize {
		return "", domain.NewIOError(fmt.Sprintf("merge: chunks hold %d of %d bytes", total, req.TotalSize), req.Identifier, domain.ErrSizeMismatch)
	}

	key := e.layout.FilePath(req.Filename)
	var err error
	if canCopyParts(sizes) {
		err = e.mergeByCopy(ctx, key, req.RealPaths)
	} else {
		cr := &chunkReader{ctx: ctx, engine: e, keys: req.RealPaths}
		err = e.put(ctx, key, cr, total, domain.ContentTypeFor(domain.FileSuffix(req.Filename)))
		cr.Close()
	}
	if err != nil {
		return "", err
	}

	if err := e.Delete(ctx, &storage.DeleteRequest{RealPaths: req.RealPaths}); err != nil {
		e.logger.Warn().Err(err).Str("identifier", req.Identifier).Msg("failed to remove merged chunks")
	}

	e.logger.Debug().
		Str("identifier", req.Identifier).
		Int("chunks", len(req.RealPaths)).
		Int64("size", total).
		Str("key", key).
		Msg("chunks merged")

	return key, nil
}

func canCopyParts(sizes []int64) bool {
	if len(sizes) < 2 {
		return false
	}
	for _, s := range sizes[:len(sizes)-1] {
		if s < minPartSize {
			return false
		}
	}
	return true
}

func (e *Engine) mergeByCopy(ctx context.Context, key string, chunkKeys []string) error {
	created, err := e.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return domain.NewIOError("create multipart upload", key, err)
	}
	uploadID := created.UploadId

	abort := func(cause error) error {
		if _, err := e.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(e.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		}); err != nil {
			e.logger.Warn().Err(err).Str("key", key).Msg("failed to abort multipart upload")
		}
		return cause
	}

	parts := make([]types.CompletedPart, 0, len(chunkKeys))
	for i, chunkKey := range chunkKeys {
		partNumber := aws.Int32(int32(i + 1))
		out, err := e.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:     aws.String(e.bucket),
			Key:        aws.String(key),
			UploadId:   uploadID,
			PartNumber: partNumber,
			CopySource: aws.String(url.PathEscape(e.bucket + "/" + chunkKey)),
		})
		if err != nil {
			return abort(domain.NewIOError("copy part", chunkKey, err))
		}
		var etag *string
		if out.CopyPartResult != nil {
			etag = out.CopyPartResult.ETag
		}
		parts = append(parts, types.CompletedPart{ETag: etag, PartNumber: partNumber})
	}

	_, err = e.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(e.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return abort(domain.NewIOError("complete multipart upload", key, err))
	}
	return nil
}

// ReadFile streams the object body into req.Writer.
func (e *Engine) ReadFile(ctx context.Context, req *storage.ReadRequest) error {
	body, err := e.open(ctx, req.RealPath)
	if err != nil {
		return err
	}
	defer body.Close()

	if _, err := io.Copy(req.Writer, body); err != nil {
		return domain.NewIOError("read object", req.RealPath, err)
	}
	return nil
}

func (e *Engine) open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, domain.NewDomainError(domain.ErrPhysicalFileNotFound, "get object", key)
		}
		return nil, domain.NewIOError("get object", key, err)
	}
	return out.Body, nil
}

// chunkReader reads the chunk objects back to back, opening each lazily.
type chunkReader struct {
	ctx     context.Context
	engine  *Engine
	keys    []string
	current io.ReadCloser
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if len(r.keys) == 0 {
				return 0, io.EOF
			}
			body, err := r.engine.open(r.ctx, r.keys[0])
			if err != nil {
				return 0, err
			}
			r.current = body
			r.keys = r.keys[1:]
		}

		n, err := r.current.Read(p)
		if errors.Is(err, io.EOF) {
			r.current.Close()
			r.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Close releases the chunk body being read, if any.
func (r *chunkReader) Close() error {
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}
