package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/pan-storage/internal/domain"
	"github.com/prn-tf/pan-storage/internal/storage"
)

// fakeAPI is an in-memory bucket.
type fakeAPI struct {
	mu       sync.Mutex
	objects  map[string][]byte
	uploads  map[string]map[int32][]byte
	copies   int
	aborted  int
	failCopy bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		objects: make(map[string][]byte),
		uploads: make(map[string]map[int32][]byte),
	}
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != aws.ToInt64(in.ContentLength) {
		return nil, fmt.Errorf("content length %d does not match body %d", aws.ToInt64(in.ContentLength), len(data))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("missing")}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeAPI) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range in.Delete.Objects {
		delete(f.objects, aws.ToString(o.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeAPI) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("upload-%d", len(f.uploads)+1)
	f.uploads[id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id), Key: in.Key}, nil
}

func (f *fakeAPI) UploadPartCopy(_ context.Context, in *s3.UploadPartCopyInput, _ ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCopy {
		return nil, errors.New("copy refused")
	}
	source, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}
	key := strings.TrimPrefix(source, aws.ToString(in.Bucket)+"/")
	data, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.copies++
	f.uploads[aws.ToString(in.UploadId)][aws.ToInt32(in.PartNumber)] = data
	etag := fmt.Sprintf("\"etag-%d\"", aws.ToInt32(in.PartNumber))
	return &s3.UploadPartCopyOutput{CopyPartResult: &types.CopyPartResult{ETag: aws.String(etag)}}, nil
}

func (f *fakeAPI) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := f.uploads[aws.ToString(in.UploadId)]
	numbers := make([]int, 0, len(in.MultipartUpload.Parts))
	for _, p := range in.MultipartUpload.Parts {
		numbers = append(numbers, int(aws.ToInt32(p.PartNumber)))
	}
	sort.Ints(numbers)
	var buf bytes.Buffer
	for _, n := range numbers {
		buf.Write(parts[int32(n)])
	}
	f.objects[aws.ToString(in.Key)] = buf.Bytes()
	delete(f.uploads, aws.ToString(in.UploadId))
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeAPI) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
	delete(f.uploads, aws.ToString(in.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func newTestEngine(api API) storage.Engine {
	return storage.WithValidation(New(api, Config{
		Bucket:      "pan",
		FilePrefix:  "upload",
		ChunkPrefix: "chunk",
	}, zerolog.Nop()))
}

func storeChunks(t *testing.T, e storage.Engine, parts [][]byte) []string {
	t.Helper()
	var total int64
	for _, p := range parts {
		total += int64(len(p))
	}
	keys := make([]string, len(parts))
	for i, p := range parts {
		key, err := e.StoreChunk(context.Background(), &storage.StoreChunkRequest{
			Reader:      bytes.NewReader(p),
			Filename:    "big.bin",
			Identifier:  "fingerprint",
			UserID:      1,
			ChunkNumber: i + 1,
			TotalChunks: len(parts),
			ChunkSize:   int64(len(p)),
			TotalSize:   total,
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(key, "chunk/"))
		assert.Contains(t, key, "/fingerprint/")
		keys[i] = key
	}
	return keys
}

func TestStoreAndRead(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e := newTestEngine(api)

	key, err := e.Store(ctx, &storage.StoreRequest{
		Reader:    strings.NewReader("hello world, trailing bytes ignored"),
		Filename:  "hello.txt",
		TotalSize: 11,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "upload/"))
	assert.True(t, strings.HasSuffix(key, ".txt"))

	var out bytes.Buffer
	require.NoError(t, e.ReadFile(ctx, &storage.ReadRequest{RealPath: key, Writer: &out}))
	assert.Equal(t, "hello world", out.String())

	err = e.ReadFile(ctx, &storage.ReadRequest{RealPath: "upload/missing", Writer: &out})
	require.ErrorIs(t, err, domain.ErrPhysicalFileNotFound)
}

func TestMerge_StreamsSmallChunks(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e := newTestEngine(api)

	keys := storeChunks(t, e, [][]byte{[]byte("AA"), []byte("BB"), []byte("CC")})

	merged, err := e.MergeFile(ctx, &storage.MergeRequest{Filename: "big.bin", Identifier: "fingerprint", UserID: 1, RealPaths: keys})
	require.NoError(t, err)
	assert.Equal(t, "AABBCC", string(api.objects[merged]))
	assert.Zero(t, api.copies)
	for _, k := range keys {
		assert.NotContains(t, api.objects, k)
	}
}

func TestMerge_CopiesLargeChunksServerSide(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e := newTestEngine(api)

	first := bytes.Repeat([]byte("a"), minPartSize)
	second := bytes.Repeat([]byte("b"), minPartSize)
	keys := storeChunks(t, e, [][]byte{first, second, []byte("tail")})

	merged, err := e.MergeFile(ctx, &storage.MergeRequest{Filename: "big.bin", Identifier: "fingerprint", UserID: 1, RealPaths: keys})
	require.NoError(t, err)
	assert.Equal(t, 3, api.copies)

	want := append(append(append([]byte{}, first...), second...), []byte("tail")...)
	assert.True(t, bytes.Equal(want, api.objects[merged]))
}

func TestMerge_CopyFailureAbortsAndKeepsChunks(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e := newTestEngine(api)

	big := bytes.Repeat([]byte("x"), minPartSize)
	keys := storeChunks(t, e, [][]byte{big, []byte("y")})
	api.failCopy = true

	_, err := e.MergeFile(ctx, &storage.MergeRequest{Filename: "big.bin", RealPaths: keys})
	require.ErrorIs(t, err, domain.ErrStorageIO)
	assert.Equal(t, 1, api.aborted)
	for _, k := range keys {
		assert.Contains(t, api.objects, k)
	}
}

func TestMerge_SizeMismatchKeepsChunks(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e := newTestEngine(api)

	keys := storeChunks(t, e, [][]byte{[]byte("AA"), []byte("BB")})
	before := len(api.objects)

	_, err := e.MergeFile(ctx, &storage.MergeRequest{Filename: "big.bin", Identifier: "fingerprint", RealPaths: keys, TotalSize: 5})
	require.ErrorIs(t, err, domain.ErrSizeMismatch)
	assert.Len(t, api.objects, before)

	merged, err := e.MergeFile(ctx, &storage.MergeRequest{Filename: "big.bin", Identifier: "fingerprint", RealPaths: keys, TotalSize: 4})
	require.NoError(t, err)
	assert.Equal(t, "AABB", string(api.objects[merged]))
}

func TestMerge_MissingChunk(t *testing.T) {
	e := newTestEngine(newFakeAPI())
	_, err := e.MergeFile(context.Background(), &storage.MergeRequest{Filename: "f", RealPaths: []string{"chunk/none"}})
	require.ErrorIs(t, err, domain.ErrStorageIO)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	e := newTestEngine(api)

	keys := storeChunks(t, e, [][]byte{[]byte("1"), []byte("2")})
	require.NoError(t, e.Delete(ctx, &storage.DeleteRequest{RealPaths: append(keys, "chunk/never-existed")}))
	assert.Empty(t, api.objects)
}

func TestCanCopyParts(t *testing.T) {
	assert.False(t, canCopyParts([]int64{minPartSize}))
	assert.False(t, canCopyParts([]int64{1, minPartSize}))
	assert.True(t, canCopyParts([]int64{minPartSize, 1}))
}
