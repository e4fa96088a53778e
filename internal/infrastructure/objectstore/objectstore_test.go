package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
)

// failingUploader fails for keys whose file name was registered as bad.
type failingUploader struct {
	calls atomic.Int32
	err   error
}

func (f *failingUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "https://cdn/" + key, nil
}

// ============================================
// Sniff Tests
// ============================================

func TestSniff(t *testing.T) {
	contentType, err := Sniff(pngBytes, KindImage)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	contentType, err = Sniff(pdfBytes, KindDocument)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)

	_, err = Sniff(pdfBytes, KindImage)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	_, err = Sniff(nil, KindImage)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Sniff(make([]byte, MaxFileSize+1), KindImage)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("/posts/p1/", "image/png")

	assert.True(t, strings.HasPrefix(key, "posts/p1/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
}

// ============================================
// UploadAll Tests
// ============================================

func TestUploadAll_PerFileFailure(t *testing.T) {
	store := NewMemoryStore("")
	files := []File{
		{Field: "images", Name: "a.png", Data: pngBytes, Kind: KindImage},
		{Field: "images", Name: "notes.pdf", Data: pdfBytes, Kind: KindImage},
		{Field: "images", Name: "b.png", Data: pngBytes, Kind: KindImage},
	}

	results, err := UploadAll(context.Background(), store, "posts/p1", files)

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	require.Len(t, results, 3)
	assert.NotEmpty(t, results[0].URL)
	assert.Empty(t, results[1].URL)
	assert.Error(t, results[1].Err)
	assert.NotEmpty(t, results[2].URL)
	assert.Equal(t, 2, store.Len())
	assert.Len(t, URLs(results), 2)
}

func TestUploadAll_BackendFailure(t *testing.T) {
	up := &failingUploader{err: errors.New("s3 unavailable")}
	files := []File{
		{Name: "a.png", Data: pngBytes},
		{Name: "b.png", Data: pngBytes},
	}

	results, err := UploadAll(context.Background(), up, "accounts/u1", files)

	assert.Len(t, multierr.Errors(err), 2)
	assert.Empty(t, URLs(results))
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestUploadAll_NoUploader(t *testing.T) {
	results, err := UploadAll(context.Background(), nil, "x", []File{{Name: "a.png", Data: pngBytes}})

	assert.Equal(t, apperr.CodeDependency, apperr.CodeOf(multierr.Errors(err)[0]))
	assert.Empty(t, URLs(results))
}

func TestUploadAll_Empty(t *testing.T) {
	results, err := UploadAll(context.Background(), NewMemoryStore(""), "x", nil)

	assert.NoError(t, err)
	assert.Empty(t, results)
}

// ============================================
// S3 Store Tests
// ============================================

type mockS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.input = params
	raw, _ := io.ReadAll(params.Body)
	m.body = string(raw)
	return &s3.PutObjectOutput{}, m.err
}

func TestS3Store_Upload(t *testing.T) {
	client := &mockS3{}
	store := NewS3Store(client, "bucket", "ap-south-1", "")

	url, err := store.Upload(context.Background(), "posts/p1/a.png", []byte("data"), "image/png")

	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.ap-south-1.amazonaws.com/posts/p1/a.png", url)
	assert.Equal(t, "bucket", aws.ToString(client.input.Bucket))
	assert.Equal(t, "image/png", aws.ToString(client.input.ContentType))
	assert.Equal(t, "data", client.body)
}

func TestS3Store_PublicBaseURL(t *testing.T) {
	store := NewS3Store(&mockS3{}, "bucket", "ap-south-1", "https://cdn.example.com/")

	url, err := store.Upload(context.Background(), "k.png", []byte("x"), "image/png")

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/k.png", url)
}

func TestS3Store_Failure(t *testing.T) {
	store := NewS3Store(&mockS3{err: errors.New("denied")}, "bucket", "ap-south-1", "")

	_, err := store.Upload(context.Background(), "k.png", []byte("x"), "image/png")

	assert.Equal(t, apperr.CodeDependency, apperr.CodeOf(err))
}
