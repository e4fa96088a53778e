package objectstore

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// MaxFileSize caps a single upload.
const MaxFileSize = 10 << 20

const uploadConcurrency = 4

var (
	ErrEmptyFile       = apperr.New(apperr.CodeValidation, "file is empty")
	ErrFileTooLarge    = apperr.New(apperr.CodeValidation, "file exceeds 10MB")
	ErrUnsupportedType = apperr.New(apperr.CodeValidation, "unsupported file type")
)

// Uploader stores one object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Kind decides which content types a file may have.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

var allowedTypes = map[Kind][]string{
	KindImage:    {"image/jpeg", "image/png", "image/webp", "image/gif"},
	KindDocument: {"image/jpeg", "image/png", "image/webp", "application/pdf"},
}

// File is one upload, usually a multipart part. Field names the form field
// it came from.
type File struct {
	Field string
	Name  string
	Data  []byte
	Kind  Kind
}

// Result is the outcome for Files[i]. URL is empty when Err is set.
type Result struct {
	Field string
	Name  string
	URL   string
	Err   error
}

// Sniff detects the content type from the bytes and checks it against kind.
func Sniff(data []byte, kind Kind) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if len(data) > MaxFileSize {
		return "", ErrFileTooLarge.WithDetails(map[string]any{"size": len(data)})
	}
	detected := mimetype.Detect(data)
	allowed, ok := allowedTypes[kind]
	if !ok {
		allowed = allowedTypes[KindImage]
	}
	for _, t := range allowed {
		if detected.Is(t) {
			return t, nil
		}
	}
	return "", ErrUnsupportedType.WithDetails(map[string]any{
		"detected": detected.String(),
		"allowed":  allowed,
	})
}

// ObjectKey builds "<prefix>/<uuid><ext>", keeping the extension the
// detected type implies.
func ObjectKey(prefix, contentType string) string {
	ext := ""
	if m := mimetype.Lookup(contentType); m != nil {
		ext = m.Extension()
	}
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+ext)
}

// UploadAll uploads files concurrently under prefix. Each file succeeds or
// fails on its own: results always line up with files, and the returned
// error combines every per-file failure.
func UploadAll(ctx context.Context, up Uploader, prefix string, files []File) ([]Result, error) {
	results := make([]Result, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)

	for i, f := range files {
		results[i] = Result{Field: f.Field, Name: f.Name}
		g.Go(func() error {
			url, err := uploadOne(gctx, up, prefix, f)
			if err != nil {
				results[i].Err = fmt.Errorf("%s: %w", f.Name, err)
				return nil
			}
			results[i].URL = url
			return nil
		})
	}
	_ = g.Wait()

	var errs error
	for _, r := range results {
		errs = multierr.Append(errs, r.Err)
	}
	return results, errs
}

func uploadOne(ctx context.Context, up Uploader, prefix string, f File) (string, error) {
	if up == nil {
		return "", apperr.New(apperr.CodeDependency, "object storage is not configured")
	}
	contentType, err := Sniff(f.Data, f.Kind)
	if err != nil {
		return "", err
	}
	return up.Upload(ctx, ObjectKey(prefix, contentType), f.Data, contentType)
}

// URLs returns the successful URLs in input order.
func URLs(results []Result) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.Err == nil && r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls
}
