// Package source fetches the bytes behind a schedule's source: a local
// file path or an s3://bucket/key object.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/JonMunkholm/menusync/internal/core"
)

var (
	// ErrSourceNotFound is returned when the file or object does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrOutsideBaseDir is returned for a local path that leaves the base
	// directory.
	ErrOutsideBaseDir = errors.New("source outside the source directory")
)

// S3Options configures access to S3-compatible object storage.
type S3Options struct {
	Region          string
	Endpoint        string // empty for AWS
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// NewS3Client builds a client for the given options.
func NewS3Client(opts S3Options) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.UsePathStyle,
	}
	if opts.AccessKeyID != "" {
		o.Credentials = credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	return s3.New(o)
}

// ObjectGetter is the part of the S3 client the fetcher uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher implements core.SourceFetcher.
type Fetcher struct {
	baseDir string
	maxSize int64
	s3      ObjectGetter
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseDir confines local sources to dir. Relative paths resolve against
// it; absolute paths must lie inside it. An empty dir leaves paths as given.
func WithBaseDir(dir string) Option {
	return func(f *Fetcher) {
		if dir == "" {
			f.baseDir = ""
			return
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		f.baseDir = dir
	}
}

// WithS3 enables s3:// sources.
func WithS3(client ObjectGetter) Option {
	return func(f *Fetcher) { f.s3 = client }
}

// NewFetcher returns a fetcher refusing sources larger than maxSize bytes
// (0 disables the cap).
func NewFetcher(maxSize int64, opts ...Option) *Fetcher {
	f := &Fetcher{maxSize: maxSize}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch reads the whole source. Missing, oversized and unsupported sources
// are input errors; transport failures are returned as is.
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "s3://") {
		return f.fetchS3(ctx, src)
	}
	if strings.Contains(src, "://") {
		return nil, core.InputError("fetch source", fmt.Errorf("%w: unsupported source scheme in %q", core.ErrUnsupportedFormat, src))
	}
	return f.fetchFile(ctx, src)
}

func (f *Fetcher) fetchFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := f.open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.InputError("fetch source", fmt.Errorf("%w: %s", ErrSourceNotFound, path))
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat source %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, core.InputError("fetch source", fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, path))
	}
	if f.maxSize > 0 && info.Size() > f.maxSize {
		return nil, f.tooLarge(info.Size())
	}
	return f.readCapped(file)
}

// open opens a local source. With a base directory the path is resolved
// inside it and symlinks may not lead out of it.
func (f *Fetcher) open(path string) (*os.File, error) {
	if f.baseDir == "" {
		file, err := os.Open(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open source %s: %w", path, err)
		}
		return file, err
	}

	rel := filepath.Clean(path)
	if filepath.IsAbs(rel) {
		r, err := filepath.Rel(f.baseDir, rel)
		if err != nil {
			return nil, f.outside(path)
		}
		rel = r
	}
	if !filepath.IsLocal(rel) {
		return nil, f.outside(path)
	}

	file, err := os.OpenInRoot(f.baseDir, rel)
	switch {
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return file, err
	case strings.Contains(err.Error(), "escapes from parent"):
		return nil, f.outside(path)
	default:
		return nil, fmt.Errorf("open source %s: %w", path, err)
	}
}

func (f *Fetcher) outside(path string) error {
	return core.InputError("fetch source", fmt.Errorf("%w: %s", ErrOutsideBaseDir, path))
}

func (f *Fetcher) fetchS3(ctx context.Context, uri string) ([]byte, error) {
	if f.s3 == nil {
		return nil, core.InputError("fetch source", fmt.Errorf("%w: s3 sources are not configured", core.ErrNotImplemented))
	}
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, core.InputError("fetch source", err)
	}

	out, err := f.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, core.InputError("fetch source", fmt.Errorf("%w: %s", ErrSourceNotFound, uri))
		}
		return nil, fmt.Errorf("get object %s: %w", uri, err)
	}
	defer out.Body.Close()

	if size := aws.ToInt64(out.ContentLength); f.maxSize > 0 && size > f.maxSize {
		return nil, f.tooLarge(size)
	}
	return f.readCapped(out.Body)
}

// readCapped reads r, failing once more than maxSize bytes arrive.
func (f *Fetcher) readCapped(r io.Reader) ([]byte, error) {
	if f.maxSize <= 0 {
		return io.ReadAll(r)
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if n > f.maxSize {
		return nil, f.tooLarge(n)
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) tooLarge(size int64) error {
	return core.InputError("fetch source", fmt.Errorf("%w: %d bytes exceeds limit of %d", core.ErrFileTooLarge, size, f.maxSize))
}

// parseS3URI extracts bucket and key from "s3://bucket/path/to/file".
func parseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 uri %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, uri)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri %q needs both bucket and key", uri)
	}
	return bucket, key, nil
}
