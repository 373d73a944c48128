package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mediaExtensions are the raster formats picked up next to an extraction.
var mediaExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// DefaultMimeType is used for extensions outside the known set.
const DefaultMimeType = "application/octet-stream"

// FindMedia returns the files in dir named {base}_img*.{ext} for the known
// image extensions, sorted by path.
func FindMedia(dir, base string) ([]string, error) {
	var found []string
	for _, ext := range mediaExtensions {
		pattern := filepath.Join(globEscape(dir), globEscape(base)+"_img*."+ext)
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("finding media for %s: %w", base, err)
		}
		found = append(found, matches...)
	}
	sort.Strings(found)
	return found, nil
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MimeType maps a file extension to its MIME type.
func MimeType(file string) string {
	if m, ok := mimeTypes[strings.ToLower(filepath.Ext(file))]; ok {
		return m
	}
	return DefaultMimeType
}

// MediaPath is the storage path of the index-th media file of a question,
// relative to the media root. It always uses forward slashes.
func MediaPath(source, key string, index int, ext string) string {
	return path.Join(source, fmt.Sprintf("%s_img%d%s", key, index, ext))
}

// MediaStore receives copies of discovered media files.
type MediaStore interface {
	// Put stores the file at srcPath under relPath.
	Put(ctx context.Context, relPath, srcPath, mimeType string) error
	// Remove deletes relPath. A missing file is not an error.
	Remove(ctx context.Context, relPath string) error
	Name() string
}

// FSStore copies media below a local root directory.
type FSStore struct {
	Root string
}

// NewFSStore returns a store rooted at root.
func NewFSStore(root string) *FSStore {
	return &FSStore{Root: root}
}

// Put copies srcPath to Root/relPath, keeping its modification time.
func (s *FSStore) Put(_ context.Context, relPath, srcPath, _ string) error {
	dest := filepath.Join(s.Root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating media directory: %w", err)
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening media %s: %w", srcPath, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat media %s: %w", srcPath, err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying %s: %w", srcPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dest, err)
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

// Remove deletes Root/relPath.
func (s *FSStore) Remove(_ context.Context, relPath string) error {
	err := os.Remove(filepath.Join(s.Root, filepath.FromSlash(relPath)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing media %s: %w", relPath, err)
	}
	return nil
}

// Name returns "fs".
func (s *FSStore) Name() string { return "fs" }

// objectClient is the part of the S3 client used by S3Store.
type objectClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config configures the S3 media backend. Empty values fall back to the
// standard AWS configuration chain.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3Store uploads media to a bucket, keyed by prefix + relative path.
type S3Store struct {
	client objectClient
	bucket string
	prefix string
}

// NewS3Store builds an S3 client from the default AWS configuration.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 media backend requires a bucket")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client objectClient, bucket, prefix string) *S3Store {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads srcPath to the bucket.
func (s *S3Store) Put(ctx context.Context, relPath, srcPath, mimeType string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening media %s: %w", srcPath, err)
	}
	defer func() { _ = f.Close() }()

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + relPath),
		Body:   f,
	}
	if mimeType != "" {
		in.ContentType = aws.String(mimeType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("uploading %s to s3: %w", relPath, err)
	}
	return nil
}

// Remove deletes the object stored under relPath.
func (s *S3Store) Remove(ctx context.Context, relPath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + relPath),
	})
	if err != nil {
		return fmt.Errorf("deleting %s from s3: %w", relPath, err)
	}
	return nil
}

// Name returns "s3".
func (s *S3Store) Name() string { return "s3" }

var (
	_ MediaStore = (*FSStore)(nil)
	_ MediaStore = (*S3Store)(nil)
)
