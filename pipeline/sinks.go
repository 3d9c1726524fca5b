package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aluiziolira/go-scrape-orders/config"
)

// Sink receives the finished export and reports where it was stored.
type Sink interface {
	Deliver(ctx context.Context, p Payload) (string, error)
}

// FileSink writes exports into a directory.
type FileSink struct {
	dir string
}

// NewFileSink returns a sink writing into dir, created on first delivery.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Deliver writes the payload through a temporary file so a partial export never appears
// under the final name.
func (s *FileSink) Deliver(ctx context.Context, p Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %q: %w", s.dir, err)
	}

	target := filepath.Join(s.dir, p.FileName)
	tmp, err := os.CreateTemp(s.dir, "."+p.FileName+".*")
	if err != nil {
		return "", fmt.Errorf("create temporary export file: %w", err)
	}
	if _, err := tmp.Write(p.Content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("move export into place: %w", err)
	}
	return target, nil
}

type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectSink uploads exports to S3-compatible storage.
type ObjectSink struct {
	client objectPutter
	bucket string
	prefix string
}

// NewObjectSink connects to the configured endpoint. It does not contact the server.
func NewObjectSink(cfg config.S3Config) (*ObjectSink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket cannot be empty")
	}
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &ObjectSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Deliver uploads the payload under prefix/filename.
func (s *ObjectSink) Deliver(ctx context.Context, p Payload) (string, error) {
	key := path.Join(s.prefix, p.FileName)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(p.Content), int64(len(p.Content)), minio.PutObjectOptions{
		ContentType: p.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// cleanEndpoint reduces an endpoint URL to the host:port form minio expects.
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", errors.New("endpoint cannot be empty")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", errors.New("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return "", fmt.Errorf("endpoint cannot have a path (got %s)", parsed.Path)
	}
	return parsed.Host, nil
}

// MultiSink delivers the same payload to several sinks, in order.
type MultiSink struct {
	sinks []Sink
	mu    sync.Mutex
}

// NewMultiSink combines sinks. Nil entries are ignored.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Deliver hands p to every sink and joins the locations with ", ". Every sink is attempted
// even after a failure; the errors are joined.
func (m *MultiSink) Deliver(ctx context.Context, p Payload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		locations []string
		errs      []error
	)
	for _, s := range m.sinks {
		loc, err := s.Deliver(ctx, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		locations = append(locations, loc)
	}
	return strings.Join(locations, ", "), errors.Join(errs...)
}
