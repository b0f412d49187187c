// Package archive stores retired cluster dumps in a durable sink. A sink is
// addressed by URL: a bare path or file:// URL is a local directory,
// s3://bucket/prefix, gs://bucket/prefix and azblob://container/prefix select
// the matching object store.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Sink receives one named archive object. Implementations must consume the
// reader fully before returning.
type Sink interface {
	Store(ctx context.Context, name string, r io.Reader) error
}

// Open builds a sink from a target URL. Credentials for the object-store
// backends come from each SDK's usual environment (AWS shared config, Google
// application default credentials, AZURE_STORAGE_CONNECTION_STRING).
func Open(ctx context.Context, target string) (Sink, error) {
	if target == "" {
		return nil, fmt.Errorf("archive: empty target")
	}

	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" {
		// Plain filesystem path.
		return newFileSink(target)
	}

	switch u.Scheme {
	case "file":
		return newFileSink(u.Path)
	case "s3":
		return newS3Sink(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "gs":
		return newGCSSink(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "azblob":
		return newAzureSink(u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, fmt.Errorf("archive: unsupported scheme %q", u.Scheme)
	}
}

// objectKey prepends the sink's configured prefix to an archive name.
func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// fileSink writes archives into a local directory, temp-file-then-rename so a
// crash never leaves a partial archive under the final name.
type fileSink struct {
	dir string
}

func newFileSink(dir string) (*fileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", dir, err)
	}
	return &fileSink{dir: dir}, nil
}

func (s *fileSink) Store(ctx context.Context, name string, r io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, ".archive-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
