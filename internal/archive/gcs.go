package archive

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// gcsSink uploads archives to a Google Cloud Storage bucket. The client
// authenticates via application default credentials.
type gcsSink struct {
	client *storage.Client
	bucket string
	prefix string
}

func newGCSSink(ctx context.Context, bucket, prefix string) (*gcsSink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive: gs URL has no bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: gcs client: %w", err)
	}
	return &gcsSink{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *gcsSink) Store(ctx context.Context, name string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(objectKey(s.prefix, name)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
