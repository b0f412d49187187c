package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Sink uploads archives to an S3 bucket.
type s3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

func newS3Sink(ctx context.Context, bucket, prefix string) (*s3Sink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive: s3 URL has no bucket")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: aws config: %w", err)
	}
	return &s3Sink{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *s3Sink) Store(ctx context.Context, name string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, name)),
		Body:   r,
	})
	return err
}
