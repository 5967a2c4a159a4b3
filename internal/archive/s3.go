// Package archive retains raw webhook payloads in object storage. Rows in
// the event store are already normalized; the archive keeps the original
// bytes for replay and provider-dispute audits.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ObjectPutter is the slice of the S3 API the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes payloads under date-partitioned keys:
// <prefix>2025/06/01/<uuid>.json
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

// New connects to S3 with the default credential chain.
func New(ctx context.Context, bucket, prefix, region, profile string) (*S3Archiver, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewWithClient wires an existing client. Tests use this with a fake.
func NewWithClient(client ObjectPutter, bucket, prefix string) *S3Archiver {
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Archive stores one raw payload. The key embeds the receipt date so
// lifecycle rules can expire old partitions.
func (a *S3Archiver) Archive(ctx context.Context, payload []byte, receivedAt time.Time) error {
	key := fmt.Sprintf("%s%s/%s.json",
		a.prefix, receivedAt.UTC().Format("2006/01/02"), uuid.New().String())

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting payload to S3: %w", err)
	}
	return nil
}
