package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"escrowops/internal/gate/models"
	"escrowops/internal/platform/config"
	"escrowops/pkg/platform/sentinel"
)

// ObjectGetter is the slice of the S3 API the bundle store needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// BundleS3 streams custody bundles from an S3-compatible bucket. Handles are
// object keys.
type BundleS3 struct {
	client ObjectGetter
	bucket string
}

func NewBundleS3(client ObjectGetter, bucket string) *BundleS3 {
	return &BundleS3{client: client, bucket: bucket}
}

// NewS3Client builds a client from the default AWS credential chain. A
// custom endpoint (MinIO and similar) may need path-style addressing.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}
	return s3.NewFromConfig(awsCfg, opts...), nil
}

func (b *BundleS3) Open(ctx context.Context, handle models.BundleHandle) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(string(handle)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("bundle %s: %w", handle, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return out.Body, nil
}
