package adapters

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowops/pkg/platform/sentinel"
)

type fakeBucket map[string]string

func (f fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if aws.ToString(in.Bucket) != "custody" {
		return nil, errors.New("wrong bucket")
	}
	body, ok := f[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestBundleS3Open(t *testing.T) {
	b := NewBundleS3(fakeBucket{"bundles/ke_1.zip": "PK\x03\x04"}, "custody")

	rc, err := b.Open(context.Background(), "bundles/ke_1.zip")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04", string(data))

	_, err = b.Open(context.Background(), "bundles/missing.zip")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}
