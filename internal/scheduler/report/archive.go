package report

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/options"
)

// linkExpiry is how long the report link posted to operators stays valid.
const linkExpiry = 7 * 24 * time.Hour

// Archive stores rendered reports and returns a link to the stored object.
type Archive interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

type minioArchive struct {
	client     *minio.Client
	bucketName string
}

// NewMinIOArchive creates an archive on an S3 compatible bucket.
func NewMinIOArchive(opts *options.S3Options) (Archive, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &minioArchive{client: client, bucketName: opts.BucketName}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *minioArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating", "bucket", a.bucketName)
		if err := a.client.MakeBucket(ctx, a.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (a *minioArchive) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := a.EnsureBucket(ctx); err != nil {
		return "", err
	}

	_, err := a.client.PutObject(ctx, a.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}

	link, err := a.client.PresignedGetObject(ctx, a.bucketName, key, linkExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}
	return link.String(), nil
}
