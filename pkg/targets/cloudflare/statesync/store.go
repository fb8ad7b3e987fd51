// Package statesync replicates gateway state between the ephemeral worker
// container disk and R2 object storage. The container loses its disk on
// every restart; the synchronizer decides when to push a backup and when
// to pull one back, comparing metadata timestamps instead of payloads.
package statesync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotExist is returned by ObjectStore.Get for a missing key.
var ErrNotExist = errors.New("object does not exist")

// ObjectStore is the minimal object storage surface the synchronizer
// needs. The production implementation is R2 through its S3-compatible
// API; tests use an in-memory map.
type ObjectStore interface {
	// Get fetches an object, returning ErrNotExist for missing keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores an object.
	Put(ctx context.Context, key string, body []byte) error
}

// R2Store is an ObjectStore backed by a Cloudflare R2 bucket.
type R2Store struct {
	client *s3.Client
	bucket string
}

// NewR2Store creates an R2-backed object store. R2 speaks the S3 wire
// protocol, so the client is a plain S3 client pointed at the account's
// R2 endpoint.
func NewR2Store(accountID, accessKeyID, secretAccessKey, bucket string) *R2Store {
	client := s3.New(s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)),
		Credentials:  credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	})
	return &R2Store{client: client, bucket: bucket}
}

// Get fetches an object from the bucket.
func (s *R2Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return body, nil
}

// Put stores an object in the bucket.
func (s *R2Store) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}
