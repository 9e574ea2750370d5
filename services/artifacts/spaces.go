package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// SpacesConfig points the store at a DigitalOcean Spaces (or other
// S3-compatible) bucket. Endpoint defaults to the region's Spaces host.
type SpacesConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
}

// SpacesStore keeps objects private in a single bucket
type SpacesStore struct {
	client s3iface.S3API
	bucket string
}

func NewSpacesStore(config SpacesConfig) (*SpacesStore, error) {
	if config.Bucket == "" || config.Region == "" {
		return nil, errors.New("spaces store needs a bucket and a region")
	}
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = config.Region + ".digitaloceanspaces.com"
	}

	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		Endpoint:    aws.String(endpoint),
		Region:      aws.String(config.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spaces session: %w", err)
	}
	return newSpacesStore(s3.New(sess), config.Bucket), nil
}

func newSpacesStore(client s3iface.S3API, bucket string) *SpacesStore {
	return &SpacesStore{client: client, bucket: bucket}
}

func (s *SpacesStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Get returns ErrNotFound for a missing key
func (s *SpacesStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var aerr awserr.Error
	switch {
	case errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case err != nil:
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// DeletePrefix removes every object under prefix, one listing page per
// batch delete
func (s *SpacesStore) DeletePrefix(ctx context.Context, prefix string) error {
	var batchErr error
	removed := 0

	listErr := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		if len(page.Contents) == 0 {
			return true
		}
		ids := make([]*s3.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			ids[i] = &s3.ObjectIdentifier{Key: obj.Key}
		}
		_, batchErr = s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		removed += len(ids)
		return batchErr == nil
	})
	if batchErr != nil {
		return fmt.Errorf("failed to delete %s: %w", prefix, batchErr)
	}
	if listErr != nil {
		return fmt.Errorf("failed to list %s: %w", prefix, listErr)
	}

	log.Printf("Spaces: deleted %d objects under %s", removed, prefix)
	return nil
}
