// Package archive stores raw admin uploads and generated booklets in an
// S3-compatible bucket. The archive is write-mostly: objects are kept so a
// bad import can be replayed or audited, not served back to users.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Service{client: client, bucket: bucket}, nil
}

// Put stores a payload under the given object name.
func (s *Service) Put(ctx context.Context, objectName string, payload []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", objectName, err)
	}
	return nil
}

// ArchiveUpload stores a raw admin JSON upload under a timestamped name
// and returns the object name.
func (s *Service) ArchiveUpload(ctx context.Context, name string, payload []byte) (string, error) {
	objectName := uploadObjectName(name, time.Now())
	if err := s.Put(ctx, objectName, payload, "application/json"); err != nil {
		return "", err
	}
	return objectName, nil
}

// ArchiveBooklet stores a generated monthly booklet PDF.
func (s *Service) ArchiveBooklet(ctx context.Context, month string, payload []byte) (string, error) {
	objectName := "booklets/" + month + ".pdf"
	if err := s.Put(ctx, objectName, payload, "application/pdf"); err != nil {
		return "", err
	}
	return objectName, nil
}

func uploadObjectName(name string, now time.Time) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "upload.json"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	return fmt.Sprintf("uploads/%s-%s", now.UTC().Format("20060102T150405Z"), name)
}
