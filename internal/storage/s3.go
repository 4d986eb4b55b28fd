package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/pkg/errors"
)

const workbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type S3Storage struct {
	client s3iface.S3API
	bucket string
}

func NewS3Storage(cfg *config.Config) (*S3Storage, error) {
	s3Config := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(cfg.Storage.S3.AccessKey, cfg.Storage.S3.SecretKey, ""),
		Endpoint:         aws.String(cfg.Storage.S3.Endpoint),
		Region:           aws.String(cfg.Storage.S3.Region),
		DisableSSL:       aws.Bool(!cfg.Storage.S3.UseSSL),
		S3ForcePathStyle: aws.Bool(true),
	}

	sess, err := session.NewSession(s3Config)
	if err != nil {
		return nil, err
	}

	return NewS3StorageWithClient(s3.New(sess), cfg.Storage.S3.Bucket), nil
}

func NewS3StorageWithClient(client s3iface.S3API, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket}
}

// objectKey accepts both bare keys and s3://bucket/key references.
func (s *S3Storage) objectKey(ref string) string {
	ref = strings.TrimPrefix(ref, "s3://")
	ref = strings.TrimPrefix(ref, s.bucket+"/")
	return strings.TrimPrefix(ref, "/")
}

func isNotFound(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func (s *S3Storage) wrap(key string, err error) error {
	if isNotFound(err) {
		return errors.Wrap(errors.KindNotFound, err, fmt.Sprintf("object %s not found", key))
	}
	return fmt.Errorf("s3 %s: %w", key, err)
}

func (s *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	key = s.objectKey(key)
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrap(key, err)
	}
	return result.Body, nil
}

// Upload buffers non-seekable readers since request signing needs to rewind the body.
func (s *S3Storage) Upload(ctx context.Context, key string, data io.Reader) error {
	key = s.objectKey(key)

	body, ok := data.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(data)
		if err != nil {
			return fmt.Errorf("read workbook %s: %w", key, err)
		}
		body = bytes.NewReader(buf)
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(workbookContentType),
	})
	if err != nil {
		return s.wrap(key, err)
	}
	return nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	key = s.objectKey(key)
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.wrap(key, err)
	}
	return nil
}

// Exists reports false without error when the object is missing.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	key = s.objectKey(key)
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, s.wrap(key, err)
	}
	return true, nil
}
