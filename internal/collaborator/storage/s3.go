// Package storage publishes rendered videos and resolves their URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrNotConfigured = errors.New("storage: object storage is not configured")

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3 uploads videos to a private bucket and hands out presigned GET URLs.
type S3 struct {
	bucket  string
	prefix  string
	expiry  time.Duration
	objects objectAPI
	signer  presignAPI
}

type S3Options struct {
	Bucket    string
	Region    string
	Prefix    string
	URLExpiry time.Duration
}

// NewS3 loads credentials from the default AWS chain. An empty bucket yields
// ErrNotConfigured so callers can run with local URLs only.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, ErrNotConfigured
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return newS3(opts, client, s3.NewPresignClient(client)), nil
}

func newS3(opts S3Options, objects objectAPI, signer presignAPI) *S3 {
	expiry := opts.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &S3{
		bucket:  opts.Bucket,
		prefix:  opts.Prefix,
		expiry:  expiry,
		objects: objects,
		signer:  signer,
	}
}

// Upload stores the file at localPath under <prefix><basename> and returns
// the object key.
func (s *S3) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("storage: open video: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	key := path.Join(strings.TrimSuffix(s.prefix, "/"), filepath.Base(localPath))
	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return key, nil
}

// URL presigns a time-limited GET for key.
func (s *S3) URL(ctx context.Context, key string) (string, error) {
	req, err := s.signer.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.objects.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}
