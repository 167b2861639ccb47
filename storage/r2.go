package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrR2NotConfigured = errors.New("cloudflare R2 is not configured")

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

// Enabled reports whether any R2 setting was provided.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" || c.AccessKeyID != "" || c.SecretAccessKey != "" || c.BucketName != ""
}

func (c R2Config) validate() error {
	var missing []string
	for name, value := range map[string]string{
		"account id":        c.AccountID,
		"access key id":     c.AccessKeyID,
		"secret access key": c.SecretAccessKey,
		"bucket name":       c.BucketName,
		"public base url":   c.PublicBaseURL,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrR2NotConfigured, strings.Join(missing, ", "))
	}
	if _, err := url.Parse(c.PublicBaseURL); err != nil {
		return fmt.Errorf("invalid R2 public base url: %w", err)
	}
	return nil
}

type r2Uploader struct {
	client        *s3.Client
	bucketName    string
	publicBaseURL *url.URL
}

func NewR2Uploader(ctx context.Context, cfg R2Config) (FileUploader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for R2: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})

	base, _ := url.Parse(strings.TrimSuffix(cfg.PublicBaseURL, "/") + "/")
	return &r2Uploader{client: client, bucketName: cfg.BucketName, publicBaseURL: base}, nil
}

func (u *r2Uploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error) {
	result, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object to R2 (key: %s): %w", key, err)
	}

	etag := ""
	if result.ETag != nil {
		etag = strings.Trim(*result.ETag, "\"")
	}
	return &UploadResult{Key: key, Location: u.GetPublicURL(key), ETag: etag}, nil
}

func (u *r2Uploader) Delete(ctx context.Context, key string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from R2 (key: %s): %w", key, err)
	}
	return nil
}

func (u *r2Uploader) GetPublicURL(key string) string {
	return publicURL(u.publicBaseURL, key)
}

func publicURL(base *url.URL, key string) string {
	if base == nil || key == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimPrefix(key, "/"))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
