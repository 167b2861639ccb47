// Package storage stores user-uploaded files in an S3-compatible bucket.
package storage

import (
	"context"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader puts objects under caller-chosen keys and resolves their public URLs.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
	// GetPublicURL returns "" when no URL can be built for key.
	GetPublicURL(key string) string
}
