package storage

import (
	"errors"
	"net/url"
	"testing"
)

func TestPublicURL(t *testing.T) {
	base, _ := url.Parse("https://cdn.example.com/media/")

	tests := []struct {
		name string
		base *url.URL
		key  string
		want string
	}{
		{"plain key", base, "users/1/photo.jpg", "https://cdn.example.com/media/users/1/photo.jpg"},
		{"leading slash", base, "/users/1/photo.jpg", "https://cdn.example.com/media/users/1/photo.jpg"},
		{"empty key", base, "", ""},
		{"no base", nil, "users/1/photo.jpg", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := publicURL(tt.base, tt.key); got != tt.want {
				t.Errorf("publicURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestR2ConfigValidate(t *testing.T) {
	if (R2Config{}).Enabled() {
		t.Error("empty config reported as enabled")
	}

	err := R2Config{AccountID: "acc"}.validate()
	if !errors.Is(err, ErrR2NotConfigured) {
		t.Fatalf("validate() error = %v, want ErrR2NotConfigured", err)
	}

	full := R2Config{
		AccountID:       "acc",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "bucket",
		PublicBaseURL:   "https://cdn.example.com",
	}
	if err := full.validate(); err != nil {
		t.Fatalf("validate() unexpected error: %v", err)
	}
}
