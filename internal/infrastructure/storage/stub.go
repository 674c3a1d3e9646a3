package storage

import (
	"context"
	"net/url"
	"strings"
	"time"

	salesapp "github.com/casaviva/backoffice/internal/application/sales"
)

var _ salesapp.EvidenceResolver = (*StubObjectStorage)(nil)

// StubObjectStorage builds deterministic evidence URLs without a storage
// backend. Used in development when no bucket is configured.
type StubObjectStorage struct {
	// BaseURL prefixes every generated URL.
	BaseURL    string
	Expiration time.Duration
	now        func() time.Time
}

// NewStubObjectStorage creates a new StubObjectStorage. An empty baseURL
// defaults to https://storage.example.com.
func NewStubObjectStorage(baseURL string) *StubObjectStorage {
	if baseURL == "" {
		baseURL = "https://storage.example.com"
	}
	return &StubObjectStorage{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Expiration: 15 * time.Minute,
		now:        time.Now,
	}
}

// ResolveEvidenceURL returns BaseURL/evidence/<key>. Any well-formed key
// resolves.
func (s *StubObjectStorage) ResolveEvidenceURL(ctx context.Context, key string) (string, error) {
	key, err := CleanEvidenceKey(key)
	if err != nil {
		return "", err
	}
	return s.BaseURL + "/evidence/" + escapeKey(key), nil
}

// PresignEvidenceUpload returns a fake upload URL carrying its expiry.
func (s *StubObjectStorage) PresignEvidenceUpload(ctx context.Context, key, contentType string) (string, time.Time, error) {
	key, err := CleanEvidenceKey(key)
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := s.now().Add(s.Expiration).UTC()
	return s.BaseURL + "/upload/" + escapeKey(key) + "?expires=" + url.QueryEscape(expiresAt.Format(time.RFC3339)), expiresAt, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
