package blobstore

import (
	"bytes"
	"context"
	"fmt"

	storage_go "github.com/supabase-community/storage-go"
	supabase "github.com/supabase-community/supabase-go"
)

type SupabaseConfig struct {
	// SupabaseURL is the project URL, e.g. "https://[project-ref].supabase.co".
	SupabaseURL string
	// SupabaseKey must be a service_role key to upload server-side.
	SupabaseKey string
	// Bucket must be public for the returned URLs to be playable without a token.
	Bucket string
}

// SupabaseStore uploads objects to a Supabase Storage bucket.
type SupabaseStore struct {
	storage *storage_go.Client
	bucket  string
}

func NewSupabaseStore(cfg SupabaseConfig) (*SupabaseStore, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		return nil, fmt.Errorf("supabase blob store: url and key are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("supabase blob store: bucket is required")
	}

	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase SDK: %w", err)
	}

	return &SupabaseStore{storage: client.Storage, bucket: cfg.Bucket}, nil
}

// Put uploads data without upsert, so a name collision fails instead of replacing audio.
// The storage client takes no context; ctx is only checked before the request starts.
func (s *SupabaseStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	upsert := false
	_, err := s.storage.UploadFile(s.bucket, name, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("supabase upload %s/%s: %w", s.bucket, name, err)
	}

	return s.storage.GetPublicUrl(s.bucket, name).SignedURL, nil
}
