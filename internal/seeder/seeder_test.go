package seeder

import (
	"context"
	"errors"
	"testing"

	"github.com/vnmchuo/contentgen/internal/auth"
	"github.com/vnmchuo/contentgen/internal/store"
)

type recordingKeys struct {
	created []*auth.APIKey
	err     error
}

func (r *recordingKeys) GetByKey(ctx context.Context, key string) (*auth.APIKey, error) {
	return nil, auth.ErrKeyNotFound
}

func (r *recordingKeys) Create(ctx context.Context, k *auth.APIKey) error {
	if r.err != nil {
		return r.err
	}
	r.created = append(r.created, k)
	return nil
}

func (r *recordingKeys) Revoke(ctx context.Context, id string) error { return nil }

func TestSeedTestAPIKey(t *testing.T) {
	keys := &recordingKeys{}
	SeedTestAPIKey(context.Background(), keys)

	if len(keys.created) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(keys.created))
	}
	k := keys.created[0]
	if k.KeyHash != auth.HashKey(TestAPIKey) || !k.CanAuthor || !k.Active {
		t.Errorf("Unexpected key %+v", k)
	}

	// Duplicate keys are skipped without panicking.
	SeedTestAPIKey(context.Background(), &recordingKeys{err: errors.New("duplicate key")})
}

func TestSeedDefaultCategory(t *testing.T) {
	s := store.NewMemoryStore()
	for i := 0; i < 2; i++ {
		if err := SeedDefaultCategory(context.Background(), s); err != nil {
			t.Fatalf("Seed %d failed: %v", i, err)
		}
	}
	term, err := store.DefaultCategory(context.Background(), s)
	if err != nil || term.Slug != store.UncategorizedSlug {
		t.Errorf("Expected default category, got %v, %v", term, err)
	}
}
