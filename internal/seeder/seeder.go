package seeder

import (
	"context"
	log "log/slog"

	"github.com/vnmchuo/contentgen/internal/auth"
	"github.com/vnmchuo/contentgen/internal/store"
)

const (
	TestAPIKey   = "test-api-key-12345"
	TestTenantID = "00000000-0000-0000-0000-000000000001"
)

// SeedTestAPIKey creates an authoring key for local testing. An existing key
// is left alone.
func SeedTestAPIKey(ctx context.Context, keys auth.Store) {
	apiKey := &auth.APIKey{
		TenantID:  TestTenantID,
		KeyHash:   auth.HashKey(TestAPIKey),
		RateLimit: 1000,
		CanAuthor: true,
		Active:    true,
	}

	if err := keys.Create(ctx, apiKey); err != nil {
		log.Info("seeder: api key may already exist, skipping", "error", err)
		return
	}
	log.Info("seeder: test api key created", "key", TestAPIKey, "tenant_id", TestTenantID)
}

// SeedDefaultCategory makes sure the "Uncategorized" category exists.
func SeedDefaultCategory(ctx context.Context, content store.Store) error {
	term, err := store.EnsureDefaultCategory(ctx, content)
	if err != nil {
		return err
	}
	log.Info("seeder: default category ready", "term_id", term.ID)
	return nil
}
