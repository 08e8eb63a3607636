package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
)

// StoreRepository reads merchant tenants. Stores are seeded, never written by the core.
type StoreRepository interface {
	// GetBySlug resolves a store from its route slug
	GetBySlug(ctx context.Context, slug string) (*model.Store, error)

	GetByID(ctx context.Context, id uuid.UUID) (*model.Store, error)

	// Upsert is used by the seed tool only
	Upsert(ctx context.Context, store *model.Store) error
}

// ProviderConfigRepository resolves a store's gateway credentials.
type ProviderConfigRepository interface {
	// GetActive returns the active config for (store, provider) or nil
	GetActive(ctx context.Context, storeID uuid.UUID, providerType string) (*model.ProviderConfig, error)

	GetByID(ctx context.Context, id uuid.UUID) (*model.ProviderConfig, error)

	// Upsert is used by the seed tool only
	Upsert(ctx context.Context, cfg *model.ProviderConfig) error
}
