package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

// CallbackSource says which path delivered a notification.
type CallbackSource string

const (
	SourceWebhook  CallbackSource = "webhook"
	SourceRedirect CallbackSource = "redirect"
	SourceConfirm  CallbackSource = "confirm"
	SourcePoll     CallbackSource = "poll"
)

// InFlightLock keeps two reconciliations of the same pending payment from
// running at once. It is an optimisation; the database re-check is what
// guarantees correctness.
type InFlightLock interface {
	Acquire(ctx context.Context, key string) (bool, func(), error)
}

func resolveStore(ctx context.Context, stores repository.StoreRepository, slug string) (*model.Store, error) {
	if slug == "" {
		return nil, domainerrors.ErrStoreNotFound
	}
	store, err := stores.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrStoreNotFound, slug)
	}
	return store, nil
}

// resolveProviderConfig loads the store's active credentials for a provider.
// A missing or inactive config is the merchant's problem, not the gateway's.
func resolveProviderConfig(ctx context.Context, configs repository.ProviderConfigRepository, storeID uuid.UUID, t provider.Type) (*model.ProviderConfig, provider.Config, error) {
	cfg, err := configs.GetActive(ctx, storeID, string(t))
	if err != nil {
		return nil, provider.Config{}, err
	}
	if cfg == nil {
		return nil, provider.Config{}, domainerrors.NewConfigError(string(t), "no active configuration for store")
	}
	return cfg, provider.Config{
		ID:          cfg.ID,
		StoreID:     cfg.StoreID,
		Type:        t,
		Credentials: json.RawMessage(cfg.Credentials),
		TestMode:    cfg.TestMode,
	}, nil
}

// orderNumberFor derives a human-facing order number from the pending payment.
func orderNumberFor(pending *model.PendingPayment) string {
	return "P" + strings.ToUpper(strings.ReplaceAll(pending.ID.String(), "-", "")[:12])
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcNow() time.Time {
	return time.Now().UTC()
}
