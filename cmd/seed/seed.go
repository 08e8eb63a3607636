package main

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/domain/repository"
	"github.com/wekeepgrowing/paycore/internal/middleware/auth"
)

type tokenOptions struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// issuedToken is a staff bearer token printed for local use.
type issuedToken struct {
	StoreSlug string
	StaffID   string
	Role      string
	Token     string
}

type seedResult struct {
	Stores    int
	Providers int
	Webhooks  int
	Tokens    []issuedToken
}

// applyFixtures upserts stores and provider configs and adds webhooks that
// are not yet registered. Running it twice leaves the same rows behind.
func applyFixtures(ctx context.Context, repos *repository.Repositories, fixtures []*storeFixture, opts tokenOptions, logger *zap.Logger) (*seedResult, error) {
	result := &seedResult{}

	for _, fixture := range fixtures {
		if err := repos.Stores.Upsert(ctx, fixture.Store); err != nil {
			return nil, err
		}
		store, err := repos.Stores.GetBySlug(ctx, fixture.Store.Slug)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, fmt.Errorf("store %s missing after upsert", fixture.Store.Slug)
		}
		result.Stores++

		for _, cfg := range fixture.Providers {
			cfg.StoreID = store.ID
			existing, err := repos.ProviderConfigs.GetActive(ctx, store.ID, cfg.ProviderType)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				cfg.ID = existing.ID
			}
			if err := repos.ProviderConfigs.Upsert(ctx, cfg); err != nil {
				return nil, err
			}
			result.Providers++
		}

		registered, err := repos.Webhooks.ListActiveByStore(ctx, store.ID)
		if err != nil {
			return nil, err
		}
		urls := make(map[string]bool, len(registered))
		for _, w := range registered {
			urls[w.URL] = true
		}
		for _, webhook := range fixture.Webhooks {
			if urls[webhook.URL] {
				logger.Debug("Webhook already registered", zap.String("store_slug", store.Slug), zap.String("url", webhook.URL))
				continue
			}
			webhook.StoreID = store.ID
			if err := repos.Webhooks.Create(ctx, webhook); err != nil {
				return nil, err
			}
			urls[webhook.URL] = true
			result.Webhooks++
		}

		if opts.Secret == "" {
			continue
		}
		now := time.Now().UTC()
		for _, staff := range fixture.Staff {
			token, err := auth.SignStaffToken(opts.Secret, auth.StaffClaims{
				StoreID:   store.ID.String(),
				StoreSlug: store.Slug,
				Role:      staff.Role,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   staff.ID,
					Issuer:    opts.Issuer,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(opts.TTL)),
				},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to sign token for %s: %w", staff.ID, err)
			}
			result.Tokens = append(result.Tokens, issuedToken{
				StoreSlug: store.Slug,
				StaffID:   staff.ID,
				Role:      staff.Role,
				Token:     token,
			})
		}

		logger.Info("Store seeded",
			zap.String("store_slug", store.Slug),
			zap.String("store_id", store.ID.String()),
			zap.Int("providers", len(fixture.Providers)))
	}

	return result, nil
}
