package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

type storeRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStoreRepository creates a new store repository
func NewStoreRepository(db *gorm.DB, logger *zap.Logger) repository.StoreRepository {
	return &storeRepository{db: db, logger: logger}
}

func (r *storeRepository) GetBySlug(ctx context.Context, slug string) (*model.Store, error) {
	var store model.Store
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&store).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get store by slug", zap.String("store_slug", slug), zap.Error(err))
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return &store, nil
}

func (r *storeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Store, error) {
	var store model.Store
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&store).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return &store, nil
}

func (r *storeRepository) Upsert(ctx context.Context, store *model.Store) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "currency", "order_confirm_url", "checkout_error_url", "updated_at"}),
	}).Create(store).Error
	if err != nil {
		return fmt.Errorf("failed to upsert store: %w", err)
	}
	return nil
}

type providerConfigRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewProviderConfigRepository creates a new provider config repository
func NewProviderConfigRepository(db *gorm.DB, logger *zap.Logger) repository.ProviderConfigRepository {
	return &providerConfigRepository{db: db, logger: logger}
}

func (r *providerConfigRepository) GetActive(ctx context.Context, storeID uuid.UUID, providerType string) (*model.ProviderConfig, error) {
	var cfg model.ProviderConfig
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND provider_type = ? AND is_active = ?", storeID, providerType, true).
		Order("updated_at DESC").
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get provider config",
			zap.String("store_id", storeID.String()),
			zap.String("provider", providerType),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}
	return &cfg, nil
}

func (r *providerConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ProviderConfig, error) {
	var cfg model.ProviderConfig
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}
	return &cfg, nil
}

func (r *providerConfigRepository) Upsert(ctx context.Context, cfg *model.ProviderConfig) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"credentials", "test_mode", "is_active", "updated_at"}),
	}).Create(cfg).Error
	if err != nil {
		return fmt.Errorf("failed to upsert provider config: %w", err)
	}
	return nil
}
