package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/paycore/internal/domain/repository"
)

type creditRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCreditRepository creates a new store-credit ledger repository
func NewCreditRepository(db *gorm.DB, logger *zap.Logger) domainRepo.CreditRepository {
	return &creditRepository{db: db, logger: logger}
}

func (r *creditRepository) Balance(ctx context.Context, storeID, accountID uuid.UUID) (decimal.Decimal, error) {
	var balance model.CreditBalance
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND account_id = ?", storeID, accountID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return balance.Balance, nil
}

func (r *creditRepository) Grant(ctx context.Context, entry *model.CreditEntry) (bool, error) {
	if entry.ReferenceID == "" {
		return false, errors.New("credit entry requires a reference id")
	}
	if entry.Kind == "" {
		entry.Kind = model.CreditEntryTopup
	}

	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.CreditEntry
		err := tx.Where("store_id = ? AND reference_id = ?", entry.StoreID, entry.ReferenceID).First(&existing).Error
		if err == nil {
			*entry = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check reference: %w", err)
		}

		// Row lock serialises concurrent grants to one account
		var balance model.CreditBalance
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("store_id = ? AND account_id = ?", entry.StoreID, entry.AccountID).
			Attrs(model.CreditBalance{
				StoreID:   entry.StoreID,
				AccountID: entry.AccountID,
				Balance:   decimal.Zero,
			}).
			FirstOrCreate(&balance).Error
		if err != nil {
			return fmt.Errorf("failed to lock balance: %w", err)
		}

		entry.BalanceAfter = balance.Balance.Add(entry.Amount)
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to append credit entry: %w", err)
		}

		err = tx.Model(&model.CreditBalance{}).
			Where("store_id = ? AND account_id = ?", entry.StoreID, entry.AccountID).
			Updates(map[string]interface{}{
				"balance":       entry.BalanceAfter,
				"last_entry_at": entry.CreatedAt,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		applied = true
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to grant credits",
			zap.String("store_id", entry.StoreID.String()),
			zap.String("account_id", entry.AccountID.String()),
			zap.String("amount", entry.Amount.String()),
			zap.String("reference_id", entry.ReferenceID),
			zap.Error(err))
		return false, err
	}
	return applied, nil
}

func (r *creditRepository) FindByReference(ctx context.Context, storeID uuid.UUID, referenceID string) (*model.CreditEntry, error) {
	var entry model.CreditEntry
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND reference_id = ?", storeID, referenceID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credit entry: %w", err)
	}
	return &entry, nil
}

func (r *creditRepository) ListEntries(ctx context.Context, storeID, accountID uuid.UUID, limit int) ([]*model.CreditEntry, error) {
	var entries []*model.CreditEntry
	query := r.db.WithContext(ctx).
		Where("store_id = ? AND account_id = ?", storeID, accountID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list credit entries: %w", err)
	}
	return entries, nil
}
