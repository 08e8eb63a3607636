package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
)

// CallbackLogRepository appends inbound provider notifications
type CallbackLogRepository interface {
	Create(ctx context.Context, entry *model.ProviderCallbackLog) error

	ListByTransactionRef(ctx context.Context, storeID uuid.UUID, ref string) ([]*model.ProviderCallbackLog, error)
}
