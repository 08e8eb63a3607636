package issuance

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
)

const (
	// no 0/O or 1/I/L to keep codes readable over the phone
	giftCardAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	giftCardLength   = 16
	maxCodeAttempts  = 10
)

// GiftCardHook issues one gift card per settled gift-card payment.
type GiftCardHook struct {
	generate func() (string, error)
	logger   *zap.Logger
}

func NewGiftCardHook(logger *zap.Logger) *GiftCardHook {
	return &GiftCardHook{generate: generateGiftCardCode, logger: logger}
}

func (h *GiftCardHook) Purpose() model.PurposeType { return model.PurposeGiftCard }

func (h *GiftCardHook) Issue(ctx context.Context, repos *repository.Repositories, settled SettledPayment) error {
	purpose, ok := settled.Purpose.(model.GiftCardPurpose)
	if !ok {
		return fmt.Errorf("%w: expected gift card purpose", domainerrors.ErrInvalidPurpose)
	}

	existing, err := repos.GiftCards.FindByPendingPayment(ctx, settled.Pending.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		h.logger.Info("Gift card already issued",
			zap.String("gift_card_id", existing.ID.String()),
			zap.String("pending_payment_id", settled.Pending.ID.String()))
		return nil
	}

	code, err := h.uniqueCode(ctx, repos, settled.Pending.StoreID)
	if err != nil {
		return err
	}

	card := &model.GiftCard{
		StoreID:          settled.Pending.StoreID,
		Code:             code,
		InitialAmount:    settled.Pending.Amount,
		Balance:          settled.Pending.Amount,
		Currency:         settled.Pending.Currency,
		RecipientEmail:   purpose.RecipientEmail,
		SenderName:       purpose.SenderName,
		Message:          purpose.Message,
		PendingPaymentID: settled.Pending.ID,
		OrderID:          settled.Order.ID,
		IssuedAt:         settled.SettledAt,
	}
	if err := repos.GiftCards.Create(ctx, card); err != nil {
		return err
	}

	event, err := model.NewOutboxEvent(card.StoreID, model.EventGiftCardIssued, map[string]interface{}{
		"giftCardId":     card.ID,
		"code":           card.Code,
		"amount":         settled.Pending.Money().String(),
		"currency":       card.Currency,
		"recipientEmail": card.RecipientEmail,
		"senderName":     card.SenderName,
		"message":        card.Message,
		"orderId":        card.OrderID,
	}, settled.SettledAt)
	if err != nil {
		return err
	}
	if err := repos.Outbox.Enqueue(ctx, event); err != nil {
		return err
	}

	h.logger.Info("Gift card issued",
		zap.String("gift_card_id", card.ID.String()),
		zap.String("order_id", card.OrderID.String()))
	return nil
}

func (h *GiftCardHook) uniqueCode(ctx context.Context, repos *repository.Repositories, storeID uuid.UUID) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := h.generate()
		if err != nil {
			return "", fmt.Errorf("generate gift card code: %w", err)
		}
		exists, err := repos.GiftCards.CodeExists(ctx, storeID, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		h.logger.Debug("Gift card code collision", zap.String("store_id", storeID.String()), zap.Int("attempt", attempt+1))
	}
	return "", domainerrors.ErrCodeSpaceExhausted
}

// generateGiftCardCode returns a code formatted XXXX-XXXX-XXXX-XXXX.
func generateGiftCardCode() (string, error) {
	raw, err := gonanoid.Generate(giftCardAlphabet, giftCardLength)
	if err != nil {
		return "", err
	}
	groups := make([]string, 0, giftCardLength/4)
	for i := 0; i < len(raw); i += 4 {
		groups = append(groups, raw[i:i+4])
	}
	return strings.Join(groups, "-"), nil
}
