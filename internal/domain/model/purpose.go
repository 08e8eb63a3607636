package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurposeType tags what a pending payment pays for.
type PurposeType string

const (
	PurposeGiftCard        PurposeType = "gift_card"
	PurposeSubscription    PurposeType = "subscription"
	PurposeStorefrontOrder PurposeType = "storefront_order"
	PurposeCreditTopup     PurposeType = "credit_topup"
)

// Purpose is one of the payload variants below.
type Purpose interface {
	PurposeType() PurposeType
}

type GiftCardPurpose struct {
	RecipientEmail string `json:"recipientEmail" validate:"required,email"`
	SenderName     string `json:"senderName,omitempty"`
	Message        string `json:"message,omitempty"`
}

type SubscriptionPurpose struct {
	SubscriptionID *uuid.UUID `json:"subscriptionId,omitempty"`
	PlanCode       string     `json:"planCode" validate:"required"`
	PeriodDays     int        `json:"periodDays" validate:"required,gt=0"`
}

type StorefrontOrderPurpose struct {
	OrderID *uuid.UUID `json:"orderId,omitempty"`
	CartID  string     `json:"cartId,omitempty"`
}

type CreditTopupPurpose struct {
	AccountID uuid.UUID       `json:"accountId" validate:"required"`
	Credits   decimal.Decimal `json:"credits"`
}

func (GiftCardPurpose) PurposeType() PurposeType        { return PurposeGiftCard }
func (SubscriptionPurpose) PurposeType() PurposeType    { return PurposeSubscription }
func (StorefrontOrderPurpose) PurposeType() PurposeType { return PurposeStorefrontOrder }
func (CreditTopupPurpose) PurposeType() PurposeType     { return PurposeCreditTopup }

type purposeEnvelope struct {
	Type PurposeType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodePurpose serialises a purpose with its "type" discriminator.
func EncodePurpose(p Purpose) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("purpose is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(purposeEnvelope{Type: p.PurposeType(), Data: data})
}

// DecodePurpose is the inverse of EncodePurpose. Unknown types are rejected.
func DecodePurpose(raw []byte) (Purpose, error) {
	var env purposeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid purpose payload: %w", err)
	}
	return DecodePurposeData(env.Type, env.Data)
}

// DecodePurposeData decodes the variant body for a known type tag.
func DecodePurposeData(t PurposeType, data []byte) (Purpose, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	var (
		p   Purpose
		err error
	)
	switch t {
	case PurposeGiftCard:
		var v GiftCardPurpose
		err = json.Unmarshal(data, &v)
		p = v
	case PurposeSubscription:
		var v SubscriptionPurpose
		err = json.Unmarshal(data, &v)
		p = v
	case PurposeStorefrontOrder:
		var v StorefrontOrderPurpose
		err = json.Unmarshal(data, &v)
		p = v
	case PurposeCreditTopup:
		var v CreditTopupPurpose
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown purpose type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s purpose: %w", t, err)
	}
	return p, nil
}
