package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/middleware/auth"
	"github.com/wekeepgrowing/paycore/internal/usecase"
	apperrors "github.com/wekeepgrowing/paycore/pkg/errors"
)

const idempotencyKeyHeader = "Idempotency-Key"

// RefundHandler serves the merchant staff API.
type RefundHandler struct {
	logger  *zap.Logger
	refunds *usecase.RefundService
	orders  *usecase.OrderQueryService
}

func NewRefundHandler(logger *zap.Logger, refunds *usecase.RefundService, orders *usecase.OrderQueryService) *RefundHandler {
	return &RefundHandler{
		logger:  logger,
		refunds: refunds,
		orders:  orders,
	}
}

type CreateRefundRequest struct {
	StoreSlug string `json:"storeSlug" validate:"required"`
	OrderID   string `json:"orderId" validate:"required,uuid"`
	Amount    string `json:"amount" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
}

type CreateRefundResponse struct {
	Success            bool          `json:"success"`
	RefundID           string        `json:"refundId"`
	TransactionID      string        `json:"transactionId"`
	ProviderRefundID   string        `json:"providerRefundId,omitempty"`
	RefundedAmount     MoneyResponse `json:"refundedAmount"`
	NewFinancialStatus string        `json:"newFinancialStatus"`
}

// CreateRefund refunds part or all of a paid order.
func (h *RefundHandler) CreateRefund(c echo.Context) error {
	var req CreateRefundRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.logger, err, "Invalid refund request")
	}

	staff, err := auth.RequireStore(c, req.StoreSlug)
	if err != nil {
		return respondError(c, h.logger, err, "Refund not authorized")
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return respondError(c, h.logger, apperrors.Validation("invalid order id"), "Invalid refund request")
	}

	h.logger.Info("Refund requested",
		zap.String("store", req.StoreSlug),
		zap.String("order_id", req.OrderID),
		zap.String("amount", req.Amount),
		zap.String("staff_id", staff.StaffID))

	out, err := h.refunds.Refund(c.Request().Context(), usecase.RefundInput{
		StoreSlug:      req.StoreSlug,
		StaffStoreID:   staff.StoreID,
		OrderID:        orderID,
		Amount:         req.Amount,
		Reason:         req.Reason,
		ProcessedByID:  staff.StaffID,
		IdempotencyKey: c.Request().Header.Get(idempotencyKeyHeader),
	})
	if err != nil {
		return respondError(c, h.logger, err, "Refund failed")
	}

	return c.JSON(http.StatusOK, CreateRefundResponse{
		Success:            true,
		RefundID:           out.RefundID.String(),
		TransactionID:      out.TransactionID.String(),
		ProviderRefundID:   out.ProviderRefundID,
		RefundedAmount:     moneyResponse(out.RefundedAmount),
		NewFinancialStatus: string(out.NewFinancialStatus),
	})
}

type LedgerEntryResponse struct {
	ID                    string     `json:"id"`
	Type                  string     `json:"type"`
	Status                string     `json:"status"`
	Provider              string     `json:"provider"`
	Amount                string     `json:"amount"`
	ProviderTransactionID string     `json:"providerTransactionId,omitempty"`
	ParentTransactionID   string     `json:"parentTransactionId,omitempty"`
	ErrorCode             string     `json:"errorCode,omitempty"`
	ErrorMessage          string     `json:"errorMessage,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	ProcessedAt           *time.Time `json:"processedAt,omitempty"`
}

type RefundRecordResponse struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transactionId"`
	Amount        string    `json:"amount"`
	Reason        string    `json:"reason,omitempty"`
	Status        string    `json:"status"`
	ProcessedByID string    `json:"processedById"`
	ProcessedAt   time.Time `json:"processedAt"`
}

type OrderResponse struct {
	Success           bool                   `json:"success"`
	ID                string                 `json:"id"`
	OrderNumber       string                 `json:"orderNumber"`
	CustomerRef       string                 `json:"customerRef,omitempty"`
	Total             MoneyResponse          `json:"total"`
	FinancialStatus   string                 `json:"financialStatus"`
	Charged           string                 `json:"charged"`
	Refunded          string                 `json:"refunded"`
	RefundableBalance string                 `json:"refundableBalance"`
	PaidAt            *time.Time             `json:"paidAt,omitempty"`
	CancelledAt       *time.Time             `json:"cancelledAt,omitempty"`
	Transactions      []LedgerEntryResponse  `json:"transactions"`
	Refunds           []RefundRecordResponse `json:"refunds"`
}

// GetOrder returns an order with its ledger and refundable balance.
func (h *RefundHandler) GetOrder(c echo.Context) error {
	storeSlug := c.Param("storeSlug")
	staff, err := auth.RequireStore(c, storeSlug)
	if err != nil {
		return respondError(c, h.logger, err, "Order read not authorized")
	}

	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		return respondError(c, h.logger, apperrors.Validation("invalid order id"), "Invalid order request")
	}

	view, err := h.orders.GetOrder(c.Request().Context(), storeSlug, staff.StoreID, orderID)
	if err != nil {
		return respondError(c, h.logger, err, "Order read failed")
	}

	return c.JSON(http.StatusOK, orderResponse(view))
}

func orderResponse(view *usecase.OrderView) OrderResponse {
	o := view.Order
	resp := OrderResponse{
		Success:           true,
		ID:                o.ID.String(),
		OrderNumber:       o.OrderNumber,
		CustomerRef:       o.CustomerRef,
		Total:             moneyResponse(o.Total()),
		FinancialStatus:   string(o.FinancialStatus),
		Charged:           view.Charged.String(),
		Refunded:          view.Refunded.String(),
		RefundableBalance: view.RefundableBalance.String(),
		PaidAt:            o.PaidAt,
		CancelledAt:       o.CancelledAt,
		Transactions:      make([]LedgerEntryResponse, 0, len(view.Transactions)),
		Refunds:           make([]RefundRecordResponse, 0, len(view.Refunds)),
	}
	for _, t := range view.Transactions {
		resp.Transactions = append(resp.Transactions, ledgerEntry(t))
	}
	for _, r := range view.Refunds {
		resp.Refunds = append(resp.Refunds, RefundRecordResponse{
			ID:            r.ID.String(),
			TransactionID: r.TransactionID.String(),
			Amount:        r.Money().String(),
			Reason:        r.Reason,
			Status:        string(r.Status),
			ProcessedByID: r.ProcessedByID,
			ProcessedAt:   r.ProcessedAt,
		})
	}
	return resp
}

func ledgerEntry(t *model.PaymentTransaction) LedgerEntryResponse {
	e := LedgerEntryResponse{
		ID:          t.ID.String(),
		Type:        string(t.Type),
		Status:      string(t.Status),
		Provider:    t.Provider,
		Amount:      t.Money().String(),
		CreatedAt:   t.CreatedAt,
		ProcessedAt: t.ProcessedAt,
	}
	if t.ProviderTransactionID != nil {
		e.ProviderTransactionID = *t.ProviderTransactionID
	}
	if t.ParentTransactionID != nil {
		e.ParentTransactionID = t.ParentTransactionID.String()
	}
	if t.ErrorCode != nil {
		e.ErrorCode = *t.ErrorCode
	}
	if t.ErrorMessage != nil {
		e.ErrorMessage = *t.ErrorMessage
	}
	return e
}
