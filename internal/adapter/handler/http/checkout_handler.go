package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/usecase"
	apperrors "github.com/wekeepgrowing/paycore/pkg/errors"
)

type CheckoutHandler struct {
	logger     *zap.Logger
	checkout   *usecase.CheckoutService
	reconciler *usecase.ReconcileService
	capture    *usecase.CaptureService
}

func NewCheckoutHandler(logger *zap.Logger, checkout *usecase.CheckoutService, reconciler *usecase.ReconcileService, capture *usecase.CaptureService) *CheckoutHandler {
	return &CheckoutHandler{
		logger:     logger,
		checkout:   checkout,
		reconciler: reconciler,
		capture:    capture,
	}
}

type PurposeRequest struct {
	Type model.PurposeType `json:"type" validate:"required,oneof=gift_card subscription storefront_order credit_topup"`
	Data json.RawMessage   `json:"data"`
}

type CreatePaymentRequest struct {
	Provider        string          `json:"provider" validate:"required,oneof=stripe paypal payme"`
	Amount          string          `json:"amount" validate:"required"`
	Currency        string          `json:"currency" validate:"omitempty,len=3"`
	CustomerRef     string          `json:"customerRef" validate:"max=255"`
	Purpose         *PurposeRequest `json:"purpose"`
	PaymentMethodID string          `json:"paymentMethodId"`
	ReturnURL       string          `json:"returnUrl" validate:"omitempty,url"`
	CancelURL       string          `json:"cancelUrl" validate:"omitempty,url"`
	Language        string          `json:"language" validate:"omitempty,max=10"`
}

type CreatePaymentResponse struct {
	Success           bool          `json:"success"`
	PendingPaymentID  string        `json:"pendingPaymentId"`
	ProviderRequestID string        `json:"providerRequestId"`
	RedirectURL       string        `json:"redirectUrl,omitempty"`
	Status            string        `json:"status"`
	OrderID           string        `json:"orderId,omitempty"`
	FinancialStatus   string        `json:"financialStatus,omitempty"`
	Amount            MoneyResponse `json:"amount"`
	ExpiresAt         time.Time     `json:"expiresAt"`
}

// CreatePayment starts a checkout with the requested provider.
func (h *CheckoutHandler) CreatePayment(c echo.Context) error {
	var req CreatePaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondCheckoutError(c, h.logger, err, "Invalid checkout request")
	}

	var purpose model.Purpose
	if req.Purpose != nil {
		p, err := model.DecodePurposeData(req.Purpose.Type, req.Purpose.Data)
		if err != nil {
			return respondCheckoutError(c, h.logger, apperrors.NewAppError(apperrors.ErrInvalidArgument, err.Error(), err), "Invalid checkout purpose")
		}
		if err := c.Validate(p); err != nil {
			return respondCheckoutError(c, h.logger, apperrors.NewAppError(apperrors.ErrInvalidArgument, err.Error(), err), "Invalid checkout purpose")
		}
		purpose = p
	}

	language := req.Language
	if language == "" && prefersHebrew(c.Request().Header.Get("Accept-Language")) {
		language = "he"
	}

	out, err := h.checkout.Initiate(c.Request().Context(), usecase.CheckoutInput{
		StoreSlug:       c.Param("storeSlug"),
		Provider:        req.Provider,
		Amount:          req.Amount,
		Currency:        req.Currency,
		CustomerRef:     req.CustomerRef,
		Purpose:         purpose,
		PaymentMethodID: req.PaymentMethodID,
		ReturnURL:       req.ReturnURL,
		CancelURL:       req.CancelURL,
		Language:        language,
		RemoteIP:        c.RealIP(),
	})
	if err != nil {
		return respondCheckoutError(c, h.logger, err, "Checkout failed")
	}

	resp := CreatePaymentResponse{
		Success:           true,
		PendingPaymentID:  out.PendingPaymentID.String(),
		ProviderRequestID: out.ProviderRequestID,
		RedirectURL:       out.RedirectURL,
		Status:            string(out.Status),
		FinancialStatus:   string(out.FinancialStatus),
		Amount:            moneyResponse(out.Amount),
		ExpiresAt:         out.ExpiresAt,
	}
	if out.OrderID != nil {
		resp.OrderID = out.OrderID.String()
	}

	status := http.StatusCreated
	if out.Status == model.PendingStatusCompleted {
		status = http.StatusOK
	}
	return c.JSON(status, resp)
}

type PaymentStatusResponse struct {
	Success          bool   `json:"success"`
	PendingPaymentID string `json:"pendingPaymentId"`
	Status           string `json:"status"`
	Outcome          string `json:"outcome"`
	OrderID          string `json:"orderId,omitempty"`
	FinancialStatus  string `json:"financialStatus,omitempty"`
	ErrorCode        string `json:"errorCode,omitempty"`
}

// PollPayment asks the provider for the current status of a pending payment.
func (h *CheckoutHandler) PollPayment(c echo.Context) error {
	pendingID, err := uuid.Parse(c.Param("pendingId"))
	if err != nil {
		return respondCheckoutError(c, h.logger, apperrors.Validation("invalid pending payment id"), "Invalid poll request")
	}

	result, err := h.reconciler.Poll(c.Request().Context(), c.Param("storeSlug"), pendingID, c.RealIP())
	if err != nil {
		return respondCheckoutError(c, h.logger, err, "Payment poll failed")
	}

	resp := PaymentStatusResponse{
		Success:          true,
		PendingPaymentID: result.PendingPaymentID.String(),
		Status:           string(result.PendingStatus),
		Outcome:          string(result.Outcome),
		FinancialStatus:  string(result.FinancialStatus),
		ErrorCode:        result.ErrorCode,
	}
	if result.OrderID != nil {
		resp.OrderID = result.OrderID.String()
	}
	return c.JSON(http.StatusOK, resp)
}

type CaptureRequest struct {
	StoreSlug       string `json:"storeSlug" validate:"required"`
	ProviderOrderID string `json:"providerOrderId" validate:"required"`
	PayerRef        string `json:"payerRef"`
}

type CaptureResponse struct {
	Success         bool   `json:"success"`
	CaptureID       string `json:"captureId"`
	TransactionID   string `json:"transactionId"`
	OrderID         string `json:"orderId,omitempty"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	FinancialStatus string `json:"financialStatus,omitempty"`
}

// Capture confirms an approved redirect-flow order on behalf of the buyer.
func (h *CheckoutHandler) Capture(c echo.Context) error {
	var req CaptureRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondCheckoutError(c, h.logger, err, "Invalid capture request")
	}

	out, err := h.capture.Confirm(c.Request().Context(), usecase.CaptureInput{
		StoreSlug:       req.StoreSlug,
		ProviderOrderID: req.ProviderOrderID,
		PayerRef:        req.PayerRef,
		RemoteIP:        c.RealIP(),
	})
	if err != nil {
		return respondCheckoutError(c, h.logger, err, "Capture failed")
	}

	h.logger.Info("Capture confirmed",
		zap.String("store", req.StoreSlug),
		zap.String("provider_order_id", req.ProviderOrderID),
		zap.String("transaction_id", out.TransactionID),
		zap.Bool("replayed", out.Replayed))

	return c.JSON(http.StatusOK, CaptureResponse{
		Success:         true,
		CaptureID:       out.CaptureID,
		TransactionID:   out.TransactionID,
		OrderID:         out.OrderID,
		Amount:          out.Amount.String(),
		Currency:        out.Amount.Currency,
		Status:          string(out.Status),
		FinancialStatus: string(out.FinancialStatus),
	})
}
