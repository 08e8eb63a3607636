package http

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/model"
	"github.com/wekeepgrowing/paycore/internal/domain/provider"
	"github.com/wekeepgrowing/paycore/internal/domain/repository"
	"github.com/wekeepgrowing/paycore/internal/usecase"
	apperrors "github.com/wekeepgrowing/paycore/pkg/errors"
)

const maxCallbackBody = 1 << 20

// WebhookHandler receives provider callbacks, both server-to-server
// notifications and the buyer's browser returning from the gateway.
type WebhookHandler struct {
	logger     *zap.Logger
	providers  *provider.Registry
	reconciler *usecase.ReconcileService
	stores     repository.StoreRepository
}

func NewWebhookHandler(logger *zap.Logger, providers *provider.Registry, reconciler *usecase.ReconcileService, stores repository.StoreRepository) *WebhookHandler {
	return &WebhookHandler{
		logger:     logger,
		providers:  providers,
		reconciler: reconciler,
		stores:     stores,
	}
}

type CallbackResponse struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome,omitempty"`
}

// HandleCallback processes POST /callbacks/:storeSlug/:provider.
// Accepted and no-op deliveries both answer 200 so the provider stops retrying.
func (h *WebhookHandler) HandleCallback(c echo.Context) error {
	ctx := c.Request().Context()
	storeSlug := c.Param("storeSlug")

	t, parser, ok := h.parser(c.Param("provider"))
	if !ok {
		h.logger.Warn("Callback for unknown provider",
			zap.String("store", storeSlug),
			zap.String("provider", c.Param("provider")))
		return respondError(c, h.logger, apperrors.NotFound("unknown provider"), "Callback rejected")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		h.logger.Error("Failed to read callback body", zap.Error(err))
		return respondError(c, h.logger, apperrors.Validation("Failed to read request body"), "Callback rejected")
	}

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	n, parseErr := parser.ParseCallback(contentType, body, c.QueryParams())
	if parseErr != nil {
		h.logger.Warn("Malformed provider callback",
			zap.String("store", storeSlug),
			zap.String("provider", string(t)),
			zap.String("content_type", contentType),
			zap.Error(parseErr))
	}

	result, err := h.reconciler.Reconcile(ctx, usecase.ReconcileInput{
		StoreSlug:    storeSlug,
		Provider:     t,
		Notification: n,
		Source:       usecase.SourceWebhook,
		RemoteIP:     c.RealIP(),
		RawPayload:   body,
	})
	if err != nil {
		return respondError(c, h.logger, callbackError(err, parseErr), "Callback failed")
	}

	h.logger.Info("Callback processed",
		zap.String("store", storeSlug),
		zap.String("provider", string(t)),
		zap.String("pending_payment_id", result.PendingPaymentID.String()),
		zap.String("outcome", string(result.Outcome)),
		zap.String("detail", result.Detail))

	return c.JSON(http.StatusOK, CallbackResponse{Success: true, Outcome: string(result.Outcome)})
}

// HandleReturn processes GET /callbacks/:storeSlug/:provider/return and
// sends the buyer on to the store's confirmation or error page.
func (h *WebhookHandler) HandleReturn(c echo.Context) error {
	ctx := c.Request().Context()
	storeSlug := c.Param("storeSlug")

	store, err := h.stores.GetBySlug(ctx, storeSlug)
	if err != nil {
		return respondError(c, h.logger, err, "Return lookup failed")
	}
	if store == nil {
		return respondError(c, h.logger, domainerrors.ErrStoreNotFound, "Return rejected")
	}

	t, parser, ok := h.parser(c.Param("provider"))
	if !ok {
		return respondError(c, h.logger, apperrors.NotFound("unknown provider"), "Return rejected")
	}

	n, parseErr := parser.ParseCallback("", nil, c.QueryParams())
	if parseErr != nil {
		h.logger.Warn("Malformed provider return",
			zap.String("store", storeSlug),
			zap.String("provider", string(t)),
			zap.Error(parseErr))
	}

	result, err := h.reconciler.Reconcile(ctx, usecase.ReconcileInput{
		StoreSlug:    storeSlug,
		Provider:     t,
		Notification: n,
		Source:       usecase.SourceRedirect,
		RemoteIP:     c.RealIP(),
		RawPayload:   []byte(c.QueryString()),
	})
	if err != nil {
		appErr := domainerrors.Classify(callbackError(err, parseErr))
		apperrors.LogError(h.logger, appErr, "Return failed", zap.String("store", storeSlug))
		return h.redirectError(c, store, appErr.Code())
	}

	switch {
	case result.Settled() && result.OrderID != nil:
		return h.redirect(c, store.OrderConfirmURL, url.Values{"order": {result.OrderID.String()}})
	case result.PendingStatus == model.PendingStatusFailed:
		code := result.ErrorCode
		if code == "" {
			code = apperrors.ErrProviderDeclined
		}
		return h.redirectError(c, store, code)
	default:
		return h.redirect(c, store.OrderConfirmURL, url.Values{
			"pending": {result.PendingPaymentID.String()},
			"status":  {string(result.PendingStatus)},
		})
	}
}

func (h *WebhookHandler) parser(name string) (provider.Type, provider.CallbackParser, bool) {
	t, ok := provider.ParseType(name)
	if !ok {
		return "", nil, false
	}
	parser, err := h.providers.CallbackParser(t)
	if err != nil {
		return "", nil, false
	}
	return t, parser, true
}

func (h *WebhookHandler) redirectError(c echo.Context, store *model.Store, code string) error {
	return h.redirect(c, store.CheckoutErrorURL, url.Values{"error": {code}})
}

func (h *WebhookHandler) redirect(c echo.Context, target string, params url.Values) error {
	if target == "" {
		return c.JSON(http.StatusOK, params)
	}
	u, err := url.Parse(target)
	if err != nil {
		h.logger.Error("Invalid store redirect URL", zap.String("url", target), zap.Error(err))
		return c.JSON(http.StatusOK, params)
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return c.Redirect(http.StatusFound, u.String())
}

// callbackError keeps the parse failure as the cause of an invalid callback
// so the response says what was wrong with the payload.
func callbackError(err, parseErr error) error {
	if parseErr != nil && errors.Is(err, domainerrors.ErrInvalidCallback) {
		return parseErr
	}
	return err
}
