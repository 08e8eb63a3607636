package http

import (
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainerrors "github.com/wekeepgrowing/paycore/internal/domain/errors"
	"github.com/wekeepgrowing/paycore/internal/domain/money"
	apperrors "github.com/wekeepgrowing/paycore/pkg/errors"
)

// ErrorResponse is the failure body shared by all endpoints.
type ErrorResponse struct {
	Success         bool   `json:"success"`
	Error           string `json:"error"`
	ErrorCode       string `json:"errorCode"`
	ProviderMessage string `json:"providerMessage,omitempty"`
}

// MoneyResponse renders an amount as a decimal string with its currency.
type MoneyResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func moneyResponse(m money.Money) MoneyResponse {
	return MoneyResponse{Amount: m.String(), Currency: m.Currency}
}

// respondError classifies err into the error taxonomy and writes it.
func respondError(c echo.Context, logger *zap.Logger, err error, msg string) error {
	appErr := domainerrors.Classify(err)
	apperrors.LogError(logger, appErr, msg,
		zap.String("method", c.Request().Method),
		zap.String("path", c.Request().URL.Path))

	body := ErrorResponse{
		Success:   false,
		Error:     appErr.Message(),
		ErrorCode: appErr.Code(),
	}
	if pe, ok := domainerrors.AsProviderError(err); ok && pe.Message != "" {
		body.ProviderMessage = pe.Message
	}
	return c.JSON(apperrors.ToHTTPStatus(appErr.Code()), body)
}

// bindAndValidate binds the request body and runs the echo validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperrors.Validation("Invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return apperrors.NewAppError(apperrors.ErrInvalidArgument, err.Error(), err)
	}
	return nil
}

// checkoutMessage is a buyer-facing explanation of a checkout failure.
type checkoutMessage struct {
	en string
	he string
}

var checkoutMessages = map[string]checkoutMessage{
	apperrors.ErrProviderDeclined: {
		en: "Your payment was declined. Please check your card details or try another payment method.",
		he: "התשלום נדחה. אנא בדקו את פרטי הכרטיס או נסו אמצעי תשלום אחר.",
	},
	apperrors.ErrProvider: {
		en: "The payment provider is temporarily unavailable. Please try again in a few minutes.",
		he: "ספק התשלומים אינו זמין כרגע. אנא נסו שוב בעוד מספר דקות.",
	},
	apperrors.ErrTimeout: {
		en: "The payment is taking longer than expected. Please check your order status before trying again.",
		he: "התשלום אורך זמן רב מהצפוי. אנא בדקו את סטטוס ההזמנה לפני ניסיון נוסף.",
	},
	apperrors.ErrInvalidArgument: {
		en: "Some payment details are invalid. Please review them and try again.",
		he: "חלק מפרטי התשלום אינם תקינים. אנא בדקו אותם ונסו שוב.",
	},
	apperrors.ErrNotFound: {
		en: "We could not find this payment. Please start checkout again.",
		he: "לא מצאנו את התשלום. אנא התחילו את התשלום מחדש.",
	},
	apperrors.ErrNotReady: {
		en: "The payment has not been approved yet. Please complete the approval and try again.",
		he: "התשלום טרם אושר. אנא השלימו את האישור ונסו שוב.",
	},
	apperrors.ErrAlreadyProcessed: {
		en: "This payment has already been processed.",
		he: "התשלום כבר עובד.",
	},
	apperrors.ErrInternal: {
		en: "Something went wrong while processing your payment. Please try again.",
		he: "אירעה שגיאה בעיבוד התשלום. אנא נסו שוב.",
	},
}

// localizedCheckoutMessage picks the buyer message for code. Hebrew is used
// when the client prefers it; anything else falls back to English.
func localizedCheckoutMessage(code, acceptLanguage string) string {
	msg, ok := checkoutMessages[code]
	if !ok {
		msg = checkoutMessages[apperrors.ErrInternal]
	}
	if prefersHebrew(acceptLanguage) {
		return msg.he
	}
	return msg.en
}

func prefersHebrew(acceptLanguage string) bool {
	first := strings.TrimSpace(strings.Split(acceptLanguage, ",")[0])
	first = strings.ToLower(strings.Split(first, ";")[0])
	return first == "he" || strings.HasPrefix(first, "he-") || first == "iw"
}

// respondCheckoutError writes a buyer-facing failure with a stable errorCode.
func respondCheckoutError(c echo.Context, logger *zap.Logger, err error, msg string) error {
	appErr := domainerrors.Classify(err)
	apperrors.LogError(logger, appErr, msg,
		zap.String("path", c.Request().URL.Path))

	return c.JSON(apperrors.ToHTTPStatus(appErr.Code()), ErrorResponse{
		Success:   false,
		Error:     localizedCheckoutMessage(appErr.Code(), c.Request().Header.Get("Accept-Language")),
		ErrorCode: appErr.Code(),
	})
}
