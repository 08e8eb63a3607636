package errors

import (
	"context"
	"errors"

	"github.com/wekeepgrowing/paycore/internal/domain/money"
	apperrors "github.com/wekeepgrowing/paycore/pkg/errors"
)

// Classify maps any error produced below the usecase layer into the
// application error taxonomy. Raw provider errors never leave this function
// unwrapped.
func Classify(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if pe, ok := AsProviderError(err); ok {
		switch pe.Kind {
		case ProviderErrorDecline:
			return apperrors.NewAppError(apperrors.ErrProviderDeclined, declineMessage(pe), err)
		case ProviderErrorConfig:
			return apperrors.NewAppError(apperrors.ErrInvalidArgument, "payment provider is not configured for this store", err)
		default:
			return apperrors.NewAppError(apperrors.ErrProvider, "payment provider is temporarily unavailable", err)
		}
	}

	switch {
	case errors.Is(err, ErrStoreNotFound),
		errors.Is(err, ErrPendingPaymentNotFound),
		errors.Is(err, ErrOrderNotFound):
		return apperrors.NewAppError(apperrors.ErrNotFound, err.Error(), err)
	case errors.Is(err, ErrChargeNotFound):
		return apperrors.NewAppError(apperrors.ErrInvalidArgument, err.Error(), err)
	case errors.Is(err, ErrStoreMismatch):
		return apperrors.NewAppError(apperrors.ErrUnauthorized, err.Error(), err)
	case errors.Is(err, ErrNotReady):
		return apperrors.NewAppError(apperrors.ErrNotReady, err.Error(), err)
	case errors.Is(err, ErrAlreadyProcessed),
		errors.Is(err, ErrPaymentExpired),
		errors.Is(err, ErrNothingToRefund):
		return apperrors.NewAppError(apperrors.ErrAlreadyProcessed, err.Error(), err)
	case errors.Is(err, ErrRefundExceedsBalance),
		errors.Is(err, ErrOrderNotRefundable),
		errors.Is(err, ErrInvalidPurpose),
		errors.Is(err, ErrUnsupportedProvider),
		errors.Is(err, ErrProviderNotConfigured),
		errors.Is(err, ErrInvalidCallback),
		errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, money.ErrInvalidCurrency),
		errors.Is(err, money.ErrCurrencyMismatch):
		return apperrors.NewAppError(apperrors.ErrInvalidArgument, err.Error(), err)
	case errors.Is(err, ErrOperationNotSupported):
		return apperrors.NewAppError(apperrors.ErrNotImplemented, err.Error(), err)
	case errors.Is(err, ErrConcurrentUpdate), errors.Is(err, ErrCodeSpaceExhausted):
		return apperrors.NewAppError(apperrors.ErrConflict, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewAppError(apperrors.ErrTimeout, "request timed out", err)
	}

	return apperrors.Internal("internal error", err)
}

func declineMessage(pe *ProviderError) string {
	if pe.Message != "" {
		return "payment declined: " + pe.Message
	}
	return "payment declined"
}
