package errors

import "errors"

var (
	// ErrStoreNotFound indicates that no store matches the route slug
	ErrStoreNotFound = errors.New("store not found")

	// ErrStoreMismatch indicates that the caller's store does not own the resource
	ErrStoreMismatch = errors.New("resource belongs to another store")

	// ErrPendingPaymentNotFound indicates that no pending payment matches the reference
	ErrPendingPaymentNotFound = errors.New("pending payment not found")

	// ErrOrderNotFound indicates that the order does not exist
	ErrOrderNotFound = errors.New("order not found")

	// ErrChargeNotFound indicates that the order has no successful charge to refund against
	ErrChargeNotFound = errors.New("no successful charge for order")

	// ErrProviderNotConfigured indicates a missing or inactive provider config for the store
	ErrProviderNotConfigured = errors.New("payment provider is not configured for this store")

	// ErrUnsupportedProvider indicates a provider name outside the registry
	ErrUnsupportedProvider = errors.New("unsupported payment provider")

	// ErrOperationNotSupported indicates the provider has no such operation (e.g. capture on PayMe)
	ErrOperationNotSupported = errors.New("operation not supported by provider")

	// ErrNotReady indicates the buyer has not approved the provider order yet
	ErrNotReady = errors.New("provider order is not approved yet")

	// ErrAlreadyProcessed indicates the payment or refund was already finalised
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrPaymentExpired indicates the pending payment outlived its TTL before settling
	ErrPaymentExpired = errors.New("pending payment expired")

	// ErrNothingToRefund indicates the order has no refundable balance left
	ErrNothingToRefund = errors.New("order has no refundable balance")

	// ErrRefundExceedsBalance indicates the requested refund is larger than what remains
	ErrRefundExceedsBalance = errors.New("refund amount exceeds refundable balance")

	// ErrOrderNotRefundable indicates the order's financial status does not allow refunds
	ErrOrderNotRefundable = errors.New("order is not in a refundable state")

	// ErrInvalidPurpose indicates an unknown or malformed purpose payload
	ErrInvalidPurpose = errors.New("invalid payment purpose")

	// ErrCodeSpaceExhausted indicates no unique gift-card code could be generated
	ErrCodeSpaceExhausted = errors.New("could not generate a unique gift card code")

	// ErrConcurrentUpdate indicates an optimistic version check lost a race
	ErrConcurrentUpdate = errors.New("concurrent update")

	// ErrInvalidCallback indicates a callback body that could not be parsed
	ErrInvalidCallback = errors.New("invalid provider callback")
)
