package errors

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies gateway failures for the caller.
type ProviderErrorKind string

const (
	// ProviderErrorRetryable covers network failures, timeouts, 5xx and an open breaker.
	ProviderErrorRetryable ProviderErrorKind = "retryable"
	// ProviderErrorDecline is a terminal business decline from the gateway.
	ProviderErrorDecline ProviderErrorKind = "decline"
	// ProviderErrorConfig is a missing or invalid merchant configuration.
	ProviderErrorConfig ProviderErrorKind = "config"
)

// ProviderError is the only error shape adapters return for gateway failures.
type ProviderError struct {
	Provider   string            `json:"provider"`
	Kind       ProviderErrorKind `json:"kind"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    string            `json:"details,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
	Err        error             `json:"-"`
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Provider, e.Kind)
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Retryable() bool {
	return e.Kind == ProviderErrorRetryable
}

func NewRetryableError(provider, code, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderErrorRetryable, Code: code, Message: message, Err: err}
}

func NewDeclineError(provider, code, message string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderErrorDecline, Code: code, Message: message}
}

func NewConfigError(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderErrorConfig, Code: "config", Message: message, Err: ErrProviderNotConfigured}
}

// AsProviderError extracts a ProviderError from the chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsDecline reports whether err is a terminal gateway decline.
func IsDecline(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Kind == ProviderErrorDecline
}
