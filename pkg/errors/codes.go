package errors

// 공통 에러 코드 정의
const (
	// 일반적인 에러 코드
	ErrInternal        = "INTERNAL"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "VALIDATION"
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrConflict        = "CONFLICT"
	ErrTimeout         = "TIMEOUT"
	ErrNotImplemented  = "NOT_IMPLEMENTED"

	// 결제 도메인 에러 코드
	ErrAlreadyProcessed = "ALREADY_PROCESSED"
	ErrProvider         = "PROVIDER_ERROR"
	ErrProviderDeclined = "PROVIDER_DECLINED"
	ErrNotReady         = "NOT_READY"
)
