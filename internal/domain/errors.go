package domain

import "errors"

// ErrorKind agrupa los errores de dominio por la respuesta que merecen.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
	KindUnavailable
	KindInternal
)

// Error es un fallo operacional con un código estable para clientes.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrValidation = newError(KindValidation, "VALIDATION_ERROR", "invalid request")

	ErrNotFound              = newError(KindNotFound, "NOT_FOUND", "resource not found")
	ErrUserNotFound          = newError(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrInvalidOrExpiredToken = newError(KindValidation, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired reset token")

	ErrEmailTaken = newError(KindConflict, "DUPLICATE_EMAIL", "email is already registered")

	ErrInvalidCredentials     = newError(KindUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	ErrInvalidCurrentPassword = newError(KindValidation, "INVALID_CURRENT_PASSWORD", "current password is incorrect")

	ErrAccountSuspended = newError(KindForbidden, "ACCOUNT_SUSPENDED", "account is suspended")
	ErrEmailNotVerified = newError(KindForbidden, "EMAIL_NOT_VERIFIED", "email is not verified, please verify your email first")
	ErrAccountInactive  = newError(KindUnauthorized, "ACCOUNT_INACTIVE", "account is not active")
	ErrAlreadyVerified  = newError(KindValidation, "ALREADY_VERIFIED", "email is already verified")

	ErrInvalidOTP     = newError(KindValidation, "INVALID_OTP", "invalid verification code")
	ErrOTPExpired     = newError(KindValidation, "OTP_EXPIRED", "verification code has expired")
	ErrOTPAlreadyUsed = newError(KindValidation, "OTP_ALREADY_USED", "verification code has already been used")

	ErrTooManyRequests = newError(KindTooManyRequests, "TOO_MANY_REQUESTS", "too many requests, please try again later")

	ErrTokenExpired   = newError(KindUnauthorized, "TOKEN_EXPIRED", "token has expired")
	ErrInvalidToken   = newError(KindUnauthorized, "INVALID_TOKEN", "invalid token")
	ErrWrongTokenType = newError(KindUnauthorized, "WRONG_TOKEN_TYPE", "wrong token type")
	ErrForbidden      = newError(KindForbidden, "FORBIDDEN", "insufficient permissions")

	ErrEmailDelivery = newError(KindUnavailable, "EMAIL_DELIVERY_FAILED", "email delivery unavailable")
	ErrInternal      = newError(KindInternal, "INTERNAL_ERROR", "internal server error")
)

// AsError devuelve el error de dominio contenido en err, si existe.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
