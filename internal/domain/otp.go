package domain

import "time"

type OTPType string

const (
	OTPTypeEmailVerification OTPType = "EMAIL_VERIFICATION"
	OTPTypePasswordReset     OTPType = "PASSWORD_RESET"
)

type OTP struct {
	ID        int64
	UserID    int64
	Code      string
	Type      OTPType
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

func (o OTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// PasswordResetToken guarda solo el SHA-256 del token opaco enviado al usuario.
type PasswordResetToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

func (t PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
