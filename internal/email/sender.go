package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para notificaciones de cuenta.
type Sender interface {
	SendVerificationOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, toEmail string, token string, expiresAt time.Time) error
	SendWelcome(ctx context.Context, toEmail string, name string) error
	SendLoginAlert(ctx context.Context, toEmail string, login LoginContext) error
}

// LoginContext describe desde dónde se inició sesión.
type LoginContext struct {
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	At        time.Time `json:"at"`
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

func (s *disabledSender) SendVerificationOTP(_ context.Context, _ string, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendPasswordReset(_ context.Context, _ string, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendWelcome(_ context.Context, _ string, _ string) error {
	return s.err()
}

func (s *disabledSender) SendLoginAlert(_ context.Context, _ string, _ LoginContext) error {
	return s.err()
}
