package email

import (
	"context"
	"time"
)

type EventType string

const (
	EventVerificationOTP EventType = "auth.verification_otp"
	EventPasswordReset   EventType = "auth.password_reset"
	EventWelcome         EventType = "auth.welcome"
	EventLoginAlert      EventType = "auth.login_alert"
)

// Event es el mensaje que consume el servicio de correo cuando el envio se
// delega a un broker.
type Event struct {
	Type       EventType     `json:"type"`
	To         string        `json:"to"`
	Code       string        `json:"code,omitempty"`
	Token      string        `json:"token,omitempty"`
	Name       string        `json:"name,omitempty"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	Login      *LoginContext `json:"login,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

type eventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// eventSender adapta un publicador de eventos a la interfaz Sender.
type eventSender struct {
	pub eventPublisher
	now func() time.Time
}

func newEventSender(pub eventPublisher) *eventSender {
	return &eventSender{pub: pub, now: func() time.Time { return time.Now().UTC() }}
}

func (s *eventSender) SendVerificationOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error {
	exp := expiresAt.UTC()
	return s.pub.Publish(ctx, Event{Type: EventVerificationOTP, To: toEmail, Code: code, ExpiresAt: &exp, OccurredAt: s.now()})
}

func (s *eventSender) SendPasswordReset(ctx context.Context, toEmail string, token string, expiresAt time.Time) error {
	exp := expiresAt.UTC()
	return s.pub.Publish(ctx, Event{Type: EventPasswordReset, To: toEmail, Token: token, ExpiresAt: &exp, OccurredAt: s.now()})
}

func (s *eventSender) SendWelcome(ctx context.Context, toEmail string, name string) error {
	return s.pub.Publish(ctx, Event{Type: EventWelcome, To: toEmail, Name: name, OccurredAt: s.now()})
}

func (s *eventSender) SendLoginAlert(ctx context.Context, toEmail string, login LoginContext) error {
	return s.pub.Publish(ctx, Event{Type: EventLoginAlert, To: toEmail, Login: &login, OccurredAt: s.now()})
}
