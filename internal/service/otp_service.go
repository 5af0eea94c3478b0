package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront-auth/internal/domain"
	"storefront-auth/internal/email"
	"storefront-auth/internal/repository"
)

// OTPIssuer emite y valida códigos numéricos ligados a (usuario, propósito).
type OTPIssuer interface {
	Issue(ctx context.Context, user domain.User, otpType domain.OTPType) (domain.OTP, error)
	Verify(ctx context.Context, userID int64, code string, otpType domain.OTPType) error
	VerifyEmail(ctx context.Context, userID int64, code string) (domain.User, error)
}

type OTPConfig struct {
	Length   int
	TTL      time.Duration
	Cooldown time.Duration
}

type OTPService struct {
	logger  *zap.Logger
	otps    repository.OTPRepository
	sender  email.Sender
	cfg     OTPConfig
	now     func() time.Time
	codeGen func(length int) (string, error)
}

func NewOTPService(logger *zap.Logger, otps repository.OTPRepository, sender email.Sender, cfg OTPConfig) *OTPService {
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OTPService{
		logger:  logger,
		otps:    otps,
		sender:  sender,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		codeGen: generateNumericCode,
	}
}

// Issue genera un código nuevo, invalida los anteriores del mismo tipo y lo
// envía por correo. Un fallo de entrega se devuelve al caller.
func (s *OTPService) Issue(ctx context.Context, user domain.User, otpType domain.OTPType) (domain.OTP, error) {
	code, err := s.codeGen(s.cfg.Length)
	if err != nil {
		return domain.OTP{}, err
	}

	now := s.now()
	otp, err := s.otps.Create(ctx, domain.OTP{
		UserID:    user.ID,
		Code:      code,
		Type:      otpType,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}, now.Add(-s.cfg.Cooldown))
	if err != nil {
		return domain.OTP{}, err
	}

	if err := s.deliver(ctx, user.Email, otp); err != nil {
		s.logger.Warn("send otp failed",
			zap.Error(err),
			zap.Int64("user_id", user.ID),
			zap.String("type", string(otpType)),
		)
		return domain.OTP{}, domain.ErrEmailDelivery
	}
	return otp, nil
}

func (s *OTPService) deliver(ctx context.Context, to string, otp domain.OTP) error {
	if s.sender == nil {
		return errors.New("email sender not configured")
	}
	if otp.Type == domain.OTPTypePasswordReset {
		return s.sender.SendPasswordReset(ctx, to, otp.Code, otp.ExpiresAt)
	}
	return s.sender.SendVerificationOTP(ctx, to, otp.Code, otp.ExpiresAt)
}

// Verify consume el código si es válido. Si no lo es, el código más reciente
// del mismo tipo decide el motivo: usado, expirado o inválido.
func (s *OTPService) Verify(ctx context.Context, userID int64, code string, otpType domain.OTPType) error {
	code = strings.TrimSpace(code)
	if !isValidOTPCode(code, s.cfg.Length) {
		return domain.ErrInvalidOTP
	}

	now := s.now()
	_, err := s.otps.ConsumeValid(ctx, userID, code, otpType, now)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return s.rejection(ctx, userID, otpType, now)
}

// VerifyEmail consume el código de verificación y activa la cuenta en la misma
// transacción. Devuelve el usuario ya activo.
func (s *OTPService) VerifyEmail(ctx context.Context, userID int64, code string) (domain.User, error) {
	code = strings.TrimSpace(code)
	if !isValidOTPCode(code, s.cfg.Length) {
		return domain.User{}, domain.ErrInvalidOTP
	}

	now := s.now()
	user, err := s.otps.ConsumeAndActivate(ctx, userID, code, now)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}
	return domain.User{}, s.rejection(ctx, userID, domain.OTPTypeEmailVerification, now)
}

func (s *OTPService) rejection(ctx context.Context, userID int64, otpType domain.OTPType, now time.Time) error {
	latest, err := s.otps.Latest(ctx, userID, otpType)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidOTP
	}
	if err != nil {
		return err
	}
	switch {
	case latest.Used:
		return domain.ErrOTPAlreadyUsed
	case latest.Expired(now):
		return domain.ErrOTPExpired
	default:
		return domain.ErrInvalidOTP
	}
}

// CleanupExpired borra los códigos vencidos. Lo invoca un scheduler externo.
func (s *OTPService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.otps.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Info("expired otps removed", zap.Int64("count", n))
	return n, nil
}

// generateNumericCode toma cada dígito de crypto/rand.
func generateNumericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func isValidOTPCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
