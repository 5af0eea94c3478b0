package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront-auth/internal/domain"
	"storefront-auth/internal/email"
	"storefront-auth/internal/repository"
)

// AuthService coordina registro, verificación, sesiones y contraseñas.
type AuthService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	resets  repository.PasswordResetRepository
	otps    OTPIssuer
	tokens  TokenIssuer
	hasher  PasswordHasher
	sender  email.Sender
	cfg     AuthConfig
	now     func() time.Time
	tokenFn func() (string, string, error)
}

// notifyTimeout acota los envíos best-effort que corren dentro del request.
const notifyTimeout = 5 * time.Second

type AuthConfig struct {
	ResetTTL      time.Duration
	ResetCooldown time.Duration
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	resets repository.PasswordResetRepository,
	otps OTPIssuer,
	tokens TokenIssuer,
	hasher PasswordHasher,
	sender email.Sender,
	cfg AuthConfig,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.ResetCooldown <= 0 {
		cfg.ResetCooldown = 5 * time.Minute
	}
	if sender == nil {
		sender = email.NewDisabledSender("email sender not configured")
	}
	return &AuthService{
		logger:  logger,
		users:   users,
		resets:  resets,
		otps:    otps,
		tokens:  tokens,
		hasher:  hasher,
		sender:  sender,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		tokenFn: generateResetToken,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Role      string
}

type RegisterResult struct {
	User    domain.User
	OTPSent bool
}

type LoginResult struct {
	User   domain.User
	Tokens TokenPair
}

// Principal es la identidad autenticada que viaja en el contexto del request.
type Principal struct {
	UserID int64
	Email  string
	Role   domain.Role
	Status domain.UserStatus
}

// Register crea la cuenta en PENDING_VERIFICATION y envía el código de
// verificación. Si el envío falla la cuenta queda creada y OTPSent es false.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	emailAddr := normalizeEmail(input.Email)
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	if emailAddr == "" || input.Password == "" || firstName == "" || lastName == "" {
		return RegisterResult{}, domain.ErrValidation
	}
	role, ok := domain.ParseRole(input.Role)
	if !ok || role == domain.RoleAdmin {
		return RegisterResult{}, domain.ErrValidation
	}

	exists, err := s.users.ExistsByEmail(ctx, emailAddr)
	if err != nil {
		return RegisterResult{}, err
	}
	if exists {
		return RegisterResult{}, domain.ErrEmailTaken
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	user, err := s.users.Create(ctx, domain.User{
		Email:        emailAddr,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Phone:        trimOptional(input.Phone),
		Role:         role,
		Status:       domain.StatusPendingVerification,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return RegisterResult{}, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))

	if _, err := s.otps.Issue(ctx, user, domain.OTPTypeEmailVerification); err != nil {
		if !errors.Is(err, domain.ErrEmailDelivery) {
			return RegisterResult{}, err
		}
		return RegisterResult{User: user, OTPSent: false}, nil
	}
	return RegisterResult{User: user, OTPSent: true}, nil
}

// VerifyEmail consume el código de verificación y activa la cuenta.
func (s *AuthService) VerifyEmail(ctx context.Context, emailAddr, code string) (domain.User, error) {
	user, err := s.pendingUser(ctx, emailAddr)
	if err != nil {
		return domain.User{}, err
	}
	user, err = s.otps.VerifyEmail(ctx, user.ID, code)
	if err != nil {
		return domain.User{}, err
	}
	s.logger.Info("email verified", zap.Int64("user_id", user.ID))

	s.notify(ctx, "send welcome email failed", user.ID, func(ctx context.Context) error {
		return s.sender.SendWelcome(ctx, user.Email, user.FullName())
	})
	return user, nil
}

func (s *AuthService) ResendOTP(ctx context.Context, emailAddr string) error {
	user, err := s.pendingUser(ctx, emailAddr)
	if err != nil {
		return err
	}
	_, err = s.otps.Issue(ctx, user, domain.OTPTypeEmailVerification)
	return err
}

func (s *AuthService) pendingUser(ctx context.Context, emailAddr string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.User{}, domain.ErrValidation
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		return domain.User{}, err
	}
	if err := user.VerificationBlocker(); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Login valida credenciales antes que el estado de la cuenta para no revelar
// qué correos existen.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string, lc email.LoginContext) (LoginResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return LoginResult{}, domain.ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if errors.Is(err, domain.ErrUserNotFound) {
		return LoginResult{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if !s.hasher.Matches(user.PasswordHash, password) {
		return LoginResult{}, domain.ErrInvalidCredentials
	}

	switch user.Status {
	case domain.StatusActive:
	case domain.StatusSuspended:
		return LoginResult{}, domain.ErrAccountSuspended
	case domain.StatusPendingVerification:
		return LoginResult{}, domain.ErrEmailNotVerified
	default:
		return LoginResult{}, domain.ErrInvalidCredentials
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return LoginResult{}, err
	}
	user.LastLoginAt = &now

	pair, err := s.tokens.GeneratePair(user)
	if err != nil {
		return LoginResult{}, err
	}

	if lc.At.IsZero() {
		lc.At = now
	}
	s.notify(ctx, "send login alert failed", user.ID, func(ctx context.Context) error {
		return s.sender.SendLoginAlert(ctx, user.Email, lc)
	})
	return LoginResult{User: user, Tokens: pair}, nil
}

// RefreshAccessToken emite un access token nuevo. El refresh token no rota.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", domain.ErrWrongTokenType
	}
	active, err := s.tokens.IsRefreshActive(claims)
	if err != nil {
		return "", err
	}
	if !active {
		return "", domain.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", domain.ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	if user.Status != domain.StatusActive {
		return "", domain.ErrAccountInactive
	}
	return s.tokens.IssueAccessToken(ClaimsFor(user))
}

func (s *AuthService) Logout(_ context.Context, refreshToken string) error {
	return s.tokens.Revoke(refreshToken)
}

// CreatePasswordResetToken emite un token opaco y lo envía por correo. Solo
// se guarda su hash.
func (s *AuthService) CreatePasswordResetToken(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return domain.ErrValidation
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}

	token, tokenHash, err := s.tokenFn()
	if err != nil {
		return err
	}
	now := s.now()
	expiresAt := now.Add(s.cfg.ResetTTL)
	err = s.resets.Create(ctx, domain.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, now.Add(-s.cfg.ResetCooldown))
	if err != nil {
		return err
	}

	if err := s.sender.SendPasswordReset(ctx, user.Email, token, expiresAt); err != nil {
		s.logger.Warn("send password reset failed", zap.Error(err), zap.Int64("user_id", user.ID))
		return domain.ErrEmailDelivery
	}
	s.logger.Info("password reset requested", zap.Int64("user_id", user.ID))
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrInvalidOrExpiredToken
	}
	if newPassword == "" {
		return domain.ErrValidation
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	userID, err := s.resets.ConsumeAndSetPassword(ctx, hashResetToken(token), hash, s.now())
	if err != nil {
		return err
	}
	s.logger.Info("password reset completed", zap.Int64("user_id", userID))
	s.closeSessions(userID)
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	if newPassword == "" {
		return domain.ErrValidation
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Matches(user.PasswordHash, currentPassword) {
		return domain.ErrInvalidCurrentPassword
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	s.logger.Info("password changed", zap.Int64("user_id", user.ID))
	s.closeSessions(user.ID)
	return nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID int64) (domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, update domain.UserUpdate) (domain.User, error) {
	update.FirstName = trimOptional(update.FirstName)
	update.LastName = trimOptional(update.LastName)
	if update.Phone != nil {
		phone := strings.TrimSpace(*update.Phone)
		update.Phone = &phone
	}
	if update.Empty() {
		return domain.User{}, domain.ErrValidation
	}
	return s.users.UpdateFields(ctx, userID, update)
}

// Authenticate resuelve un bearer token a la identidad de un usuario ACTIVE.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	if claims.TokenType != TokenTypeAccess {
		return Principal{}, domain.ErrWrongTokenType
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return Principal{}, domain.ErrInvalidToken
	}
	if err != nil {
		return Principal{}, err
	}
	if user.Status != domain.StatusActive {
		return Principal{}, domain.ErrAccountInactive
	}
	return Principal{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Status: user.Status,
	}, nil
}

func (s *AuthService) Authorize(p Principal, allowed ...domain.Role) error {
	for _, role := range allowed {
		if p.Role == role {
			return nil
		}
	}
	return domain.ErrForbidden
}

// closeSessions revoca los refresh tokens del usuario tras cambiar su
// contraseña. La contraseña ya está guardada, así que un fallo solo se registra.
func (s *AuthService) closeSessions(userID int64) {
	n, err := s.tokens.RevokeSessions(userID)
	if err != nil {
		s.logger.Error("revoke sessions failed", zap.Error(err), zap.Int64("user_id", userID))
		return
	}
	s.logger.Info("sessions revoked", zap.Int64("user_id", userID), zap.Int("count", n))
}

// notify ejecuta un envío best-effort con tiempo acotado; los errores solo se
// registran.
func (s *AuthService) notify(ctx context.Context, failMsg string, userID int64, send func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if err := send(ctx); err != nil {
		s.logger.Warn(failMsg, zap.Error(err), zap.Int64("user_id", userID))
	}
}

// normalizeEmail solo recorta espacios; el correo conserva mayúsculas.
func normalizeEmail(value string) string {
	return strings.TrimSpace(value)
}

// trimOptional devuelve nil para punteros nil o cadenas vacías tras recortar.
func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
