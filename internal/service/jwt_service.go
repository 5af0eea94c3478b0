package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"storefront-auth/internal/domain"
)

type TokenType string

// errMissingSecret es un error de configuración, no de cliente: termina en 500.
var errMissingSecret = errors.New("jwt signing secret not configured")

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenIssuer es lo que el orquestador necesita del servicio de tokens.
type TokenIssuer interface {
	GeneratePair(user domain.User) (TokenPair, error)
	IssueAccessToken(claims TokenClaims) (string, error)
	Verify(token string) (Claims, error)
	IsRefreshActive(claims Claims) (bool, error)
	Revoke(refreshToken string) error
	RevokeSessions(userID int64) (int, error)
}

// JWTService emite y valida tokens JWT.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   string
	store      RefreshTokenStore
	now        func() time.Time
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// TokenClaims es la identidad que viaja dentro de un token.
type TokenClaims struct {
	UserID int64
	Email  string
	Role   domain.Role
}

func ClaimsFor(user domain.User) TokenClaims {
	return TokenClaims{UserID: user.ID, Email: user.Email, Role: user.Role}
}

type Claims struct {
	UserID    int64       `json:"uid"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	TokenType TokenType   `json:"typ"`
	jwt.RegisteredClaims
}

func NewJWTService(cfg JWTConfig, store RefreshTokenStore) *JWTService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 7 * 24 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "storefront-api"
	}
	if cfg.Audience == "" {
		cfg.Audience = "storefront-clients"
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	return &JWTService{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *JWTService) GeneratePair(user domain.User) (TokenPair, error) {
	claims := ClaimsFor(user)
	access, err := s.IssueAccessToken(claims)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(claims)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *JWTService) IssueAccessToken(claims TokenClaims) (string, error) {
	return s.sign(claims, TokenTypeAccess, s.accessTTL, "")
}

// IssueRefreshToken firma un refresh token y registra su jti para poder revocarlo.
func (s *JWTService) IssueRefreshToken(claims TokenClaims) (string, error) {
	jti := uuid.NewString()
	signed, err := s.sign(claims, TokenTypeRefresh, s.refreshTTL, jti)
	if err != nil {
		return "", err
	}
	if err := s.store.Store(jti, claims.UserID, s.refreshTTL); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return signed, nil
}

// Verify valida firma, emisor, audiencia y expiración. El tipo lo revisa el caller.
func (s *JWTService) Verify(token string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, errMissingSecret
	}
	if strings.TrimSpace(token) == "" {
		return Claims{}, domain.ErrInvalidToken
	}

	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, domain.ErrTokenExpired
		}
		return Claims{}, domain.ErrInvalidToken
	}
	if claims.UserID <= 0 || claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return Claims{}, domain.ErrInvalidToken
	}
	return claims, nil
}

func (s *JWTService) IsRefreshActive(claims Claims) (bool, error) {
	if claims.TokenType != TokenTypeRefresh || claims.ID == "" {
		return false, nil
	}
	return s.store.Exists(claims.ID)
}

func (s *JWTService) Revoke(refreshToken string) error {
	claims, err := s.Verify(refreshToken)
	if err != nil {
		return err
	}
	if claims.TokenType != TokenTypeRefresh || claims.ID == "" {
		return domain.ErrWrongTokenType
	}
	return s.store.Revoke(claims.ID)
}

func (s *JWTService) sign(tc TokenClaims, tokenType TokenType, ttl time.Duration, jti string) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("sign token: %w", errMissingSecret)
	}
	now := s.now()
	claims := Claims{
		UserID:    tc.UserID,
		Email:     tc.Email,
		Role:      tc.Role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(tc.UserID, 10),
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// RevokeSessions invalida todos los refresh tokens emitidos al usuario.
func (s *JWTService) RevokeSessions(userID int64) (int, error) {
	return s.store.RevokeUser(userID)
}
