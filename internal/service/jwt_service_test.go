package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"storefront-auth/internal/domain"
)

func newTestJWTService() *JWTService {
	return NewJWTService(JWTConfig{
		Secret:     "secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * time.Minute,
	}, NewMemoryRefreshTokenStore())
}

func TestJWTService_AccessRoundTrip(t *testing.T) {
	svc := newTestJWTService()
	in := TokenClaims{UserID: 42, Email: "user@example.com", Role: domain.RoleSeller}

	token, err := svc.IssueAccessToken(in)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != in.UserID || claims.Email != in.Email || claims.Role != in.Role {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("expected access type, got %q", claims.TokenType)
	}
	if claims.Issuer != "storefront-api" || claims.Subject != "42" {
		t.Fatalf("unexpected registered claims: %+v", claims.RegisteredClaims)
	}
}

func TestJWTService_GeneratePair(t *testing.T) {
	svc := newTestJWTService()
	user := domain.User{ID: 7, Email: "user@example.com", Role: domain.RoleCustomer}

	pair, err := svc.GeneratePair(user)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected tokens")
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiresIn: %d", pair.ExpiresIn)
	}

	refresh, err := svc.Verify(pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if refresh.TokenType != TokenTypeRefresh || refresh.ID == "" {
		t.Fatalf("expected refresh token with jti, got %+v", refresh)
	}
	active, err := svc.IsRefreshActive(refresh)
	if err != nil || !active {
		t.Fatalf("expected refresh active, got %v err=%v", active, err)
	}
}

func TestJWTService_Expired(t *testing.T) {
	svc := newTestJWTService()
	issuedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	token, err := svc.IssueAccessToken(TokenClaims{UserID: 1, Email: "a@x.com", Role: domain.RoleCustomer})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.now = func() time.Time { return issuedAt.Add(16 * time.Minute) }
	if _, err := svc.Verify(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTService_RejectsForeignTokens(t *testing.T) {
	svc := newTestJWTService()
	token, err := svc.IssueAccessToken(TokenClaims{UserID: 1, Email: "a@x.com", Role: domain.RoleCustomer})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewJWTService(JWTConfig{Secret: "other"}, nil)
	if _, err := other.Verify(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	wrongAudience := NewJWTService(JWTConfig{Secret: "secret", Audience: "admin-console"}, nil)
	if _, err := wrongAudience.Verify(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong audience, got %v", err)
	}

	if _, err := svc.Verify("not-a-jwt"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	svc := newTestJWTService()
	now := time.Now().UTC()
	claims := Claims{
		UserID:    1,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "storefront-api",
			Subject:   "1",
			Audience:  jwt.ClaimStrings{"storefront-clients"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for HS512, got %v", err)
	}
}

func TestJWTService_EmptySecret(t *testing.T) {
	svc := NewJWTService(JWTConfig{}, nil)
	_, err := svc.IssueAccessToken(TokenClaims{UserID: 1})
	if !errors.Is(err, errMissingSecret) {
		t.Fatalf("expected errMissingSecret, got %v", err)
	}
	if _, ok := domain.AsError(err); ok {
		t.Fatalf("missing secret must not look like a client error: %v", err)
	}
	if _, err := svc.Verify("a.b.c"); !errors.Is(err, errMissingSecret) {
		t.Fatalf("expected errMissingSecret from Verify, got %v", err)
	}
}

func TestJWTService_Revoke(t *testing.T) {
	svc := newTestJWTService()
	pair, err := svc.GeneratePair(domain.User{ID: 3, Email: "a@x.com", Role: domain.RoleCustomer})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	if err := svc.Revoke(pair.AccessToken); !errors.Is(err, domain.ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType revoking access token, got %v", err)
	}
	if err := svc.Revoke(pair.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	claims, err := svc.Verify(pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	active, err := svc.IsRefreshActive(claims)
	if err != nil {
		t.Fatalf("is active: %v", err)
	}
	if active {
		t.Fatalf("expected revoked refresh token to be inactive")
	}
}
