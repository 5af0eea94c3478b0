package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-auth/internal/domain"
	"storefront-auth/internal/email"
	"storefront-auth/internal/service"
)

// AuthAPI es lo que los endpoints de /auth necesitan del servicio.
type AuthAPI interface {
	Register(ctx context.Context, input service.RegisterInput) (service.RegisterResult, error)
	VerifyEmail(ctx context.Context, emailAddr, code string) (domain.User, error)
	ResendOTP(ctx context.Context, emailAddr string) error
	Login(ctx context.Context, emailAddr, password string, lc email.LoginContext) (service.LoginResult, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	CreatePasswordResetToken(ctx context.Context, emailAddr string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error
	GetProfile(ctx context.Context, userID int64) (domain.User, error)
	UpdateProfile(ctx context.Context, userID int64, update domain.UserUpdate) (domain.User, error)
}

// AuthHandler mantiene dependencias para endpoints de autenticación.
type AuthHandler struct {
	logger *zap.Logger
	auth   AuthAPI
}

func NewAuthHandler(logger *zap.Logger, auth AuthAPI) *AuthHandler {
	return &AuthHandler{logger: logger, auth: auth}
}

const forgotPasswordMessage = "If the email is registered, a password reset link has been sent"

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email     string  `json:"email" binding:"required,email,max=255"`
		Password  string  `json:"password" binding:"required,password"`
		FirstName string  `json:"firstName" binding:"required,max=100"`
		LastName  string  `json:"lastName" binding:"required,max=100"`
		Phone     *string `json:"phone" binding:"omitempty,max=32"`
		Role      string  `json:"role" binding:"omitempty,role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	res, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      req.Role,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	message := "Registration successful. Please verify your email with the code we sent"
	if !res.OTPSent {
		message = "Registration successful, but the verification email could not be sent. Please request a new code"
	}
	writeSuccess(c, http.StatusCreated, message, gin.H{
		"user":    res.User.Sanitize(),
		"otpSent": res.OTPSent,
	})
}

// VerifyOTP maneja POST /auth/verify-otp.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email   string `json:"email" binding:"required,email"`
		OTPCode string `json:"otpCode" binding:"required,numeric,min=4,max=10"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify otp request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	user, err := h.auth.VerifyEmail(c.Request.Context(), req.Email, req.OTPCode)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeSuccess(c, http.StatusOK, "Email verified successfully", gin.H{"user": user.Sanitize()})
}

// ResendOTP maneja POST /auth/resend-otp.
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid resend otp request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	if err := h.auth.ResendOTP(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeSuccess(c, http.StatusOK, "Verification code sent", nil)
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, email.LoginContext{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		At:        time.Now().UTC(),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeSuccess(c, http.StatusOK, "Login successful", gin.H{
		"user":         res.User.Sanitize(),
		"accessToken":  res.Tokens.AccessToken,
		"refreshToken": res.Tokens.RefreshToken,
		"expiresIn":    res.Tokens.ExpiresIn,
	})
}

// RefreshToken maneja POST /auth/refresh-token.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	access, err := h.auth.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeSuccess(c, http.StatusOK, "Token refreshed", gin.H{"accessToken": access})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeSuccess(c, http.StatusOK, "Logged out", nil)
}

// ForgotPassword maneja POST /auth/forgot-password. La respuesta es la misma
// exista o no el correo.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid forgot password request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	err := h.auth.CreatePasswordResetToken(c.Request.Context(), req.Email)
	if err != nil {
		if _, ok := domain.AsError(err); !ok {
			writeError(c, h.logger, err)
			return
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			h.logger.Warn("password reset not issued", zap.Error(err))
		}
	}
	writeSuccess(c, http.StatusOK, forgotPasswordMessage, nil)
}

// ResetPassword maneja POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required,password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset password request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeSuccess(c, http.StatusOK, "Password has been reset", nil)
}

// Me maneja GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := GetPrincipal(c)
	if !ok {
		writeError(c, h.logger, domain.ErrInvalidToken)
		return
	}
	user, err := h.auth.GetProfile(c.Request.Context(), principal.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeSuccess(c, http.StatusOK, "Profile retrieved", gin.H{"user": user.Sanitize()})
}

// UpdateMe maneja PUT /auth/me.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	principal, ok := GetPrincipal(c)
	if !ok {
		writeError(c, h.logger, domain.ErrInvalidToken)
		return
	}
	var req struct {
		FirstName *string `json:"firstName" binding:"omitempty,min=1,max=100"`
		LastName  *string `json:"lastName" binding:"omitempty,min=1,max=100"`
		Phone     *string `json:"phone" binding:"omitempty,max=32"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update profile request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), principal.UserID, domain.UserUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeSuccess(c, http.StatusOK, "Profile updated", gin.H{"user": user.Sanitize()})
}

// ChangePassword maneja PUT /auth/change-password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	principal, ok := GetPrincipal(c)
	if !ok {
		writeError(c, h.logger, domain.ErrInvalidToken)
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required,password,nefield=CurrentPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid change password request", zap.Error(err))
		writeBindError(c, err)
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, h.logger, err)
		return
	}
	writeSuccess(c, http.StatusOK, "Password changed", nil)
}

// AdminPing maneja GET /admin/ping.
func (h *AuthHandler) AdminPing(c *gin.Context) {
	principal, _ := GetPrincipal(c)
	writeSuccess(c, http.StatusOK, "pong", gin.H{"userId": principal.UserID, "role": principal.Role})
}
