package http

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-auth/internal/domain"
	"storefront-auth/internal/service"
)

const requestIDKey = "request_id"

// Pinger verifica la disponibilidad del almacenamiento.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authH *AuthHandler,
	authenticator Authenticator,
	limiter service.RateLimiter,
	health Pinger,
) *gin.Engine {
	RegisterValidators()
	r := gin.New()

	// Middlewares basicos: request id, logging, recovery y JSON content-type.
	r.Use(requestIDMiddleware(), zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", healthHandler(logger, health))

	auth := r.Group("/auth")
	if limiter != nil {
		auth.Use(rateLimitMiddleware(logger, limiter))
	}
	auth.POST("/register", authH.Register)
	auth.POST("/login", authH.Login)
	auth.POST("/logout", authH.Logout)
	auth.POST("/verify-otp", authH.VerifyOTP)
	auth.POST("/resend-otp", authH.ResendOTP)
	auth.POST("/forgot-password", authH.ForgotPassword)
	auth.POST("/reset-password", authH.ResetPassword)
	auth.POST("/refresh-token", authH.RefreshToken)

	protected := auth.Group("", AuthMiddleware(logger, authenticator))
	protected.GET("/me", authH.Me)
	protected.PUT("/me", authH.UpdateMe)
	protected.PUT("/change-password", authH.ChangePassword)

	admin := r.Group("/admin", AuthMiddleware(logger, authenticator), RequireRoles(logger, authenticator, domain.RoleAdmin))
	admin.GET("/ping", authH.AdminPing)

	return r
}

// requestIDMiddleware propaga X-Request-ID o genera uno nuevo.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

// rateLimitMiddleware limita solicitudes por IP de cliente.
func rateLimitMiddleware(logger *zap.Logger, limiter service.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := limiter.Take(c.ClientIP())
		if d.Remaining >= 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		}
		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
			logger.Warn("rate limit exceeded", zap.String("client_ip", c.ClientIP()), zap.String("path", c.FullPath()))
			writeError(c, logger, domain.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// retryAfterSeconds redondea hacia arriba; Retry-After nunca baja de 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func healthHandler(logger *zap.Logger, health Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health.Ping(ctx); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{
					Success: false,
					Message: "database unavailable",
					Code:    "UNHEALTHY",
				})
				return
			}
		}
		writeSuccess(c, http.StatusOK, "ok", nil)
	}
}
