package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-auth/internal/config"
	"storefront-auth/internal/db"
	"storefront-auth/internal/email"
	apihttp "storefront-auth/internal/http"
	"storefront-auth/internal/repository"
	"storefront-auth/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	emailSender, closeSender := buildSender(cfg, logger)
	defer closeSender()

	var (
		limiter     service.RateLimiter
		tokenStore  service.RefreshTokenStore
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory stores", zap.Error(err))
		} else {
			limiter = service.NewRedisRateLimiter(redisClient, "rl:auth:", cfg.RateLimitWindow, cfg.RateLimitMax)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}
	if limiter == nil {
		limiter = service.NewMemoryRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	}

	userRepo := repository.NewPgUserRepository(pool)
	otpRepo := repository.NewPgOTPRepository(pool)
	resetRepo := repository.NewPgPasswordResetRepository(pool)

	jwtSvc := service.NewJWTService(service.JWTConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.JWTAccessTTL,
		RefreshTTL: cfg.JWTRefreshTTL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
	}, tokenStore)
	otpSvc := service.NewOTPService(logger, otpRepo, emailSender, service.OTPConfig{
		Length:   cfg.OTPLength,
		TTL:      cfg.OTPTTL,
		Cooldown: cfg.OTPCooldown,
	})
	authSvc := service.NewAuthService(
		logger,
		userRepo,
		resetRepo,
		otpSvc,
		jwtSvc,
		service.NewPasswordHasher(cfg.BcryptCost),
		emailSender,
		service.AuthConfig{
			ResetTTL:      cfg.PasswordResetTTL,
			ResetCooldown: cfg.PasswordResetCooldown,
		},
	)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	authHandler := apihttp.NewAuthHandler(logger, authSvc)
	router := apihttp.NewRouter(logger, authHandler, authSvc, limiter, pool)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("notify_transport", cfg.NotifyTransport))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}

// buildSender elige el transporte de notificaciones según NOTIFY_TRANSPORT.
func buildSender(cfg *config.Config, logger *zap.Logger) (email.Sender, func()) {
	noop := func() {}
	switch cfg.NotifyTransport {
	case "smtp":
		if cfg.SMTPHost == "" {
			logger.Warn("smtp host not configured, notifications disabled")
			return email.NewDisabledSender("email sender not configured"), noop
		}
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
			return email.NewDisabledSender("email sender not configured"), noop
		}
		return sender, noop
	case "kafka":
		sender, pub, err := email.NewKafkaSender(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaUsername, cfg.KafkaPassword)
		if err != nil {
			logger.Fatal("kafka sender init failed", zap.Error(err))
		}
		return sender, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("kafka writer close", zap.Error(err))
			}
		}
	case "amqp":
		sender, pub, err := email.NewAMQPSender(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal("amqp sender init failed", zap.Error(err))
		}
		return sender, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("amqp connection close", zap.Error(err))
			}
		}
	default:
		logger.Warn("notifications disabled")
		return email.NewDisabledSender("notifications disabled"), noop
	}
}
