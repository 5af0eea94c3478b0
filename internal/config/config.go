package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	JWTSecret     string        `env:"JWT_SECRET,required"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"168h"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"720h"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"storefront-api"`
	JWTAudience   string        `env:"JWT_AUDIENCE" envDefault:"storefront-clients"`

	OTPLength             int           `env:"OTP_LENGTH" envDefault:"6"`
	OTPTTL                time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPCooldown           time.Duration `env:"OTP_COOLDOWN" envDefault:"1m"`
	PasswordResetTTL      time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
	PasswordResetCooldown time.Duration `env:"PASSWORD_RESET_COOLDOWN" envDefault:"5m"`
	BcryptCost            int           `env:"BCRYPT_COST" envDefault:"12"`

	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"100"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	NotifyTransport string `env:"NOTIFY_TRANSPORT" envDefault:"smtp"`
	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser        string `env:"SMTP_USER"`
	SMTPPass        string `env:"SMTP_PASS"`
	SMTPFrom        string `env:"SMTP_FROM"`
	SMTPFromName    string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS      bool   `env:"SMTP_USE_TLS" envDefault:"false"`
	KafkaBroker     string `env:"KAFKA_BROKER"`
	KafkaTopic      string `env:"KAFKA_TOPIC" envDefault:"auth.notifications"`
	KafkaUsername   string `env:"KAFKA_USERNAME"`
	KafkaPassword   string `env:"KAFKA_PASSWORD"`
	AMQPURL         string `env:"AMQP_URL"`
	AMQPExchange    string `env:"AMQP_EXCHANGE" envDefault:"auth.notifications"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza combinaciones que dejarían al servicio en un estado inseguro.
func (c *Config) Validate() error {
	durations := map[string]time.Duration{
		"JWT_ACCESS_TTL":          c.JWTAccessTTL,
		"JWT_REFRESH_TTL":         c.JWTRefreshTTL,
		"OTP_TTL":                 c.OTPTTL,
		"PASSWORD_RESET_TTL":      c.PasswordResetTTL,
		"OTP_COOLDOWN":            c.OTPCooldown,
		"PASSWORD_RESET_COOLDOWN": c.PasswordResetCooldown,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", c.OTPLength)
	}
	switch c.NotifyTransport {
	case "smtp", "kafka", "amqp", "disabled":
	default:
		return fmt.Errorf("NOTIFY_TRANSPORT %q not supported", c.NotifyTransport)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}
