package config

import (
	"os"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		JWTAccessTTL:          time.Hour,
		JWTRefreshTTL:         24 * time.Hour,
		OTPLength:             6,
		OTPTTL:                10 * time.Minute,
		OTPCooldown:           time.Minute,
		PasswordResetTTL:      time.Hour,
		PasswordResetCooldown: 5 * time.Minute,
		NotifyTransport:       "smtp",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"kafka transport", func(c *Config) { c.NotifyTransport = "kafka" }, false},
		{"unknown transport", func(c *Config) { c.NotifyTransport = "sms" }, true},
		{"zero access ttl", func(c *Config) { c.JWTAccessTTL = 0 }, true},
		{"negative cooldown", func(c *Config) { c.OTPCooldown = -time.Second }, true},
		{"short otp", func(c *Config) { c.OTPLength = 3 }, true},
		{"long otp", func(c *Config) { c.OTPLength = 11 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/shop")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("APP_ENV", "production")
	t.Setenv("NOTIFY_TRANSPORT", "smtp")
	t.Setenv("JWT_ACCESS_TTL", "168h")
	t.Setenv("OTP_LENGTH", "6")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OTPTTL != 5*time.Minute || cfg.JWTAccessTTL != 168*time.Hour || cfg.OTPLength != 6 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.IsDevelopment() {
		t.Fatalf("expected production default")
	}
}

func TestLoadConfig_RequiresSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/shop")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}
