package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storefront-auth/internal/config"
	"storefront-auth/internal/db"
	"storefront-auth/internal/repository"
	"storefront-auth/internal/service"
)

// ctlConfig carga solo lo que necesita la CLI; no exige JWT_SECRET.
type ctlConfig struct {
	DatabaseURL string        `env:"DATABASE_URL,required"`
	DBMaxConns  int32         `env:"DB_MAX_CONNS" envDefault:"2"`
	Timeout     time.Duration `env:"AUTHCTL_TIMEOUT" envDefault:"30s"`
}

type app struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
	cfg    ctlConfig
}

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	a := &app{logger: logger}
	root := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator tool for the storefront auth service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.connect(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.pool != nil {
				a.pool.Close()
			}
		},
	}
	root.AddCommand(
		a.migrateCmd(),
		a.cleanupOTPsCmd(),
		a.suspendCmd(),
		a.reactivateCmd(),
		a.deleteCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func (a *app) connect(ctx context.Context) error {
	if err := env.Parse(&a.cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	pool, err := db.NewPool(ctx, &config.Config{DatabaseURL: a.cfg.DatabaseURL, DBMaxConns: a.cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	if err := db.Ping(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("db ping: %w", err)
	}
	a.pool = pool
	return nil
}

func (a *app) withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.cfg.Timeout)
}

func (a *app) admin() *service.AccountAdmin {
	return service.NewAccountAdmin(a.logger, repository.NewPgUserRepository(a.pool))
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if err := db.Migrate(ctx, a.pool); err != nil {
				return err
			}
			a.logger.Info("schema applied")
			return nil
		},
	}
}

func (a *app) cleanupOTPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-otps",
		Short: "Delete expired one-time codes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			otpSvc := service.NewOTPService(a.logger, repository.NewPgOTPRepository(a.pool), nil, service.OTPConfig{})
			n, err := otpSvc.CleanupExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired codes\n", n)
			return nil
		},
	}
}

func (a *app) suspendCmd() *cobra.Command {
	var emailAddr string
	cmd := &cobra.Command{
		Use:   "suspend-user",
		Short: "Suspend an account; login is rejected until reactivated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			user, err := a.admin().Suspend(ctx, emailAddr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d is now %s\n", user.ID, user.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&emailAddr, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) reactivateCmd() *cobra.Command {
	var emailAddr string
	cmd := &cobra.Command{
		Use:   "reactivate-user",
		Short: "Lift a suspension",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			user, err := a.admin().Reactivate(ctx, emailAddr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d is now %s\n", user.ID, user.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&emailAddr, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var emailAddr string
	cmd := &cobra.Command{
		Use:   "delete-user",
		Short: "Soft-delete an account (terminal)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.withTimeout(cmd)
			defer cancel()
			if err := a.admin().Delete(ctx, emailAddr); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s deleted\n", emailAddr)
			return nil
		},
	}
	cmd.Flags().StringVar(&emailAddr, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
