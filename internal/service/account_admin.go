package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront-auth/internal/domain"
	"storefront-auth/internal/repository"
)

// AccountAdmin aplica transiciones de estado administrativas.
type AccountAdmin struct {
	logger *zap.Logger
	users  repository.UserRepository
}

func NewAccountAdmin(logger *zap.Logger, users repository.UserRepository) *AccountAdmin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountAdmin{logger: logger, users: users}
}

func (a *AccountAdmin) Suspend(ctx context.Context, emailAddr string) (domain.User, error) {
	user, err := a.find(ctx, emailAddr)
	if err != nil {
		return domain.User{}, err
	}
	if user.Status == domain.StatusSuspended {
		return user, nil
	}
	if err := a.users.UpdateStatus(ctx, user.ID, domain.StatusSuspended); err != nil {
		return domain.User{}, err
	}
	user.Status = domain.StatusSuspended
	a.logger.Info("user suspended", zap.Int64("user_id", user.ID))
	return user, nil
}

// Reactivate devuelve una cuenta suspendida a ACTIVE, o a PENDING_VERIFICATION
// si nunca verificó su correo.
func (a *AccountAdmin) Reactivate(ctx context.Context, emailAddr string) (domain.User, error) {
	user, err := a.find(ctx, emailAddr)
	if err != nil {
		return domain.User{}, err
	}
	if user.Status != domain.StatusSuspended {
		return domain.User{}, fmt.Errorf("%w: user is %s, not SUSPENDED", domain.ErrValidation, user.Status)
	}
	next := domain.StatusActive
	if user.EmailVerifiedAt == nil {
		next = domain.StatusPendingVerification
	}
	if err := a.users.UpdateStatus(ctx, user.ID, next); err != nil {
		return domain.User{}, err
	}
	user.Status = next
	a.logger.Info("user reactivated", zap.Int64("user_id", user.ID), zap.String("status", string(next)))
	return user, nil
}

// Delete marca la cuenta como DELETED. Es un estado terminal.
func (a *AccountAdmin) Delete(ctx context.Context, emailAddr string) error {
	user, err := a.find(ctx, emailAddr)
	if err != nil {
		return err
	}
	if err := a.users.SoftDelete(ctx, user.ID); err != nil {
		return err
	}
	a.logger.Info("user deleted", zap.Int64("user_id", user.ID))
	return nil
}

func (a *AccountAdmin) find(ctx context.Context, emailAddr string) (domain.User, error) {
	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return domain.User{}, domain.ErrValidation
	}
	return a.users.GetByEmail(ctx, emailAddr)
}
