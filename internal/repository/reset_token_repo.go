package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-auth/internal/db"
	"storefront-auth/internal/domain"
)

// PasswordResetRepository persiste tokens de restablecimiento de contraseña.
type PasswordResetRepository interface {
	Create(ctx context.Context, token domain.PasswordResetToken, notBefore time.Time) error
	// ConsumeAndSetPassword valida el token, reemplaza el hash y quema todos los
	// tokens pendientes del usuario en una sola transacción.
	ConsumeAndSetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error)
}

type PgPasswordResetRepository struct {
	pool *pgxpool.Pool
}

func NewPgPasswordResetRepository(pool *pgxpool.Pool) *PgPasswordResetRepository {
	return &PgPasswordResetRepository{pool: pool}
}

func (r *PgPasswordResetRepository) Create(ctx context.Context, token domain.PasswordResetToken, notBefore time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, token.UserID); err != nil {
			return err
		}

		var recent bool
		const recentQuery = `SELECT EXISTS (SELECT 1 FROM password_reset_tokens WHERE user_id = $1 AND created_at > $2)`
		if err := tx.QueryRow(ctx, recentQuery, token.UserID, notBefore).Scan(&recent); err != nil {
			return fmt.Errorf("check reset cooldown: %w", err)
		}
		if recent {
			return domain.ErrTooManyRequests
		}

		if _, err := tx.Exec(ctx, `UPDATE password_reset_tokens SET used = true WHERE user_id = $1 AND used = false`, token.UserID); err != nil {
			return fmt.Errorf("invalidate reset tokens: %w", err)
		}

		const insertQuery = `
			INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, used, created_at)
			VALUES ($1, $2, $3, false, $4)
		`
		if _, err := tx.Exec(ctx, insertQuery, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt); err != nil {
			return fmt.Errorf("insert reset token: %w", err)
		}
		return nil
	})
}

func (r *PgPasswordResetRepository) ConsumeAndSetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error) {
	var userID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const findQuery = `
			SELECT user_id FROM password_reset_tokens
			WHERE token_hash = $1 AND used = false AND expires_at > $2
			FOR UPDATE
		`
		err := tx.QueryRow(ctx, findQuery, tokenHash, now).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrInvalidOrExpiredToken
		}
		if err != nil {
			return fmt.Errorf("find reset token: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE users SET password_hash = $2, updated_at = $3
			WHERE id = $1 AND status <> 'DELETED'
		`, userID, passwordHash, now)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrInvalidOrExpiredToken
		}

		if _, err := tx.Exec(ctx, `UPDATE password_reset_tokens SET used = true WHERE user_id = $1 AND used = false`, userID); err != nil {
			return fmt.Errorf("invalidate reset tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}
