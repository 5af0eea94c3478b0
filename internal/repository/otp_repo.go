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

// OTPRepository persiste códigos de un solo uso por usuario y propósito.
type OTPRepository interface {
	// Create invalida los códigos vigentes del mismo tipo e inserta el nuevo en
	// una sola transacción. Devuelve domain.ErrTooManyRequests si ya existe un
	// código del mismo tipo creado después de notBefore.
	Create(ctx context.Context, otp domain.OTP, notBefore time.Time) (domain.OTP, error)
	ConsumeValid(ctx context.Context, userID int64, code string, otpType domain.OTPType, now time.Time) (domain.OTP, error)
	// ConsumeAndActivate consume el código de verificación y activa al usuario
	// en una transacción que bloquea su fila. Devuelve domain.ErrNotFound si
	// ningún código vigente coincide; en ese caso no cambia nada.
	ConsumeAndActivate(ctx context.Context, userID int64, code string, now time.Time) (domain.User, error)
	Latest(ctx context.Context, userID int64, otpType domain.OTPType) (domain.OTP, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type PgOTPRepository struct {
	pool *pgxpool.Pool
}

func NewPgOTPRepository(pool *pgxpool.Pool) *PgOTPRepository {
	return &PgOTPRepository{pool: pool}
}

const otpColumns = `id, user_id, code, type, expires_at, used, created_at`

func (r *PgOTPRepository) Create(ctx context.Context, otp domain.OTP, notBefore time.Time) (domain.OTP, error) {
	var created domain.OTP
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, otp.UserID); err != nil {
			return err
		}

		const recentQuery = `
			SELECT EXISTS (
				SELECT 1 FROM otps WHERE user_id = $1 AND type = $2 AND created_at > $3
			)
		`
		var recent bool
		if err := tx.QueryRow(ctx, recentQuery, otp.UserID, otp.Type, notBefore).Scan(&recent); err != nil {
			return fmt.Errorf("check otp cooldown: %w", err)
		}
		if recent {
			return domain.ErrTooManyRequests
		}

		const invalidateQuery = `UPDATE otps SET used = true WHERE user_id = $1 AND type = $2 AND used = false`
		if _, err := tx.Exec(ctx, invalidateQuery, otp.UserID, otp.Type); err != nil {
			return fmt.Errorf("invalidate otps: %w", err)
		}

		const insertQuery = `
			INSERT INTO otps (user_id, code, type, expires_at, used, created_at)
			VALUES ($1, $2, $3, $4, false, $5)
			RETURNING ` + otpColumns
		row := tx.QueryRow(ctx, insertQuery, otp.UserID, otp.Code, otp.Type, otp.ExpiresAt, otp.CreatedAt)
		var err error
		created, err = scanOTP(row)
		if err != nil {
			return fmt.Errorf("insert otp: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.OTP{}, err
	}
	return created, nil
}

const consumeOTPQuery = `
	UPDATE otps SET used = true
	WHERE id = (
		SELECT id FROM otps
		WHERE user_id = $1 AND code = $2 AND type = $3 AND used = false AND expires_at > $4
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	) AND used = false
	RETURNING ` + otpColumns

// ConsumeValid marca como usado el código vigente que coincide, de forma atómica.
func (r *PgOTPRepository) ConsumeValid(ctx context.Context, userID int64, code string, otpType domain.OTPType, now time.Time) (domain.OTP, error) {
	otp, err := scanOTP(r.pool.QueryRow(ctx, consumeOTPQuery, userID, code, otpType, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OTP{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OTP{}, fmt.Errorf("consume otp: %w", err)
	}
	return otp, nil
}

func (r *PgOTPRepository) ConsumeAndActivate(ctx context.Context, userID int64, code string, now time.Time) (domain.User, error) {
	var activated domain.User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var current domain.User
		err := tx.QueryRow(ctx,
			`SELECT status, email_verified_at FROM users WHERE id = $1 FOR UPDATE`, userID,
		).Scan(&current.Status, &current.EmailVerifiedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if err := current.VerificationBlocker(); err != nil {
			return err
		}

		_, err = scanOTP(tx.QueryRow(ctx, consumeOTPQuery, userID, code, domain.OTPTypeEmailVerification, now))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("consume otp: %w", err)
		}

		const activateQuery = `
			UPDATE users SET status = 'ACTIVE', email_verified_at = $2, updated_at = $2
			WHERE id = $1 AND status = 'PENDING_VERIFICATION'
			RETURNING ` + userColumns
		activated, err = scanUser(tx.QueryRow(ctx, activateQuery, userID, now))
		if err != nil {
			return fmt.Errorf("activate user: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return activated, nil
}

func (r *PgOTPRepository) Latest(ctx context.Context, userID int64, otpType domain.OTPType) (domain.OTP, error) {
	const query = `
		SELECT ` + otpColumns + `
		FROM otps
		WHERE user_id = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	otp, err := scanOTP(r.pool.QueryRow(ctx, query, userID, otpType))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OTP{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OTP{}, fmt.Errorf("latest otp: %w", err)
	}
	return otp, nil
}

func (r *PgOTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM otps WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired otps: %w", err)
	}
	return tag.RowsAffected(), nil
}

// lockUser serializa emisiones concurrentes para el mismo usuario.
func lockUser(ctx context.Context, tx pgx.Tx, userID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 AND status <> 'DELETED' FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func scanOTP(row pgx.Row) (domain.OTP, error) {
	var o domain.OTP
	err := row.Scan(&o.ID, &o.UserID, &o.Code, &o.Type, &o.ExpiresAt, &o.Used, &o.CreatedAt)
	return o, err
}
