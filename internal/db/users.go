package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

const userColumns = `id, email, username, full_name, phone, password_hash, user_type, is_active,
	failed_attempts, locked_until, last_login`

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u           model.User
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Phone, &u.PasswordHash,
		&u.UserType, &u.IsActive, &u.FailedAttempts, &lockedUntil, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("User not found")
	}
	if err != nil {
		return nil, err
	}
	u.LockedUntil = timePtr(lockedUntil)
	u.LastLogin = timePtr(lastLogin)
	return &u, nil
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *repository) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
}

// RecordLoginFailure bumps the failure counter and locks the account once it
// reaches maxAttempts. It returns the lock expiry when a lock was applied.
func (r *repository) RecordLoginFailure(ctx context.Context, userID int64, maxAttempts int, lockFor time.Duration) (*time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var attempts int
	err = tx.QueryRowContext(ctx, `SELECT failed_attempts FROM users WHERE id = ? FOR UPDATE`, userID).Scan(&attempts)
	if err != nil {
		return nil, err
	}
	attempts++

	var lockedUntil *time.Time
	if attempts >= maxAttempts {
		until := r.now().Add(lockFor)
		lockedUntil = &until
		attempts = 0
	}

	_, err = tx.ExecContext(ctx, `UPDATE users SET failed_attempts = ?, locked_until = ? WHERE id = ?`,
		attempts, nullTime(lockedUntil), userID)
	if err != nil {
		return nil, err
	}

	return lockedUntil, tx.Commit()
}

func (r *repository) RecordLoginSuccess(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login = ? WHERE id = ?`, at, userID)
	return err
}
