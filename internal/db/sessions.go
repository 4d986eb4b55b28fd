package db

import (
	"context"
	"time"

	"github.com/SalahElkadim/alc/internal/model"
)

type SessionRepository interface {
	// ReplaceSessions stores s as the user's session. When exclusive is set
	// every other active session of the user is deactivated in the same transaction.
	ReplaceSessions(ctx context.Context, s *model.UserSession, exclusive bool) error
	IsSessionActive(ctx context.Context, userID int64, sessionKey string) (bool, error)
	TouchSession(ctx context.Context, sessionKey string, at time.Time) error
	RekeySession(ctx context.Context, userID int64, oldKey, newKey string, at time.Time) (bool, error)
	DeactivateSession(ctx context.Context, userID int64, sessionKey string) error
	ListActiveSessions(ctx context.Context, userID int64, activeSince time.Time) ([]model.UserSession, error)
}

func (r *repository) ReplaceSessions(ctx context.Context, s *model.UserSession, exclusive bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if exclusive {
		_, err := tx.ExecContext(ctx,
			`UPDATE user_sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1`, s.UserID)
		if err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO user_sessions (user_id, session_key, device_fingerprint, ip_address, user_agent, created_at, last_activity, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		s.UserID, s.SessionKey, s.DeviceFingerprint, s.IPAddress, s.UserAgent, s.CreatedAt, s.LastActivity)
	if err != nil {
		return err
	}

	if s.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	s.IsActive = true

	return tx.Commit()
}

func (r *repository) IsSessionActive(ctx context.Context, userID int64, sessionKey string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_sessions WHERE user_id = ? AND session_key = ? AND is_active = 1`,
		userID, sessionKey).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repository) TouchSession(ctx context.Context, sessionKey string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions SET last_activity = ? WHERE session_key = ? AND is_active = 1`, at, sessionKey)
	return err
}

func (r *repository) RekeySession(ctx context.Context, userID int64, oldKey, newKey string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions SET session_key = ?, last_activity = ?
		 WHERE user_id = ? AND session_key = ? AND is_active = 1`,
		newKey, at, userID, oldKey)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *repository) DeactivateSession(ctx context.Context, userID int64, sessionKey string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = 0 WHERE user_id = ? AND session_key = ?`, userID, sessionKey)
	return err
}

func (r *repository) ListActiveSessions(ctx context.Context, userID int64, activeSince time.Time) ([]model.UserSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, session_key, device_fingerprint, ip_address, COALESCE(user_agent, ''), created_at, last_activity, is_active
		 FROM user_sessions WHERE user_id = ? AND is_active = 1 AND last_activity >= ?
		 ORDER BY last_activity DESC`,
		userID, activeSince)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.UserSession{}
	for rows.Next() {
		var s model.UserSession
		err := rows.Scan(&s.ID, &s.UserID, &s.SessionKey, &s.DeviceFingerprint, &s.IPAddress,
			&s.UserAgent, &s.CreatedAt, &s.LastActivity, &s.IsActive)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}
