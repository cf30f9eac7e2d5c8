package db

import (
	"context"
	"fmt"
	"time"
)

// SessionInfo is the session row joined with its operator, as needed by the
// auth middleware.
type SessionInfo struct {
	SessionID          string
	OperatorID         int64
	Username           string
	MustChangePassword bool
	LastSeenAt         time.Time
	ExpiresAt          time.Time
}

// OperatorInfo is the operator row used by login.
type OperatorInfo struct {
	OperatorID         int64
	Username           string
	PasswordHash       string
	MustChangePassword bool
	CreatedAt          time.Time
	LastLoginAt        *time.Time
}

func (p *Pool) GetSession(ctx context.Context, sessionID string) (SessionInfo, error) {
	const q = `
SELECT
	s.session_id,
	s.operator_id,
	o.username,
	o.must_change_password,
	s.last_seen_at,
	s.expires_at
FROM catalog.sessions s
JOIN catalog.operators o ON o.operator_id = s.operator_id
WHERE s.session_id = $1
`
	var info SessionInfo
	err := p.QueryRow(ctx, q, sessionID).Scan(
		&info.SessionID,
		&info.OperatorID,
		&info.Username,
		&info.MustChangePassword,
		&info.LastSeenAt,
		&info.ExpiresAt,
	)
	if err != nil {
		if err == ErrNoRows {
			return SessionInfo{}, ErrNoRows
		}
		return SessionInfo{}, fmt.Errorf("get session: %w", err)
	}
	return info, nil
}

func (p *Pool) CreateSession(ctx context.Context, sessionID string, operatorID int64, now, expiresAt time.Time) error {
	const q = `
INSERT INTO catalog.sessions (session_id, operator_id, created_at, last_seen_at, expires_at)
VALUES ($1, $2, $3, $3, $4)
`
	if _, err := p.Exec(ctx, q, sessionID, operatorID, now, expiresAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (p *Pool) TouchSession(ctx context.Context, sessionID string, now time.Time) error {
	const q = `UPDATE catalog.sessions SET last_seen_at = $2 WHERE session_id = $1`
	if _, err := p.Exec(ctx, q, sessionID, now); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (p *Pool) DeleteSession(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM catalog.sessions WHERE session_id = $1`
	if _, err := p.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (p *Pool) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM catalog.sessions WHERE expires_at <= $1`
	tag, err := p.Exec(ctx, q, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Pool) GetOperatorByUsername(ctx context.Context, username string) (OperatorInfo, error) {
	const q = `
SELECT operator_id, username, password_hash, must_change_password, created_at, last_login_at
FROM catalog.operators
WHERE username = $1
`
	var info OperatorInfo
	err := p.QueryRow(ctx, q, username).Scan(
		&info.OperatorID,
		&info.Username,
		&info.PasswordHash,
		&info.MustChangePassword,
		&info.CreatedAt,
		&info.LastLoginAt,
	)
	if err != nil {
		if err == ErrNoRows {
			return OperatorInfo{}, ErrNoRows
		}
		return OperatorInfo{}, fmt.Errorf("get operator by username: %w", err)
	}
	return info, nil
}

func (p *Pool) MarkOperatorLogin(ctx context.Context, operatorID int64, now time.Time) error {
	const q = `UPDATE catalog.operators SET last_login_at = $2 WHERE operator_id = $1`
	if _, err := p.Exec(ctx, q, operatorID, now); err != nil {
		return fmt.Errorf("mark operator login: %w", err)
	}
	return nil
}

// EnsureOperator inserts the operator when absent and reports whether an
// insert happened. Used for default-admin bootstrap.
func (p *Pool) EnsureOperator(ctx context.Context, username, passwordHash string, mustChange bool, now time.Time) (bool, error) {
	const q = `
INSERT INTO catalog.operators (username, password_hash, must_change_password, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (username) DO NOTHING
`
	tag, err := p.Exec(ctx, q, username, passwordHash, mustChange, now)
	if err != nil {
		return false, fmt.Errorf("ensure operator %q: %w", username, err)
	}
	return tag.RowsAffected() == 1, nil
}
