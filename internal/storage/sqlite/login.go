package sqlite

import (
	"context"
	"database/sql"
	"time"

	gateway "github.com/eugener/aigateway/internal"
)

// --- Admin public keys ---

func (s *Store) CreateAdminKey(ctx context.Context, k *gateway.AdminPublicKey) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO admin_public_keys (fingerprint, public_key, comment, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		k.Fingerprint, k.PublicKey, nullStr(k.Comment), boolToInt(k.Enabled), timeToStr(k.CreatedAt),
	)
	return err
}

func (s *Store) GetAdminKey(ctx context.Context, fingerprint string) (*gateway.AdminPublicKey, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT fingerprint, public_key, comment, enabled, created_at, last_used_at
		 FROM admin_public_keys WHERE fingerprint=?`, fingerprint)
	return scanAdminKey(row)
}

func (s *Store) ListAdminKeys(ctx context.Context) ([]*gateway.AdminPublicKey, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT fingerprint, public_key, comment, enabled, created_at, last_used_at
		 FROM admin_public_keys ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.AdminPublicKey
	for rows.Next() {
		k, err := scanAdminKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) TouchAdminKeyUsed(ctx context.Context, fingerprint string, at time.Time) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE admin_public_keys SET last_used_at=? WHERE fingerprint=?`, timeToStr(at), fingerprint)
	return err
}

// DeleteAdminKey refuses to remove the last enabled key (safe-delete
// invariant): locking the admin fabric out entirely has no recovery path
// short of editing the database file by hand, so the store itself enforces
// this rather than trusting every caller to check first.
func (s *Store) DeleteAdminKey(ctx context.Context, fingerprint string) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var enabled int
	err = tx.QueryRowContext(ctx, `SELECT enabled FROM admin_public_keys WHERE fingerprint=?`, fingerprint).Scan(&enabled)
	if err != nil {
		return notFoundErr(err)
	}

	if enabled != 0 {
		var otherEnabled int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM admin_public_keys WHERE enabled=1 AND fingerprint != ?`, fingerprint,
		).Scan(&otherEnabled)
		if err != nil {
			return err
		}
		if otherEnabled == 0 {
			return gateway.ErrConflict
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM admin_public_keys WHERE fingerprint=?`, fingerprint)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(result, "admin key"); err != nil {
		return err
	}
	return tx.Commit()
}

func scanAdminKey(sc scanner) (*gateway.AdminPublicKey, error) {
	var k gateway.AdminPublicKey
	var comment sql.NullString
	var enabled int
	var createdAt string
	var lastUsedAt sql.NullString

	err := sc.Scan(&k.Fingerprint, &k.PublicKey, &comment, &enabled, &createdAt, &lastUsedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	k.Comment = comment.String
	k.Enabled = enabled != 0
	k.CreatedAt = mustParseTime(createdAt)
	k.LastUsedAt = parseTime(lastUsedAt)
	return &k, nil
}

// --- TUI challenges ---

func (s *Store) CreateChallenge(ctx context.Context, c *gateway.TuiChallenge) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO tui_challenges (challenge_id, fingerprint, nonce, expires_at, consumed)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ChallengeID, c.Fingerprint, c.Nonce, timeToStr(c.ExpiresAt), boolToInt(c.Consumed),
	)
	return err
}

func (s *Store) GetChallenge(ctx context.Context, challengeID string) (*gateway.TuiChallenge, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT challenge_id, fingerprint, nonce, expires_at, consumed
		 FROM tui_challenges WHERE challenge_id=?`, challengeID)
	var c gateway.TuiChallenge
	var expiresAt string
	var consumed int
	if err := row.Scan(&c.ChallengeID, &c.Fingerprint, &c.Nonce, &expiresAt, &consumed); err != nil {
		return nil, notFoundErr(err)
	}
	c.ExpiresAt = mustParseTime(expiresAt)
	c.Consumed = consumed != 0
	return &c, nil
}

// ConsumeChallenge marks a challenge used iff it wasn't already, so a
// replayed verify request against the same challenge id fails the second
// time even if both race in.
func (s *Store) ConsumeChallenge(ctx context.Context, challengeID string) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE tui_challenges SET consumed=1 WHERE challenge_id=? AND consumed=0`, challengeID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gateway.ErrChallengeExpired
	}
	return nil
}

// --- TUI sessions ---

func (s *Store) CreateTuiSession(ctx context.Context, sess *gateway.TuiSession) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO tui_sessions (session_id, fingerprint, issued_at, expires_at, revoked, last_code_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.Fingerprint, timeToStr(sess.IssuedAt), timeToStr(sess.ExpiresAt),
		boolToInt(sess.Revoked), nullTimeToStr(sess.LastCodeAt),
	)
	return err
}

func (s *Store) GetTuiSession(ctx context.Context, sessionID string) (*gateway.TuiSession, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT session_id, fingerprint, issued_at, expires_at, revoked, last_code_at
		 FROM tui_sessions WHERE session_id=?`, sessionID)
	var sess gateway.TuiSession
	var issuedAt, expiresAt string
	var revoked int
	var lastCodeAt sql.NullString
	err := row.Scan(&sess.SessionID, &sess.Fingerprint, &issuedAt, &expiresAt, &revoked, &lastCodeAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	sess.IssuedAt = mustParseTime(issuedAt)
	sess.ExpiresAt = mustParseTime(expiresAt)
	sess.Revoked = revoked != 0
	sess.LastCodeAt = parseTime(lastCodeAt)
	return &sess, nil
}

func (s *Store) RevokeTuiSession(ctx context.Context, sessionID string) error {
	result, err := s.write.ExecContext(ctx, `UPDATE tui_sessions SET revoked=1 WHERE session_id=?`, sessionID)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "tui session")
}

// --- Login codes ---

func (s *Store) CreateLoginCode(ctx context.Context, c *gateway.LoginCode) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO login_codes (hash, tui_session_id, fingerprint, created_at, expires_at,
		 max_uses, uses, disabled, hint) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Hash, c.TuiSessionID, c.Fingerprint, timeToStr(c.CreatedAt), timeToStr(c.ExpiresAt),
		c.MaxUses, c.Uses, boolToInt(c.Disabled), nullStr(c.Hint),
	)
	return err
}

func (s *Store) GetLoginCode(ctx context.Context, hash string) (*gateway.LoginCode, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT hash, tui_session_id, fingerprint, created_at, expires_at, max_uses, uses, disabled, hint
		 FROM login_codes WHERE hash=?`, hash)
	return scanLoginCode(row)
}

// RedeemLoginCode is the single statement that makes redemption atomic
// (P5): the UPDATE's WHERE clause re-checks uses < max_uses, disabled=0,
// and expiry in the same row-locked step as the increment, so two
// concurrent redemptions of a max_uses=1 code can never both succeed.
func (s *Store) RedeemLoginCode(ctx context.Context, hash string, now time.Time) (*gateway.LoginCode, error) {
	result, err := s.write.ExecContext(ctx,
		`UPDATE login_codes SET uses = uses + 1
		 WHERE hash=? AND disabled=0 AND uses < max_uses AND expires_at > ?`,
		hash, timeToStr(now),
	)
	if err != nil {
		return nil, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, gateway.ErrCodeInvalid
	}
	return s.GetLoginCode(ctx, hash)
}

func scanLoginCode(sc scanner) (*gateway.LoginCode, error) {
	var c gateway.LoginCode
	var createdAt, expiresAt string
	var disabled int
	var hint sql.NullString

	err := sc.Scan(&c.Hash, &c.TuiSessionID, &c.Fingerprint, &createdAt, &expiresAt,
		&c.MaxUses, &c.Uses, &disabled, &hint)
	if err != nil {
		return nil, notFoundErr(err)
	}
	c.CreatedAt = mustParseTime(createdAt)
	c.ExpiresAt = mustParseTime(expiresAt)
	c.Disabled = disabled != 0
	c.Hint = hint.String
	return &c, nil
}

// --- Web sessions ---

func (s *Store) CreateWebSession(ctx context.Context, sess *gateway.WebSession) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO web_sessions (session_id, fingerprint, user_id, created_at, expires_at, revoked, issued_by_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, nullStr(sess.Fingerprint), nullStr(sess.UserID), timeToStr(sess.CreatedAt),
		timeToStr(sess.ExpiresAt), boolToInt(sess.Revoked), nullStr(sess.IssuedByCode),
	)
	return err
}

func (s *Store) GetWebSession(ctx context.Context, sessionID string) (*gateway.WebSession, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT session_id, fingerprint, user_id, created_at, expires_at, revoked, issued_by_code
		 FROM web_sessions WHERE session_id=?`, sessionID)
	var sess gateway.WebSession
	var fingerprint, userID, issuedByCode sql.NullString
	var createdAt, expiresAt string
	var revoked int
	err := row.Scan(&sess.SessionID, &fingerprint, &userID, &createdAt, &expiresAt, &revoked, &issuedByCode)
	if err != nil {
		return nil, notFoundErr(err)
	}
	sess.Fingerprint = fingerprint.String
	sess.UserID = userID.String
	sess.CreatedAt = mustParseTime(createdAt)
	sess.ExpiresAt = mustParseTime(expiresAt)
	sess.Revoked = revoked != 0
	sess.IssuedByCode = issuedByCode.String
	return &sess, nil
}

// RevokeWebSession revokes the session itself only -- it deliberately does
// not cascade to disable the LoginCode that minted it, since one code with
// max_uses > 1 can mint several independent sessions.
func (s *Store) RevokeWebSession(ctx context.Context, sessionID string) error {
	result, err := s.write.ExecContext(ctx, `UPDATE web_sessions SET revoked=1 WHERE session_id=?`, sessionID)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "web session")
}
