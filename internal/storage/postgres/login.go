package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	gateway "github.com/eugener/aigateway/internal"
)

// --- Admin public keys ---

func (s *Store) CreateAdminKey(ctx context.Context, k *gateway.AdminPublicKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO admin_public_keys (fingerprint, public_key, comment, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		k.Fingerprint, k.PublicKey, nullableStr(k.Comment), k.Enabled, k.CreatedAt,
	)
	return err
}

func (s *Store) GetAdminKey(ctx context.Context, fingerprint string) (*gateway.AdminPublicKey, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT fingerprint, public_key, comment, enabled, created_at, last_used_at
		 FROM admin_public_keys WHERE fingerprint=$1`, fingerprint)
	return scanAdminKey(row)
}

func (s *Store) ListAdminKeys(ctx context.Context) ([]*gateway.AdminPublicKey, error) {
	rows, err := s.pool.Query(ctx,
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
	_, err := s.pool.Exec(ctx, `UPDATE admin_public_keys SET last_used_at=$1 WHERE fingerprint=$2`, at, fingerprint)
	return err
}

// DeleteAdminKey enforces the same safe-delete invariant as storage/sqlite,
// inside a single transaction so the enabled-count check and the delete
// can't race against a concurrent disable/enable.
func (s *Store) DeleteAdminKey(ctx context.Context, fingerprint string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var enabled bool
	err = tx.QueryRow(ctx, `SELECT enabled FROM admin_public_keys WHERE fingerprint=$1 FOR UPDATE`, fingerprint).Scan(&enabled)
	if err != nil {
		return notFoundErr(err)
	}

	if enabled {
		var otherEnabled int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM admin_public_keys WHERE enabled=TRUE AND fingerprint != $1`, fingerprint,
		).Scan(&otherEnabled)
		if err != nil {
			return err
		}
		if otherEnabled == 0 {
			return gateway.ErrConflict
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM admin_public_keys WHERE fingerprint=$1`, fingerprint)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(tag.RowsAffected(), "admin key"); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanAdminKey(row pgx.Row) (*gateway.AdminPublicKey, error) {
	var k gateway.AdminPublicKey
	var comment *string
	err := row.Scan(&k.Fingerprint, &k.PublicKey, &comment, &k.Enabled, &k.CreatedAt, &k.LastUsedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if comment != nil {
		k.Comment = *comment
	}
	return &k, nil
}

// --- TUI challenges ---

func (s *Store) CreateChallenge(ctx context.Context, c *gateway.TuiChallenge) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tui_challenges (challenge_id, fingerprint, nonce, expires_at, consumed)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ChallengeID, c.Fingerprint, c.Nonce, c.ExpiresAt, c.Consumed,
	)
	return err
}

func (s *Store) GetChallenge(ctx context.Context, challengeID string) (*gateway.TuiChallenge, error) {
	var c gateway.TuiChallenge
	err := s.pool.QueryRow(ctx,
		`SELECT challenge_id, fingerprint, nonce, expires_at, consumed
		 FROM tui_challenges WHERE challenge_id=$1`, challengeID,
	).Scan(&c.ChallengeID, &c.Fingerprint, &c.Nonce, &c.ExpiresAt, &c.Consumed)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return &c, nil
}

func (s *Store) ConsumeChallenge(ctx context.Context, challengeID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tui_challenges SET consumed=TRUE WHERE challenge_id=$1 AND consumed=FALSE`, challengeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return gateway.ErrChallengeExpired
	}
	return nil
}

// --- TUI sessions ---

func (s *Store) CreateTuiSession(ctx context.Context, sess *gateway.TuiSession) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tui_sessions (session_id, fingerprint, issued_at, expires_at, revoked, last_code_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.SessionID, sess.Fingerprint, sess.IssuedAt, sess.ExpiresAt, sess.Revoked, sess.LastCodeAt,
	)
	return err
}

func (s *Store) GetTuiSession(ctx context.Context, sessionID string) (*gateway.TuiSession, error) {
	var sess gateway.TuiSession
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, fingerprint, issued_at, expires_at, revoked, last_code_at
		 FROM tui_sessions WHERE session_id=$1`, sessionID,
	).Scan(&sess.SessionID, &sess.Fingerprint, &sess.IssuedAt, &sess.ExpiresAt, &sess.Revoked, &sess.LastCodeAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return &sess, nil
}

func (s *Store) RevokeTuiSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tui_sessions SET revoked=TRUE WHERE session_id=$1`, sessionID)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "tui session")
}

// --- Login codes ---

func (s *Store) CreateLoginCode(ctx context.Context, c *gateway.LoginCode) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO login_codes (hash, tui_session_id, fingerprint, created_at, expires_at,
		 max_uses, uses, disabled, hint) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.Hash, c.TuiSessionID, c.Fingerprint, c.CreatedAt, c.ExpiresAt, c.MaxUses, c.Uses,
		c.Disabled, nullableStr(c.Hint),
	)
	return err
}

func (s *Store) GetLoginCode(ctx context.Context, hash string) (*gateway.LoginCode, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT hash, tui_session_id, fingerprint, created_at, expires_at, max_uses, uses, disabled, hint
		 FROM login_codes WHERE hash=$1`, hash)
	return scanLoginCode(row)
}

// RedeemLoginCode mirrors storage/sqlite's single conditional UPDATE (P5):
// Postgres's row lock on the matched row makes two concurrent redemptions
// of a max_uses=1 code serialize, and only the first sees RowsAffected=1.
func (s *Store) RedeemLoginCode(ctx context.Context, hash string, now time.Time) (*gateway.LoginCode, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE login_codes SET uses = uses + 1
		 WHERE hash=$1 AND disabled=FALSE AND uses < max_uses AND expires_at > $2`,
		hash, now,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, gateway.ErrCodeInvalid
	}
	return s.GetLoginCode(ctx, hash)
}

func scanLoginCode(row pgx.Row) (*gateway.LoginCode, error) {
	var c gateway.LoginCode
	var hint *string
	err := row.Scan(&c.Hash, &c.TuiSessionID, &c.Fingerprint, &c.CreatedAt, &c.ExpiresAt,
		&c.MaxUses, &c.Uses, &c.Disabled, &hint)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if hint != nil {
		c.Hint = *hint
	}
	return &c, nil
}

// --- Web sessions ---

func (s *Store) CreateWebSession(ctx context.Context, sess *gateway.WebSession) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO web_sessions (session_id, fingerprint, user_id, created_at, expires_at, revoked, issued_by_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.SessionID, nullableStr(sess.Fingerprint), nullableStr(sess.UserID), sess.CreatedAt,
		sess.ExpiresAt, sess.Revoked, nullableStr(sess.IssuedByCode),
	)
	return err
}

func (s *Store) GetWebSession(ctx context.Context, sessionID string) (*gateway.WebSession, error) {
	var sess gateway.WebSession
	var fingerprint, userID, issuedByCode *string
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, fingerprint, user_id, created_at, expires_at, revoked, issued_by_code
		 FROM web_sessions WHERE session_id=$1`, sessionID,
	).Scan(&sess.SessionID, &fingerprint, &userID, &sess.CreatedAt, &sess.ExpiresAt, &sess.Revoked, &issuedByCode)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if fingerprint != nil {
		sess.Fingerprint = *fingerprint
	}
	if userID != nil {
		sess.UserID = *userID
	}
	if issuedByCode != nil {
		sess.IssuedByCode = *issuedByCode
	}
	return &sess, nil
}

// RevokeWebSession applies the same non-cascading semantics as
// storage/sqlite -- see DESIGN.md's Open Question decision.
func (s *Store) RevokeWebSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE web_sessions SET revoked=TRUE WHERE session_id=$1`, sessionID)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "web session")
}
