package sqlite

import (
	"context"
	"database/sql"
	"time"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) CreatePasswordResetToken(ctx context.Context, t *gateway.PasswordResetToken) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token_hash, created_at, expires_at, used_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, timeToStr(t.CreatedAt), timeToStr(t.ExpiresAt), nullTimeToStr(t.UsedAt),
	)
	return err
}

func (s *Store) GetPasswordResetTokenByHash(ctx context.Context, hash string) (*gateway.PasswordResetToken, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, used_at
		 FROM password_reset_tokens WHERE token_hash=?`, hash)
	var t gateway.PasswordResetToken
	var createdAt, expiresAt string
	var usedAt sql.NullString
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &createdAt, &expiresAt, &usedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	t.CreatedAt = mustParseTime(createdAt)
	t.ExpiresAt = mustParseTime(expiresAt)
	t.UsedAt = parseTime(usedAt)
	return &t, nil
}

// ConsumePasswordResetToken marks a token used iff it hasn't been already,
// so the forgot-password flow is single-use even under concurrent submits.
func (s *Store) ConsumePasswordResetToken(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used_at=? WHERE id=? AND used_at IS NULL`,
		timeToStr(time.Now().UTC()), id,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gateway.ErrConflict
	}
	return nil
}
