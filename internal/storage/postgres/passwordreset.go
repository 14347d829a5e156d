package postgres

import (
	"context"
	"time"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) CreatePasswordResetToken(ctx context.Context, t *gateway.PasswordResetToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token_hash, created_at, expires_at, used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt, t.UsedAt,
	)
	return err
}

func (s *Store) GetPasswordResetTokenByHash(ctx context.Context, hash string) (*gateway.PasswordResetToken, error) {
	var t gateway.PasswordResetToken
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, used_at
		 FROM password_reset_tokens WHERE token_hash=$1`, hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return &t, nil
}

// ConsumePasswordResetToken marks a token used iff it hasn't been already,
// so the forgot-password flow is single-use even under concurrent submits.
func (s *Store) ConsumePasswordResetToken(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE password_reset_tokens SET used_at=$1 WHERE id=$2 AND used_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return gateway.ErrConflict
	}
	return nil
}
