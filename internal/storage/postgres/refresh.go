package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) CreateRefreshToken(ctx context.Context, t *gateway.RefreshToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at,
		 revoked_at, replaced_by_id, last_used_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt,
		t.RevokedAt, nullableStr(t.ReplacedByID), t.LastUsedAt,
	)
	return err
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*gateway.RefreshToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, replaced_by_id, last_used_at
		 FROM refresh_tokens WHERE token_hash=$1`, hash)
	return scanRefreshToken(row)
}

// RotateRefreshToken revokes the presented token and inserts its
// replacement in one transaction (P6): if the process crashes between the
// two statements, the old token is never left both "unrevoked" and
// "superseded" -- either both writes land or neither does.
func (s *Store) RotateRefreshToken(ctx context.Context, oldHash string, next *gateway.RefreshToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at=$1, replaced_by_id=$2 WHERE token_hash=$3 AND revoked_at IS NULL`,
		next.CreatedAt, next.ID, oldHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return gateway.ErrRefreshReused
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at,
		 revoked_at, replaced_by_id, last_used_at) VALUES ($1, $2, $3, $4, $5, NULL, NULL, NULL)`,
		next.ID, next.UserID, next.TokenHash, next.CreatedAt, next.ExpiresAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at=$1 WHERE id=$2 AND revoked_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "refresh token")
}

func scanRefreshToken(row pgx.Row) (*gateway.RefreshToken, error) {
	var t gateway.RefreshToken
	var replacedByID *string
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt,
		&t.RevokedAt, &replacedByID, &t.LastUsedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if replacedByID != nil {
		t.ReplacedByID = *replacedByID
	}
	return &t, nil
}
