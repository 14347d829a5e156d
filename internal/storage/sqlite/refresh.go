package sqlite

import (
	"context"
	"database/sql"
	"time"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) CreateRefreshToken(ctx context.Context, t *gateway.RefreshToken) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at,
		 revoked_at, replaced_by_id, last_used_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, timeToStr(t.CreatedAt), timeToStr(t.ExpiresAt),
		nullTimeToStr(t.RevokedAt), nullStr(t.ReplacedByID), nullTimeToStr(t.LastUsedAt),
	)
	return err
}

func (s *Store) GetRefreshTokenByHash(ctx context.Context, hash string) (*gateway.RefreshToken, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, replaced_by_id, last_used_at
		 FROM refresh_tokens WHERE token_hash=?`, hash)
	return scanRefreshToken(row)
}

// RotateRefreshToken revokes the presented token and inserts its
// replacement in one transaction (P6): if the process crashes between the
// two statements, the old token is never left both "unrevoked" and
// "superseded" -- either both writes land or neither does.
func (s *Store) RotateRefreshToken(ctx context.Context, oldHash string, next *gateway.RefreshToken) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at=?, replaced_by_id=? WHERE token_hash=? AND revoked_at IS NULL`,
		timeToStr(next.CreatedAt), next.ID, oldHash,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gateway.ErrRefreshReused
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at,
		 revoked_at, replaced_by_id, last_used_at) VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL)`,
		next.ID, next.UserID, next.TokenHash, timeToStr(next.CreatedAt), timeToStr(next.ExpiresAt),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at=? WHERE id=? AND revoked_at IS NULL`,
		timeToStr(time.Now().UTC()), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "refresh token")
}

func scanRefreshToken(sc scanner) (*gateway.RefreshToken, error) {
	var t gateway.RefreshToken
	var createdAt, expiresAt string
	var revokedAt, lastUsedAt sql.NullString
	var replacedByID sql.NullString

	err := sc.Scan(&t.ID, &t.UserID, &t.TokenHash, &createdAt, &expiresAt, &revokedAt, &replacedByID, &lastUsedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	t.CreatedAt = mustParseTime(createdAt)
	t.ExpiresAt = mustParseTime(expiresAt)
	t.RevokedAt = parseTime(revokedAt)
	t.ReplacedByID = replacedByID.String
	t.LastUsedAt = parseTime(lastUsedAt)
	return &t, nil
}
