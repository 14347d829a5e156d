package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) CreateToken(ctx context.Context, t *gateway.ClientToken) error {
	allowed, err := marshalJSON(t.AllowedModels)
	if err != nil {
		return err
	}
	blacklist, err := marshalJSON(t.ModelBlacklist)
	if err != nil {
		return err
	}
	ipWhite, err := marshalJSON(t.IPWhitelist)
	if err != nil {
		return err
	}
	ipBlack, err := marshalJSON(t.IPBlacklist)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO client_tokens (id, secret_hash, owner_user_id, name, allowed_models,
		 model_blacklist, max_amount, max_tokens, enabled, expires_at, created_at,
		 amount_spent, prompt_tokens_spent, completion_tokens_spent, total_tokens_spent,
		 ip_whitelist, ip_blacklist, remark, organization_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		t.ID, gateway.HashSecret(t.Secret), t.OwnerUserID, t.Name, allowed, blacklist,
		t.MaxAmount, t.MaxTokens, t.Enabled, t.ExpiresAt, t.CreatedAt,
		t.AmountSpent, t.PromptTokensSpent, t.CompletionTokensSpent, t.TotalTokensSpent,
		ipWhite, ipBlack, nullableStr(t.Remark), nullableStr(t.OrganizationID),
	)
	return err
}

const tokenColumns = `id, owner_user_id, name, allowed_models, model_blacklist, max_amount,
	max_tokens, enabled, expires_at, created_at, amount_spent, prompt_tokens_spent,
	completion_tokens_spent, total_tokens_spent, ip_whitelist, ip_blacklist, remark, organization_id`

func (s *Store) GetToken(ctx context.Context, id string) (*gateway.ClientToken, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM client_tokens WHERE id=$1`, id)
	return scanToken(row)
}

func (s *Store) GetTokenBySecret(ctx context.Context, secret string) (*gateway.ClientToken, error) {
	id := gateway.ClientTokenID(secret)
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT secret_hash FROM client_tokens WHERE id=$1`, id).Scan(&hash)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if hash != gateway.HashSecret(secret) {
		return nil, gateway.ErrUnauthorized
	}
	return s.GetToken(ctx, id)
}

func (s *Store) ListTokens(ctx context.Context, ownerUserID string, offset, limit int) ([]*gateway.ClientToken, error) {
	var rows pgx.Rows
	var err error
	if ownerUserID == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+tokenColumns+` FROM client_tokens ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+tokenColumns+` FROM client_tokens WHERE owner_user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			ownerUserID, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.ClientToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateToken(ctx context.Context, t *gateway.ClientToken) error {
	allowed, err := marshalJSON(t.AllowedModels)
	if err != nil {
		return err
	}
	blacklist, err := marshalJSON(t.ModelBlacklist)
	if err != nil {
		return err
	}
	ipWhite, err := marshalJSON(t.IPWhitelist)
	if err != nil {
		return err
	}
	ipBlack, err := marshalJSON(t.IPBlacklist)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE client_tokens SET name=$1, allowed_models=$2, model_blacklist=$3, max_amount=$4,
		 max_tokens=$5, enabled=$6, expires_at=$7, ip_whitelist=$8, ip_blacklist=$9, remark=$10,
		 organization_id=$11 WHERE id=$12`,
		t.Name, allowed, blacklist, t.MaxAmount, t.MaxTokens, t.Enabled, t.ExpiresAt,
		ipWhite, ipBlack, nullableStr(t.Remark), nullableStr(t.OrganizationID), t.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "client token")
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM client_tokens WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "client token")
}

// RecordSpend increments the token's spend counters in a single UPDATE
// (P4): Postgres's MVCC row lock on the UPDATE serializes concurrent
// increments against the same token without the caller coordinating.
func (s *Store) RecordSpend(ctx context.Context, id string, amount float64, promptTokens, completionTokens, totalTokens int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE client_tokens SET amount_spent = amount_spent + $1,
		 prompt_tokens_spent = prompt_tokens_spent + $2,
		 completion_tokens_spent = completion_tokens_spent + $3,
		 total_tokens_spent = total_tokens_spent + $4
		 WHERE id=$5`,
		amount, promptTokens, completionTokens, totalTokens, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "client token")
}

func scanToken(row pgx.Row) (*gateway.ClientToken, error) {
	var t gateway.ClientToken
	var allowed, blacklist, ipWhite, ipBlack []byte
	var remark, orgID *string

	err := row.Scan(
		&t.ID, &t.OwnerUserID, &t.Name, &allowed, &blacklist, &t.MaxAmount,
		&t.MaxTokens, &t.Enabled, &t.ExpiresAt, &t.CreatedAt, &t.AmountSpent,
		&t.PromptTokensSpent, &t.CompletionTokensSpent, &t.TotalTokensSpent,
		&ipWhite, &ipBlack, &remark, &orgID,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if remark != nil {
		t.Remark = *remark
	}
	if orgID != nil {
		t.OrganizationID = *orgID
	}
	if t.AllowedModels, err = unmarshalStringSlice(allowed); err != nil {
		return nil, err
	}
	if t.ModelBlacklist, err = unmarshalStringSlice(blacklist); err != nil {
		return nil, err
	}
	if t.IPWhitelist, err = unmarshalStringSlice(ipWhite); err != nil {
		return nil, err
	}
	if t.IPBlacklist, err = unmarshalStringSlice(ipBlack); err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
