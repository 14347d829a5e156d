package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/eugener/aigateway/internal"
)

// CreateToken inserts a new client token. The secret itself is never
// persisted -- only its SHA-256 hash (gateway.HashSecret), keyed by the
// deterministic id (P1).
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
	_, err = s.write.ExecContext(ctx,
		`INSERT INTO client_tokens (id, secret_hash, owner_user_id, name, allowed_models,
		 model_blacklist, max_amount, max_tokens, enabled, expires_at, created_at,
		 amount_spent, prompt_tokens_spent, completion_tokens_spent, total_tokens_spent,
		 ip_whitelist, ip_blacklist, remark, organization_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, gateway.HashSecret(t.Secret), t.OwnerUserID, t.Name, allowed,
		blacklist, nullFloat(t.MaxAmount), nullInt64(t.MaxTokens), boolToInt(t.Enabled),
		nullTimeToStr(t.ExpiresAt), timeToStr(t.CreatedAt),
		t.AmountSpent, t.PromptTokensSpent, t.CompletionTokensSpent, t.TotalTokensSpent,
		ipWhite, ipBlack, nullStr(t.Remark), nullStr(t.OrganizationID),
	)
	return err
}

const tokenColumns = `id, owner_user_id, name, allowed_models, model_blacklist, max_amount,
	max_tokens, enabled, expires_at, created_at, amount_spent, prompt_tokens_spent,
	completion_tokens_spent, total_tokens_spent, ip_whitelist, ip_blacklist, remark, organization_id`

func (s *Store) GetToken(ctx context.Context, id string) (*gateway.ClientToken, error) {
	row := s.read.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM client_tokens WHERE id=?`, id)
	return scanToken(row)
}

func (s *Store) ListTokens(ctx context.Context, ownerUserID string, offset, limit int) ([]*gateway.ClientToken, error) {
	var rows *sql.Rows
	var err error
	if ownerUserID == "" {
		rows, err = s.read.QueryContext(ctx,
			`SELECT `+tokenColumns+` FROM client_tokens ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	} else {
		rows, err = s.read.QueryContext(ctx,
			`SELECT `+tokenColumns+` FROM client_tokens WHERE owner_user_id=? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
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
	result, err := s.write.ExecContext(ctx,
		`UPDATE client_tokens SET name=?, allowed_models=?, model_blacklist=?, max_amount=?,
		 max_tokens=?, enabled=?, expires_at=?, ip_whitelist=?, ip_blacklist=?, remark=?,
		 organization_id=? WHERE id=?`,
		t.Name, allowed, blacklist, nullFloat(t.MaxAmount), nullInt64(t.MaxTokens),
		boolToInt(t.Enabled), nullTimeToStr(t.ExpiresAt), ipWhite, ipBlack,
		nullStr(t.Remark), nullStr(t.OrganizationID), t.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "client token")
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM client_tokens WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "client token")
}

// RecordSpend increments the token's spend counters in a single UPDATE so
// concurrent requests against the same token never lose an increment (P4).
// The single-writer connection serializes this further.
func (s *Store) RecordSpend(ctx context.Context, id string, amount float64, promptTokens, completionTokens, totalTokens int64) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE client_tokens SET amount_spent = amount_spent + ?,
		 prompt_tokens_spent = prompt_tokens_spent + ?,
		 completion_tokens_spent = completion_tokens_spent + ?,
		 total_tokens_spent = total_tokens_spent + ?
		 WHERE id=?`,
		amount, promptTokens, completionTokens, totalTokens, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "client token")
}

func scanToken(sc scanner) (*gateway.ClientToken, error) {
	var t gateway.ClientToken
	var allowed, blacklist, ipWhite, ipBlack sql.NullString
	var maxAmount sql.NullFloat64
	var maxTokens sql.NullInt64
	var enabled int
	var expiresAt sql.NullString
	var createdAt string
	var remark, orgID sql.NullString

	err := sc.Scan(
		&t.ID, &t.OwnerUserID, &t.Name, &allowed, &blacklist, &maxAmount,
		&maxTokens, &enabled, &expiresAt, &createdAt, &t.AmountSpent,
		&t.PromptTokensSpent, &t.CompletionTokensSpent, &t.TotalTokensSpent,
		&ipWhite, &ipBlack, &remark, &orgID,
	)
	if err != nil {
		return nil, notFoundErr(err)
	}

	t.Enabled = enabled != 0
	t.CreatedAt = mustParseTime(createdAt)
	t.ExpiresAt = parseTime(expiresAt)
	t.Remark = remark.String
	t.OrganizationID = orgID.String
	if maxAmount.Valid {
		t.MaxAmount = &maxAmount.Float64
	}
	if maxTokens.Valid {
		t.MaxTokens = &maxTokens.Int64
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

// GetTokenBySecret looks up a token by its deterministic id derived from the
// raw secret, then verifies the stored hash matches -- defense in depth
// against an id collision (P1 makes this a formality, not a requirement).
func (s *Store) GetTokenBySecret(ctx context.Context, secret string) (*gateway.ClientToken, error) {
	id := gateway.ClientTokenID(secret)
	row := s.read.QueryRowContext(ctx, `SELECT secret_hash FROM client_tokens WHERE id=?`, id)
	var hash string
	if err := row.Scan(&hash); err != nil {
		return nil, notFoundErr(err)
	}
	if hash != gateway.HashSecret(secret) {
		return nil, gateway.ErrUnauthorized
	}
	return s.GetToken(ctx, id)
}
