package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/storage"
)

// InsertRequestLog appends one accounting row. Exactly one row is written
// per handled request, mirroring storage/sqlite's single insert -- there is
// no buffering point in the dispatch pipeline where rows accumulate.
func (s *Store) InsertRequestLog(ctx context.Context, l *gateway.RequestLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO request_logs (timestamp, method, path, request_type, requested_model,
		 effective_model, pricing_model, provider, api_key_hint, client_token_id, user_id,
		 amount_spent, status_code, response_time_ms, prompt_tokens, completion_tokens,
		 total_tokens, cached_tokens, reasoning_tokens, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		l.Timestamp, l.Method, l.Path, string(l.RequestType), nullableStr(l.RequestedModel),
		nullableStr(l.EffectiveModel), nullableStr(l.PricingModel), nullableStr(l.Provider), nullableStr(l.APIKeyHint),
		nullableStr(l.ClientTokenID), nullableStr(l.UserID), l.AmountSpent, l.StatusCode,
		l.ResponseTimeMs, l.PromptTokens, l.CompletionTokens, l.TotalTokens, l.CachedTokens,
		l.ReasoningTokens, nullableStr(l.ErrorMessage),
	)
	return err
}

func (s *Store) ListRequestLogs(ctx context.Context, filter storage.RequestLogFilter) ([]*gateway.RequestLog, error) {
	var where []string
	var args []any
	n := 1
	next := func() string {
		p := fmt.Sprintf("$%d", n)
		n++
		return p
	}

	if filter.ClientTokenID != "" {
		where = append(where, "client_token_id = "+next())
		args = append(args, filter.ClientTokenID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = "+next())
		args = append(args, filter.UserID)
	}
	if filter.Provider != "" {
		where = append(where, "provider = "+next())
		args = append(args, filter.Provider)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= "+next())
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		where = append(where, "timestamp < "+next())
		args = append(args, *filter.Until)
	}

	query := `SELECT id, timestamp, method, path, request_type, requested_model, effective_model,
		pricing_model, provider, api_key_hint, client_token_id, user_id, amount_spent, status_code,
		response_time_ms, prompt_tokens, completion_tokens, total_tokens, cached_tokens,
		reasoning_tokens, error_message FROM request_logs`
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %s OFFSET %s", next(), next())
	args = append(args, limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.RequestLog
	for rows.Next() {
		l, err := scanRequestLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SummarizeRequestLogs aggregates request counts/tokens/spend by
// (provider, effective_model) over [since, until) for the admin metrics
// summary surface.
func (s *Store) SummarizeRequestLogs(ctx context.Context, since, until time.Time) ([]storage.RequestLogSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(provider, ''), COALESCE(effective_model, ''), COUNT(*),
		        COALESCE(SUM(total_tokens), 0), COALESCE(SUM(amount_spent), 0)
		 FROM request_logs WHERE timestamp >= $1 AND timestamp < $2
		 GROUP BY provider, effective_model ORDER BY provider, effective_model`,
		since, until,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.RequestLogSummary
	for rows.Next() {
		var r storage.RequestLogSummary
		if err := rows.Scan(&r.Provider, &r.Model, &r.RequestCount, &r.TotalTokens, &r.TotalAmountSpent); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequestLog(row pgx.Row) (*gateway.RequestLog, error) {
	var l gateway.RequestLog
	var requestType string
	var requestedModel, effectiveModel, pricingModel, provider, apiKeyHint, clientTokenID, userID, errMsg *string

	err := row.Scan(&l.ID, &l.Timestamp, &l.Method, &l.Path, &requestType, &requestedModel, &effectiveModel,
		&pricingModel, &provider, &apiKeyHint, &clientTokenID, &userID, &l.AmountSpent, &l.StatusCode,
		&l.ResponseTimeMs, &l.PromptTokens, &l.CompletionTokens, &l.TotalTokens, &l.CachedTokens,
		&l.ReasoningTokens, &errMsg)
	if err != nil {
		return nil, notFoundErr(err)
	}
	l.RequestType = gateway.RequestType(requestType)
	if requestedModel != nil {
		l.RequestedModel = *requestedModel
	}
	if effectiveModel != nil {
		l.EffectiveModel = *effectiveModel
	}
	if pricingModel != nil {
		l.PricingModel = *pricingModel
	}
	if provider != nil {
		l.Provider = *provider
	}
	if apiKeyHint != nil {
		l.APIKeyHint = *apiKeyHint
	}
	if clientTokenID != nil {
		l.ClientTokenID = *clientTokenID
	}
	if userID != nil {
		l.UserID = *userID
	}
	if errMsg != nil {
		l.ErrorMessage = *errMsg
	}
	return &l, nil
}
