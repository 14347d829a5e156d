package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	gateway "github.com/eugener/aigateway/internal"
	"github.com/eugener/aigateway/internal/storage"
)

// InsertRequestLog appends one accounting row. Exactly one row is written
// per handled request (spec.md's audit invariant), so this is a single
// insert rather than the teacher's batch usage.InsertUsage -- there is no
// buffering point in the dispatch pipeline where rows accumulate.
func (s *Store) InsertRequestLog(ctx context.Context, l *gateway.RequestLog) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO request_logs (timestamp, method, path, request_type, requested_model,
		 effective_model, pricing_model, provider, api_key_hint, client_token_id, user_id,
		 amount_spent, status_code, response_time_ms, prompt_tokens, completion_tokens,
		 total_tokens, cached_tokens, reasoning_tokens, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		timeToStr(l.Timestamp), l.Method, l.Path, string(l.RequestType), nullStr(l.RequestedModel),
		nullStr(l.EffectiveModel), nullStr(l.PricingModel), nullStr(l.Provider), nullStr(l.APIKeyHint),
		nullStr(l.ClientTokenID), nullStr(l.UserID), nullFloat(l.AmountSpent), l.StatusCode,
		l.ResponseTimeMs, l.PromptTokens, l.CompletionTokens, l.TotalTokens, l.CachedTokens,
		l.ReasoningTokens, nullStr(l.ErrorMessage),
	)
	return err
}

func (s *Store) ListRequestLogs(ctx context.Context, filter storage.RequestLogFilter) ([]*gateway.RequestLog, error) {
	var where []string
	var args []any

	if filter.ClientTokenID != "" {
		where = append(where, "client_token_id = ?")
		args = append(args, filter.ClientTokenID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, timeToStr(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "timestamp < ?")
		args = append(args, timeToStr(*filter.Until))
	}

	query := `SELECT id, timestamp, method, path, request_type, requested_model, effective_model,
		pricing_model, provider, api_key_hint, client_token_id, user_id, amount_spent, status_code,
		response_time_ms, prompt_tokens, completion_tokens, total_tokens, cached_tokens,
		reasoning_tokens, error_message FROM request_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.read.QueryContext(ctx, query, args...)
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
	rows, err := s.read.QueryContext(ctx,
		`SELECT COALESCE(provider, ''), COALESCE(effective_model, ''), COUNT(*),
		        COALESCE(SUM(total_tokens), 0), COALESCE(SUM(amount_spent), 0)
		 FROM request_logs WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY provider, effective_model ORDER BY provider, effective_model`,
		timeToStr(since), timeToStr(until),
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

func scanRequestLog(sc scanner) (*gateway.RequestLog, error) {
	var l gateway.RequestLog
	var timestamp string
	var requestType string
	var requestedModel, effectiveModel, pricingModel, provider, apiKeyHint, clientTokenID, userID, errMsg sql.NullString
	var amountSpent sql.NullFloat64

	err := sc.Scan(&l.ID, &timestamp, &l.Method, &l.Path, &requestType, &requestedModel, &effectiveModel,
		&pricingModel, &provider, &apiKeyHint, &clientTokenID, &userID, &amountSpent, &l.StatusCode,
		&l.ResponseTimeMs, &l.PromptTokens, &l.CompletionTokens, &l.TotalTokens, &l.CachedTokens,
		&l.ReasoningTokens, &errMsg)
	if err != nil {
		return nil, notFoundErr(err)
	}
	l.Timestamp = mustParseTime(timestamp)
	l.RequestType = gateway.RequestType(requestType)
	l.RequestedModel = requestedModel.String
	l.EffectiveModel = effectiveModel.String
	l.PricingModel = pricingModel.String
	l.Provider = provider.String
	l.APIKeyHint = apiKeyHint.String
	l.ClientTokenID = clientTokenID.String
	l.UserID = userID.String
	l.ErrorMessage = errMsg.String
	if amountSpent.Valid {
		l.AmountSpent = &amountSpent.Float64
	}
	return &l, nil
}
