package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) RecordBalanceTransaction(ctx context.Context, t *gateway.BalanceTransaction) error {
	var meta sql.NullString
	if len(t.Meta) > 0 {
		meta = sql.NullString{String: string(t.Meta), Valid: true}
	}
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO balance_transactions (id, user_id, kind, amount, created_at, meta)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, string(t.Kind), t.Amount, timeToStr(t.CreatedAt), meta,
	)
	return err
}

func (s *Store) ListBalanceTransactions(ctx context.Context, userID string, offset, limit int) ([]*gateway.BalanceTransaction, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, user_id, kind, amount, created_at, meta FROM balance_transactions
		 WHERE user_id=? ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.BalanceTransaction
	for rows.Next() {
		var t gateway.BalanceTransaction
		var kind, createdAt string
		var meta sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &createdAt, &meta); err != nil {
			return nil, err
		}
		t.Kind = gateway.BalanceTransactionKind(kind)
		t.CreatedAt = mustParseTime(createdAt)
		if meta.Valid {
			t.Meta = json.RawMessage(meta.String)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) SumBalance(ctx context.Context, userID string) (float64, error) {
	var topup, spend float64
	err := s.read.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN kind='topup' THEN amount ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN kind='spend' THEN amount ELSE 0 END), 0)
		 FROM balance_transactions WHERE user_id=?`, userID,
	).Scan(&topup, &spend)
	return topup - spend, err
}
