package postgres

import (
	"context"
	"encoding/json"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) RecordBalanceTransaction(ctx context.Context, t *gateway.BalanceTransaction) error {
	var meta []byte
	if len(t.Meta) > 0 {
		meta = []byte(t.Meta)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO balance_transactions (id, user_id, kind, amount, created_at, meta)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, string(t.Kind), t.Amount, t.CreatedAt, meta,
	)
	return err
}

func (s *Store) ListBalanceTransactions(ctx context.Context, userID string, offset, limit int) ([]*gateway.BalanceTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, kind, amount, created_at, meta FROM balance_transactions
		 WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.BalanceTransaction
	for rows.Next() {
		var t gateway.BalanceTransaction
		var kind string
		var meta []byte
		if err := rows.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.CreatedAt, &meta); err != nil {
			return nil, err
		}
		t.Kind = gateway.BalanceTransactionKind(kind)
		if len(meta) > 0 {
			t.Meta = json.RawMessage(meta)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) SumBalance(ctx context.Context, userID string) (float64, error) {
	var topup, spend float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(CASE WHEN kind='topup' THEN amount ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN kind='spend' THEN amount ELSE 0 END), 0)
		 FROM balance_transactions WHERE user_id=$1`, userID,
	).Scan(&topup, &spend)
	return topup - spend, err
}
