package sqlite

import (
	"context"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) AddFavorite(ctx context.Context, f *gateway.Favorite) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO favorites (user_id, provider, model_id, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, provider, model_id) DO NOTHING`,
		f.UserID, f.Provider, f.ModelID, timeToStr(f.CreatedAt),
	)
	return err
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, provider, modelID string) error {
	_, err := s.write.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id=? AND provider=? AND model_id=?`, userID, provider, modelID)
	return err
}

func (s *Store) ListFavorites(ctx context.Context, userID string) ([]*gateway.Favorite, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT user_id, provider, model_id, created_at FROM favorites WHERE user_id=? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.Favorite
	for rows.Next() {
		var f gateway.Favorite
		var createdAt string
		if err := rows.Scan(&f.UserID, &f.Provider, &f.ModelID, &createdAt); err != nil {
			return nil, err
		}
		f.CreatedAt = mustParseTime(createdAt)
		out = append(out, &f)
	}
	return out, rows.Err()
}
