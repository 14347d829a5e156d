package postgres

import (
	"context"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) AddFavorite(ctx context.Context, f *gateway.Favorite) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO favorites (user_id, provider, model_id, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, provider, model_id) DO NOTHING`,
		f.UserID, f.Provider, f.ModelID, f.CreatedAt,
	)
	return err
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, provider, modelID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM favorites WHERE user_id=$1 AND provider=$2 AND model_id=$3`, userID, provider, modelID)
	return err
}

func (s *Store) ListFavorites(ctx context.Context, userID string) ([]*gateway.Favorite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, provider, model_id, created_at FROM favorites WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.Favorite
	for rows.Next() {
		var f gateway.Favorite
		if err := rows.Scan(&f.UserID, &f.Provider, &f.ModelID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
