package postgres

import (
	"context"

	gateway "github.com/eugener/aigateway/internal"
)

// PutModelCache replaces the cached listing for each entry's provider with
// the freshly probed set, one provider at a time so a multi-provider batch
// doesn't wipe a provider's cache while leaving another provider's stale
// rows behind on partial failure.
func (s *Store) PutModelCache(ctx context.Context, entries []gateway.ModelCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	byProvider := make(map[string][]gateway.ModelCacheEntry)
	for _, e := range entries {
		byProvider[e.Provider] = append(byProvider[e.Provider], e)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for provider, rows := range byProvider {
		if _, err := tx.Exec(ctx, `DELETE FROM model_cache WHERE provider=$1`, provider); err != nil {
			return err
		}
		for _, e := range rows {
			_, err := tx.Exec(ctx,
				`INSERT INTO model_cache (provider, model_id, object, created, owned_by, cached_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				e.Provider, e.ModelID, nullableStr(e.Object), e.Created, nullableStr(e.OwnedBy), e.CachedAt,
			)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListModelCache(ctx context.Context, provider string) ([]gateway.ModelCacheEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, model_id, object, created, owned_by, cached_at FROM model_cache WHERE provider=$1`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gateway.ModelCacheEntry
	for rows.Next() {
		var e gateway.ModelCacheEntry
		var object, ownedBy *string
		if err := rows.Scan(&e.Provider, &e.ModelID, &object, &e.Created, &ownedBy, &e.CachedAt); err != nil {
			return nil, err
		}
		if object != nil {
			e.Object = *object
		}
		if ownedBy != nil {
			e.OwnedBy = *ownedBy
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ClearModelCache(ctx context.Context, provider string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM model_cache WHERE provider=$1`, provider)
	return err
}
