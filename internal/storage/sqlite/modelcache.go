package sqlite

import (
	"context"
	"database/sql"

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

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for provider, rows := range byProvider {
		if _, err := tx.ExecContext(ctx, `DELETE FROM model_cache WHERE provider=?`, provider); err != nil {
			return err
		}
		for _, e := range rows {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO model_cache (provider, model_id, object, created, owned_by, cached_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				e.Provider, e.ModelID, nullStr(e.Object), e.Created, nullStr(e.OwnedBy), timeToStr(e.CachedAt),
			)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *Store) ListModelCache(ctx context.Context, provider string) ([]gateway.ModelCacheEntry, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT provider, model_id, object, created, owned_by, cached_at FROM model_cache WHERE provider=?`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gateway.ModelCacheEntry
	for rows.Next() {
		var e gateway.ModelCacheEntry
		var object, ownedBy sql.NullString
		var cachedAt string
		if err := rows.Scan(&e.Provider, &e.ModelID, &object, &e.Created, &ownedBy, &cachedAt); err != nil {
			return nil, err
		}
		e.Object = object.String
		e.OwnedBy = ownedBy.String
		e.CachedAt = mustParseTime(cachedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ClearModelCache(ctx context.Context, provider string) error {
	_, err := s.write.ExecContext(ctx, `DELETE FROM model_cache WHERE provider=?`, provider)
	return err
}
