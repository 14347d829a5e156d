package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	gateway "github.com/eugener/aigateway/internal"
)

// --- Providers ---

func (s *Store) CreateProvider(ctx context.Context, p *gateway.Provider) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO providers (name, api_type, base_url, models_endpoint, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.Name, string(p.APIType), p.BaseURL, nullableStr(p.ModelsEndpoint), p.Enabled,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *Store) GetProvider(ctx context.Context, name string) (*gateway.Provider, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT name, api_type, base_url, models_endpoint, enabled, created_at, updated_at
		 FROM providers WHERE name=$1`, name)
	return scanProvider(row)
}

func (s *Store) ListProviders(ctx context.Context) ([]*gateway.Provider, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, api_type, base_url, models_endpoint, enabled, created_at, updated_at
		 FROM providers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProvider(ctx context.Context, p *gateway.Provider) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE providers SET api_type=$1, base_url=$2, models_endpoint=$3, enabled=$4, updated_at=$5 WHERE name=$6`,
		string(p.APIType), p.BaseURL, nullableStr(p.ModelsEndpoint), p.Enabled, p.UpdatedAt, p.Name,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "provider")
}

func (s *Store) DeleteProvider(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM providers WHERE name=$1`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "provider")
}

func scanProvider(row pgx.Row) (*gateway.Provider, error) {
	var p gateway.Provider
	var modelsEndpoint *string
	var apiType string

	err := row.Scan(&p.Name, &apiType, &p.BaseURL, &modelsEndpoint, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	if modelsEndpoint != nil {
		p.ModelsEndpoint = *modelsEndpoint
	}
	p.APIType = gateway.ProviderAPIType(apiType)
	return &p, nil
}

// --- Provider keys ---

func (s *Store) CreateProviderKey(ctx context.Context, k *gateway.ProviderKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_keys (id, provider, encoded, encrypted, active, weight)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		k.ID, k.Provider, k.Encoded, k.Encrypted, k.Active, k.Weight,
	)
	return err
}

func (s *Store) ListProviderKeys(ctx context.Context, provider string) ([]*gateway.ProviderKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider, encoded, encrypted, active, weight FROM provider_keys WHERE provider=$1 ORDER BY id`,
		provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.ProviderKey
	for rows.Next() {
		var k gateway.ProviderKey
		if err := rows.Scan(&k.ID, &k.Provider, &k.Encoded, &k.Encrypted, &k.Active, &k.Weight); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProviderKey(ctx context.Context, k *gateway.ProviderKey) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE provider_keys SET encoded=$1, encrypted=$2, active=$3, weight=$4 WHERE id=$5`,
		k.Encoded, k.Encrypted, k.Active, k.Weight, k.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "provider key")
}

func (s *Store) DeleteProviderKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM provider_keys WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "provider key")
}

// --- Model redirects ---

func (s *Store) UpsertModelRedirect(ctx context.Context, r *gateway.ModelRedirect) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO model_redirects (provider, source, target, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (provider, source) DO UPDATE SET target=excluded.target, updated_at=excluded.updated_at`,
		r.Provider, r.Source, r.Target, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *Store) GetModelRedirect(ctx context.Context, provider, source string) (*gateway.ModelRedirect, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT provider, source, target, created_at, updated_at
		 FROM model_redirects WHERE provider=$1 AND source=$2`, provider, source)
	return scanModelRedirect(row)
}

func (s *Store) ListModelRedirects(ctx context.Context, provider string) ([]*gateway.ModelRedirect, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, source, target, created_at, updated_at FROM model_redirects WHERE provider=$1`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.ModelRedirect
	for rows.Next() {
		r, err := scanModelRedirect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteModelRedirect(ctx context.Context, provider, source string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM model_redirects WHERE provider=$1 AND source=$2`, provider, source)
	if err != nil {
		return err
	}
	return checkRowsAffected(tag.RowsAffected(), "model redirect")
}

func scanModelRedirect(row pgx.Row) (*gateway.ModelRedirect, error) {
	var r gateway.ModelRedirect
	if err := row.Scan(&r.Provider, &r.Source, &r.Target, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, notFoundErr(err)
	}
	return &r, nil
}

// --- Model prices ---

func (s *Store) UpsertModelPrice(ctx context.Context, p *gateway.ModelPrice) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO model_prices (provider, model, prompt_price_per_million, completion_price_per_million, currency)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (provider, model) DO UPDATE SET
		   prompt_price_per_million=excluded.prompt_price_per_million,
		   completion_price_per_million=excluded.completion_price_per_million,
		   currency=excluded.currency`,
		p.Provider, p.Model, p.PromptPricePerMillion, p.CompletionPricePerMillion, p.Currency,
	)
	return err
}

func (s *Store) GetModelPrice(ctx context.Context, provider, model string) (*gateway.ModelPrice, error) {
	var p gateway.ModelPrice
	err := s.pool.QueryRow(ctx,
		`SELECT provider, model, prompt_price_per_million, completion_price_per_million, currency
		 FROM model_prices WHERE provider=$1 AND model=$2`, provider, model,
	).Scan(&p.Provider, &p.Model, &p.PromptPricePerMillion, &p.CompletionPricePerMillion, &p.Currency)
	if err != nil {
		return nil, notFoundErr(err)
	}
	return &p, nil
}

func (s *Store) ListModelPrices(ctx context.Context) ([]*gateway.ModelPrice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, model, prompt_price_per_million, completion_price_per_million, currency FROM model_prices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.ModelPrice
	for rows.Next() {
		var p gateway.ModelPrice
		if err := rows.Scan(&p.Provider, &p.Model, &p.PromptPricePerMillion, &p.CompletionPricePerMillion, &p.Currency); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
