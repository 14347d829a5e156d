package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/eugener/aigateway/internal"
)

// --- Providers ---

func (s *Store) CreateProvider(ctx context.Context, p *gateway.Provider) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO providers (name, api_type, base_url, models_endpoint, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, string(p.APIType), p.BaseURL, nullStr(p.ModelsEndpoint), boolToInt(p.Enabled),
		timeToStr(p.CreatedAt), timeToStr(p.UpdatedAt),
	)
	return err
}

func (s *Store) GetProvider(ctx context.Context, name string) (*gateway.Provider, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT name, api_type, base_url, models_endpoint, enabled, created_at, updated_at
		 FROM providers WHERE name=?`, name)
	return scanProvider(row)
}

func (s *Store) ListProviders(ctx context.Context) ([]*gateway.Provider, error) {
	rows, err := s.read.QueryContext(ctx,
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
	result, err := s.write.ExecContext(ctx,
		`UPDATE providers SET api_type=?, base_url=?, models_endpoint=?, enabled=?, updated_at=? WHERE name=?`,
		string(p.APIType), p.BaseURL, nullStr(p.ModelsEndpoint), boolToInt(p.Enabled), timeToStr(p.UpdatedAt), p.Name,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "provider")
}

func (s *Store) DeleteProvider(ctx context.Context, name string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM providers WHERE name=?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "provider")
}

func scanProvider(sc scanner) (*gateway.Provider, error) {
	var p gateway.Provider
	var modelsEndpoint sql.NullString
	var enabled int
	var createdAt, updatedAt string

	err := sc.Scan(&p.Name, &p.APIType, &p.BaseURL, &modelsEndpoint, &enabled, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundErr(err)
	}
	p.ModelsEndpoint = modelsEndpoint.String
	p.Enabled = enabled != 0
	p.CreatedAt = mustParseTime(createdAt)
	p.UpdatedAt = mustParseTime(updatedAt)
	return &p, nil
}

// --- Provider keys ---

func (s *Store) CreateProviderKey(ctx context.Context, k *gateway.ProviderKey) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO provider_keys (id, provider, encoded, encrypted, active, weight)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		k.ID, k.Provider, k.Encoded, boolToInt(k.Encrypted), boolToInt(k.Active), k.Weight,
	)
	return err
}

func (s *Store) ListProviderKeys(ctx context.Context, provider string) ([]*gateway.ProviderKey, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, provider, encoded, encrypted, active, weight FROM provider_keys WHERE provider=? ORDER BY id`,
		provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*gateway.ProviderKey
	for rows.Next() {
		var k gateway.ProviderKey
		var encrypted, active int
		if err := rows.Scan(&k.ID, &k.Provider, &k.Encoded, &encrypted, &active, &k.Weight); err != nil {
			return nil, err
		}
		k.Encrypted = encrypted != 0
		k.Active = active != 0
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProviderKey(ctx context.Context, k *gateway.ProviderKey) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE provider_keys SET encoded=?, encrypted=?, active=?, weight=? WHERE id=?`,
		k.Encoded, boolToInt(k.Encrypted), boolToInt(k.Active), k.Weight, k.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "provider key")
}

func (s *Store) DeleteProviderKey(ctx context.Context, id string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM provider_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "provider key")
}

// --- Model redirects ---

func (s *Store) UpsertModelRedirect(ctx context.Context, r *gateway.ModelRedirect) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO model_redirects (provider, source, target, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (provider, source) DO UPDATE SET target=excluded.target, updated_at=excluded.updated_at`,
		r.Provider, r.Source, r.Target, timeToStr(r.CreatedAt), timeToStr(r.UpdatedAt),
	)
	return err
}

func (s *Store) GetModelRedirect(ctx context.Context, provider, source string) (*gateway.ModelRedirect, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT provider, source, target, created_at, updated_at
		 FROM model_redirects WHERE provider=? AND source=?`, provider, source)
	return scanModelRedirect(row)
}

func (s *Store) ListModelRedirects(ctx context.Context, provider string) ([]*gateway.ModelRedirect, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT provider, source, target, created_at, updated_at FROM model_redirects WHERE provider=?`, provider)
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
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM model_redirects WHERE provider=? AND source=?`, provider, source)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "model redirect")
}

func scanModelRedirect(sc scanner) (*gateway.ModelRedirect, error) {
	var r gateway.ModelRedirect
	var createdAt, updatedAt string
	if err := sc.Scan(&r.Provider, &r.Source, &r.Target, &createdAt, &updatedAt); err != nil {
		return nil, notFoundErr(err)
	}
	r.CreatedAt = mustParseTime(createdAt)
	r.UpdatedAt = mustParseTime(updatedAt)
	return &r, nil
}

// --- Model prices ---

func (s *Store) UpsertModelPrice(ctx context.Context, p *gateway.ModelPrice) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO model_prices (provider, model, prompt_price_per_million, completion_price_per_million, currency)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (provider, model) DO UPDATE SET
		   prompt_price_per_million=excluded.prompt_price_per_million,
		   completion_price_per_million=excluded.completion_price_per_million,
		   currency=excluded.currency`,
		p.Provider, p.Model, p.PromptPricePerMillion, p.CompletionPricePerMillion, p.Currency,
	)
	return err
}

func (s *Store) GetModelPrice(ctx context.Context, provider, model string) (*gateway.ModelPrice, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT provider, model, prompt_price_per_million, completion_price_per_million, currency
		 FROM model_prices WHERE provider=? AND model=?`, provider, model)
	var p gateway.ModelPrice
	if err := row.Scan(&p.Provider, &p.Model, &p.PromptPricePerMillion, &p.CompletionPricePerMillion, &p.Currency); err != nil {
		return nil, notFoundErr(err)
	}
	return &p, nil
}

func (s *Store) ListModelPrices(ctx context.Context) ([]*gateway.ModelPrice, error) {
	rows, err := s.read.QueryContext(ctx,
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
