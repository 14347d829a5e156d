package postgres

import (
	"context"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) GetSubscriptionPlans(ctx context.Context, scope gateway.SubscriptionScope) (*gateway.SubscriptionPlans, error) {
	var p gateway.SubscriptionPlans
	var scopeStr string
	var plans []byte
	var updatedBy *string
	err := s.pool.QueryRow(ctx,
		`SELECT scope, plans, updated_at, updated_by FROM subscription_plans WHERE scope=$1`, string(scope),
	).Scan(&scopeStr, &plans, &p.UpdatedAt, &updatedBy)
	if err != nil {
		return nil, notFoundErr(err)
	}
	p.Scope = gateway.SubscriptionScope(scopeStr)
	p.Plans = plans
	if updatedBy != nil {
		p.UpdatedBy = *updatedBy
	}
	return &p, nil
}

func (s *Store) PutSubscriptionPlans(ctx context.Context, p *gateway.SubscriptionPlans) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscription_plans (scope, plans, updated_at, updated_by)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (scope) DO UPDATE SET plans=excluded.plans, updated_at=excluded.updated_at, updated_by=excluded.updated_by`,
		string(p.Scope), []byte(p.Plans), p.UpdatedAt, nullableStr(p.UpdatedBy),
	)
	return err
}
