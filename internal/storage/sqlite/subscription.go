package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/eugener/aigateway/internal"
)

func (s *Store) GetSubscriptionPlans(ctx context.Context, scope gateway.SubscriptionScope) (*gateway.SubscriptionPlans, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT scope, plans, updated_at, updated_by FROM subscription_plans WHERE scope=?`, string(scope))
	var p gateway.SubscriptionPlans
	var scopeStr, updatedAt string
	var plans string
	var updatedBy sql.NullString
	if err := row.Scan(&scopeStr, &plans, &updatedAt, &updatedBy); err != nil {
		return nil, notFoundErr(err)
	}
	p.Scope = gateway.SubscriptionScope(scopeStr)
	p.Plans = []byte(plans)
	p.UpdatedAt = mustParseTime(updatedAt)
	p.UpdatedBy = updatedBy.String
	return &p, nil
}

func (s *Store) PutSubscriptionPlans(ctx context.Context, p *gateway.SubscriptionPlans) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO subscription_plans (scope, plans, updated_at, updated_by)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope) DO UPDATE SET plans=excluded.plans, updated_at=excluded.updated_at, updated_by=excluded.updated_by`,
		string(p.Scope), string(p.Plans), timeToStr(p.UpdatedAt), nullStr(p.UpdatedBy),
	)
	return err
}
