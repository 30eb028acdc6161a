package monitor

import (
	"context"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

type noopRepo struct{}

// NewNoopRepo 纯观察模式下使用的空仓储
func NewNoopRepo() port.Repository { return &noopRepo{} }

func (n *noopRepo) SaveFundingPayment(ctx context.Context, p model.FundingPayment) error { return nil }

func (n *noopRepo) ListFundingPayments(ctx context.Context, since time.Time) ([]model.FundingPayment, error) {
	return nil, nil
}

func (n *noopRepo) SaveMetricsSnapshot(ctx context.Context, ts int64, payload string) error {
	return nil
}

func (n *noopRepo) SaveOpportunity(ctx context.Context, opp model.FundingOpportunity) error {
	return nil
}

func (n *noopRepo) SaveGroup(ctx context.Context, g *model.DeltaNeutralGroup) error { return nil }

func (n *noopRepo) ListOpenGroups(ctx context.Context) ([]*model.DeltaNeutralGroup, error) {
	return nil, nil
}

func (n *noopRepo) Close() error { return nil }
