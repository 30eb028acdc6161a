package composite

import (
	"context"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

// Repo 把写操作扇出到所有仓储，读操作取第一个有数据的结果。
// 典型组合：SQLite 做事实来源，Redis 做对外镜像。
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) SaveFundingPayment(ctx context.Context, p model.FundingPayment) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveFundingPayment(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) ListFundingPayments(ctx context.Context, since time.Time) ([]model.FundingPayment, error) {
	for _, repo := range r.repos {
		payments, err := repo.ListFundingPayments(ctx, since)
		if err != nil {
			return nil, err
		}
		if len(payments) > 0 {
			return payments, nil
		}
	}
	return nil, nil
}

func (r *Repo) SaveMetricsSnapshot(ctx context.Context, ts int64, payload string) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveMetricsSnapshot(ctx, ts, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) SaveOpportunity(ctx context.Context, opp model.FundingOpportunity) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveOpportunity(ctx, opp); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) SaveGroup(ctx context.Context, g *model.DeltaNeutralGroup) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SaveGroup(ctx, g); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) ListOpenGroups(ctx context.Context) ([]*model.DeltaNeutralGroup, error) {
	for _, repo := range r.repos {
		groups, err := repo.ListOpenGroups(ctx)
		if err != nil {
			return nil, err
		}
		if len(groups) > 0 {
			return groups, nil
		}
	}
	return nil, nil
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Repository = (*Repo)(nil)
