package storage

import (
	"context"
	"sync"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

// InMemoryRepository 进程内仓储，用于 storage.driver = "none" 的纸面运行：
// 数据不落盘但在进程生命周期内可读，资费同步等读回路径照常工作。
type InMemoryRepository struct {
	mu            sync.RWMutex
	payments      []model.FundingPayment
	snapshots     []MetricsSnapshot
	opportunities []model.FundingOpportunity
	groups        map[string]*model.DeltaNeutralGroup
}

type MetricsSnapshot struct {
	Ts      int64
	Payload string
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		groups: make(map[string]*model.DeltaNeutralGroup),
	}
}

func (r *InMemoryRepository) SaveFundingPayment(ctx context.Context, p model.FundingPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// 与 SQL 仓储一致：同一笔支付去重
	for _, existing := range r.payments {
		if existing.Exchange == p.Exchange && existing.Amount == p.Amount && existing.At.Equal(p.At) {
			return nil
		}
	}
	r.payments = append(r.payments, p)
	return nil
}

func (r *InMemoryRepository) ListFundingPayments(ctx context.Context, since time.Time) ([]model.FundingPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.FundingPayment
	for _, p := range r.payments {
		if !p.At.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) SaveMetricsSnapshot(ctx context.Context, ts int64, payload string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, MetricsSnapshot{Ts: ts, Payload: payload})
	return nil
}

func (r *InMemoryRepository) SaveOpportunity(ctx context.Context, opp model.FundingOpportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opportunities = append(r.opportunities, opp)
	return nil
}

func (r *InMemoryRepository) SaveGroup(ctx context.Context, g *model.DeltaNeutralGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[string(g.Exchange)+":"+g.Symbol] = g
	return nil
}

func (r *InMemoryRepository) ListOpenGroups(ctx context.Context) ([]*model.DeltaNeutralGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.DeltaNeutralGroup, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out, nil
}

func (r *InMemoryRepository) Close() error { return nil }

// Opportunities 返回已记录机会的副本，测试与诊断用
func (r *InMemoryRepository) Opportunities() []model.FundingOpportunity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.FundingOpportunity, len(r.opportunities))
	copy(out, r.opportunities)
	return out
}

var _ port.Repository = (*InMemoryRepository)(nil)
