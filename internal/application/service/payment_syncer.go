package service

import (
	"context"
	"sync"
	"time"

	"perparb/internal/application/port"

	"github.com/rs/zerolog/log"
)

// PaymentSyncer 资金费对账同步器：定期从交易所账单 API 拉取已结算的
// 资金费支付，落库并刷新绩效记录器的真实汇总。
// 历史回放（启动时一次性计入运行总账）由 PerformanceLogger.SyncExternalPayments
// 负责，这里只做持久化与汇总刷新，两边不会重复计账。
type PaymentSyncer struct {
	source  port.FundingPaymentSource
	repo    port.Repository
	perf    *PerformanceLogger
	capital func() float64 // 当前部署本金，用于真实 APY 汇总

	interval     time.Duration
	lookbackDays int

	mu         sync.Mutex
	lastSynced time.Time
}

// NewPaymentSyncer 创建对账同步器
func NewPaymentSyncer(
	source port.FundingPaymentSource,
	repo port.Repository,
	perf *PerformanceLogger,
	capital func() float64,
	interval time.Duration,
) *PaymentSyncer {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &PaymentSyncer{
		source:       source,
		repo:         repo,
		perf:         perf,
		capital:      capital,
		interval:     interval,
		lookbackDays: 7,
	}
}

// Start 启动后台同步任务，首次立即执行一轮
func (s *PaymentSyncer) Start(ctx context.Context) error {
	s.syncOnce(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.syncOnce(ctx)
			}
		}
	}()

	return nil
}

// syncOnce 拉取一轮支付记录并刷新汇总
func (s *PaymentSyncer) syncOnce(ctx context.Context) {
	payments, err := s.source.FetchAllFundingPayments(ctx, s.lookbackDays)
	if err != nil {
		log.Warn().Err(err).Msg("funding payment fetch failed")
		return
	}

	s.mu.Lock()
	cutoff := s.lastSynced
	s.mu.Unlock()

	saved := 0
	newest := cutoff
	for _, p := range payments {
		if !p.At.After(cutoff) {
			continue
		}
		if s.repo != nil {
			if err := s.repo.SaveFundingPayment(ctx, p); err != nil {
				log.Warn().Str("exchange", string(p.Exchange)).Err(err).Msg("payment persist failed")
				continue
			}
		}
		saved++
		if p.At.After(newest) {
			newest = p.At
		}
	}

	s.mu.Lock()
	s.lastSynced = newest
	s.mu.Unlock()

	summary, err := s.source.GetCombinedSummary(ctx, s.lookbackDays, s.capital())
	if err != nil {
		log.Warn().Err(err).Msg("funding summary refresh failed")
	} else {
		s.perf.SetExternalSummary(summary)
	}

	if saved > 0 {
		log.Info().Int("saved", saved).Msg("funding payments synced")
	}
}
