package service

import (
	"context"
	"sync"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"

	"github.com/rs/zerolog/log"
)

const (
	// 小于此基础数量的持仓视为取整噪音，不计入
	minPositionSize = 1e-4

	// 资金费率快照滚动窗口
	snapshotWindow = 24 * time.Hour

	// 年化收益上限，超出视为运行时间不足或计算异常
	maxRealizedAPYPercent = 1000.0

	// 调用方未提供本金时，按持仓总值 / 默认杠杆估算
	capitalFallbackLeverage = 2.0

	// 每小时结算一次资金费
	fundingPeriodsPerDay = 24
)

// ExchangeMetrics 单交易所累计指标
type ExchangeMetrics struct {
	Exchange           model.Exchange
	FundingCapturedUSD float64 // 收到的资金费
	FundingPaidUSD     float64 // 支付的资金费（绝对值）
	NetFundingUSD      float64 // 净资金费 = 收到 − 支付
	TradingCostsUSD    float64 // 手续费 + 滑点
	RealizedPnLUSD     float64 // 已实现盈亏
	PositionValueUSD   float64 // 当前持仓市值
	OrdersExecuted     int
}

// PerformanceMetrics 全局绩效汇总
type PerformanceMetrics struct {
	StartTime             time.Time
	LastResetTime         time.Time
	RuntimeHours          float64
	CapitalDeployedUSD    float64
	TotalPositionValueUSD float64
	NetFundingUSD         float64
	TotalTradingCostsUSD  float64
	TotalRealizedPnLUSD   float64
	EstimatedAPYPercent   float64
	RealizedAPYPercent    float64
	MaxDrawdownPercent    float64
	OpportunitiesDetected int
	OrdersExecuted        int
	Exchanges             map[model.Exchange]ExchangeMetrics
}

// PerformanceLogger 绩效记录器 - 把原始资金费、持仓快照、订单事件
// 折算成 APY 和风险指标。进程生命周期内常驻，可重置。
//
// 读取路径永不失败：没有数据就返回零值指标。写入路径对未知交易所
// 静默忽略，绩效记录绝不能成为交易循环中断的原因。
type PerformanceLogger struct {
	mu sync.RWMutex

	metrics   map[model.Exchange]*ExchangeMetrics
	snapshots []model.FundingSnapshot
	payments  []model.FundingPayment

	opportunitiesDetected int

	startTime     time.Time
	lastResetTime time.Time

	// 回撤追踪
	peakValueUSD       float64
	maxDrawdownPercent float64

	// 交易所账单 API 的真实汇总，优先于本地估算
	externalSummary *model.FundingSummary
	paymentSource   port.FundingPaymentSource

	clock func() time.Time // 可注入，测试中替换
}

// NewPerformanceLogger 创建绩效记录器。
// paymentSource 可为 nil；非 nil 时调用方应在启动后执行一次 SyncExternalPayments。
func NewPerformanceLogger(paymentSource port.FundingPaymentSource) *PerformanceLogger {
	l := &PerformanceLogger{
		paymentSource: paymentSource,
		clock:         time.Now,
	}
	now := l.clock()
	l.startTime = now
	l.lastResetTime = now
	l.metrics = emptyExchangeMetrics()
	return l
}

func emptyExchangeMetrics() map[model.Exchange]*ExchangeMetrics {
	m := make(map[model.Exchange]*ExchangeMetrics, len(model.AllExchanges()))
	for _, ex := range model.AllExchanges() {
		m[ex] = &ExchangeMetrics{Exchange: ex}
	}
	return m
}

// RecordFundingPayment 记录一笔资金费。正数计入收到，负数按绝对值计入支付。
// 未知交易所不做任何事。
func (l *PerformanceLogger) RecordFundingPayment(exchange model.Exchange, amountUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.metrics[exchange]
	if !ok {
		return
	}

	if amountUSD >= 0 {
		m.FundingCapturedUSD += amountUSD
	} else {
		m.FundingPaidUSD += -amountUSD
	}
	m.NetFundingUSD = m.FundingCapturedUSD - m.FundingPaidUSD

	l.payments = append(l.payments, model.FundingPayment{
		Exchange: exchange,
		Amount:   amountUSD,
		At:       l.clock(),
	})
}

// RecordOrder 记录一笔已执行订单
func (l *PerformanceLogger) RecordOrder(exchange model.Exchange) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.metrics[exchange]; ok {
		m.OrdersExecuted++
	}
}

// RecordOpportunity 记录一次检测到的套利机会
func (l *PerformanceLogger) RecordOpportunity() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opportunitiesDetected++
}

// RecordTradingCost 记录交易成本（手续费 + 滑点）
func (l *PerformanceLogger) RecordTradingCost(exchange model.Exchange, costUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.metrics[exchange]; ok {
		m.TradingCostsUSD += costUSD
	}
}

// RecordRealizedPnL 记录已实现盈亏
func (l *PerformanceLogger) RecordRealizedPnL(exchange model.Exchange, pnlUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.metrics[exchange]; ok {
		m.RealizedPnLUSD += pnlUSD
	}
}

// UpdatePositionMetrics 用最新持仓快照替换某交易所的资金费率快照。
// 同一轮重复调用不会重复累积：先清掉该交易所的旧快照再写入。
// 持仓列表为空时清空该交易所全部快照（仓位已全部平掉）。
// 每次调用同时淘汰超过 24 小时的快照，并把重复的 (symbol, exchange) 收敛到最新一条。
func (l *PerformanceLogger) UpdatePositionMetrics(exchange model.Exchange, positions []model.LegPosition, fundingRates map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.metrics[exchange]
	if !ok {
		return
	}

	now := l.clock()

	kept := l.snapshots[:0]
	for _, s := range l.snapshots {
		if s.Exchange == exchange {
			continue
		}
		if now.Sub(s.At) > snapshotWindow {
			continue
		}
		kept = append(kept, s)
	}
	l.snapshots = kept

	positionValue := 0.0
	for _, pos := range positions {
		if pos.Size < minPositionSize {
			continue
		}
		positionValue += pos.NotionalUSD()

		rate, hasRate := fundingRates[pos.Symbol]
		if !hasRate {
			rate, hasRate = fundingRates[model.NormalizeSymbol(pos.Symbol)]
		}
		if !hasRate {
			continue
		}
		l.snapshots = append(l.snapshots, model.FundingSnapshot{
			Symbol:           pos.Symbol,
			Exchange:         exchange,
			HourlyRate:       rate,
			PositionValueUSD: pos.NotionalUSD(),
			Side:             pos.Side,
			At:               now,
		})
	}
	m.PositionValueUSD = positionValue

	l.dedupSnapshotsLocked()
}

// dedupSnapshotsLocked 把重复的 (symbol, exchange) 快照收敛到最新一条
func (l *PerformanceLogger) dedupSnapshotsLocked() {
	type key struct {
		symbol   string
		exchange model.Exchange
	}
	latest := make(map[key]model.FundingSnapshot, len(l.snapshots))
	order := make([]key, 0, len(l.snapshots))
	for _, s := range l.snapshots {
		k := key{symbol: model.NormalizeSymbol(s.Symbol), exchange: s.Exchange}
		if prev, ok := latest[k]; !ok {
			order = append(order, k)
			latest[k] = s
		} else if s.At.After(prev.At) || s.At.Equal(prev.At) {
			latest[k] = s
		}
	}
	l.snapshots = l.snapshots[:0]
	for _, k := range order {
		l.snapshots = append(l.snapshots, latest[k])
	}
}

// CalculateEstimatedAPY 根据当前资金费率快照估算年化收益（百分比）。
// 按归一化符号把快照配成多空对：同一标的在 A 所做多、B 所做空识别为一组套利对。
// 成对组：净收益 = 空腿费率 − 多腿费率，按两腿市值均值加权。
// 孤腿（一腿开仓失败或提前平掉）：多头取 −费率、空头取 +费率，按自身市值加权，
// 并记一条告警。最后对所有组做市值加权平均，按小时费率年化。
// 没有可加权的市值时返回 0。
func (l *PerformanceLogger) CalculateEstimatedAPY() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.estimatedAPYLocked()
}

func (l *PerformanceLogger) estimatedAPYLocked() float64 {
	type pair struct {
		long, short       *model.FundingSnapshot
		longVal, shortVal float64
	}
	groups := make(map[string]*pair)
	order := make([]string, 0)

	for i := range l.snapshots {
		s := &l.snapshots[i]
		symbol := model.NormalizeSymbol(s.Symbol)
		g, ok := groups[symbol]
		if !ok {
			g = &pair{}
			groups[symbol] = g
			order = append(order, symbol)
		}
		switch s.Side {
		case model.SideLong:
			g.long = s
			g.longVal = s.PositionValueUSD
		case model.SideShort:
			g.short = s
			g.shortVal = s.PositionValueUSD
		}
	}

	weightedSum := 0.0
	totalWeight := 0.0
	for _, symbol := range order {
		g := groups[symbol]

		var hourlyReturn, weight float64
		switch {
		case g.long != nil && g.short != nil:
			hourlyReturn = g.short.HourlyRate - g.long.HourlyRate
			weight = (g.longVal + g.shortVal) / 2
		case g.long != nil:
			log.Warn().
				Str("symbol", symbol).
				Str("exchange", string(g.long.Exchange)).
				Msg("orphaned long leg in APY estimate")
			hourlyReturn = -g.long.HourlyRate
			weight = g.longVal
		case g.short != nil:
			log.Warn().
				Str("symbol", symbol).
				Str("exchange", string(g.short.Exchange)).
				Msg("orphaned short leg in APY estimate")
			hourlyReturn = g.short.HourlyRate
			weight = g.shortVal
		}

		weightedSum += hourlyReturn * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0
	}
	avgHourly := weightedSum / totalWeight
	return avgHourly * fundingPeriodsPerDay * 365 * 100
}

// CalculateRealizedAPY 计算已实现年化收益（百分比）。
// 有外部真实汇总且本金大于 0 时直接返回其 APY。
// 否则用本地记录估算：净利润 = 净资金费 + 已实现盈亏 − 交易成本。
// 运行不足 1 小时时返回未年化的原始收益率，几分钟的数据外推出的年化没有意义。
// 年化结果超过 1000% 时截断并告警。
func (l *PerformanceLogger) CalculateRealizedAPY(capitalDeployedUSD float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realizedAPYLocked(capitalDeployedUSD)
}

func (l *PerformanceLogger) realizedAPYLocked(capitalDeployedUSD float64) float64 {
	if l.externalSummary != nil && capitalDeployedUSD > 0 {
		return l.externalSummary.RealAPY
	}

	if capitalDeployedUSD <= 0 || len(l.payments) == 0 {
		return 0
	}

	netProfit := 0.0
	for _, m := range l.metrics {
		netProfit += m.NetFundingUSD + m.RealizedPnLUSD - m.TradingCostsUSD
	}

	runtime := l.clock().Sub(l.startTime)
	rawReturnPercent := netProfit / capitalDeployedUSD * 100
	if runtime < time.Hour {
		return rawReturnPercent
	}

	runtimeDays := runtime.Hours() / 24
	dailyReturn := netProfit / capitalDeployedUSD / runtimeDays
	apy := dailyReturn * 365 * 100
	if apy > maxRealizedAPYPercent {
		log.Warn().
			Float64("uncapped_apy", apy).
			Float64("runtime_days", runtimeDays).
			Msg("realized APY exceeds cap, likely insufficient runtime")
		return maxRealizedAPYPercent
	}
	return apy
}

// GetPerformanceMetrics 汇总全局绩效指标。
// capitalDeployedUSD 为 0 时退而用持仓总值 / 2 估算本金。
// 同时推进回撤序列：当前价值 = 持仓总值 + 净资金费 + 已实现盈亏，
// 记录迄今最大的峰值回落百分比（重置前单调不减）。
func (l *PerformanceLogger) GetPerformanceMetrics(capitalDeployedUSD float64) *PerformanceMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	totalPositionValue := 0.0
	netFunding := 0.0
	totalCosts := 0.0
	totalRealized := 0.0
	ordersExecuted := 0
	exchanges := make(map[model.Exchange]ExchangeMetrics, len(l.metrics))
	for ex, m := range l.metrics {
		exchanges[ex] = *m
		totalPositionValue += m.PositionValueUSD
		netFunding += m.NetFundingUSD
		totalCosts += m.TradingCostsUSD
		totalRealized += m.RealizedPnLUSD
		ordersExecuted += m.OrdersExecuted
	}

	capital := capitalDeployedUSD
	if capital <= 0 {
		capital = totalPositionValue / capitalFallbackLeverage
	}

	currentValue := totalPositionValue + netFunding + totalRealized
	if currentValue > l.peakValueUSD {
		l.peakValueUSD = currentValue
	}
	if l.peakValueUSD > 0 {
		drawdown := (l.peakValueUSD - currentValue) / l.peakValueUSD * 100
		if drawdown > l.maxDrawdownPercent {
			l.maxDrawdownPercent = drawdown
		}
	}

	now := l.clock()
	return &PerformanceMetrics{
		StartTime:             l.startTime,
		LastResetTime:         l.lastResetTime,
		RuntimeHours:          now.Sub(l.startTime).Hours(),
		CapitalDeployedUSD:    capital,
		TotalPositionValueUSD: totalPositionValue,
		NetFundingUSD:         netFunding,
		TotalTradingCostsUSD:  totalCosts,
		TotalRealizedPnLUSD:   totalRealized,
		EstimatedAPYPercent:   l.estimatedAPYLocked(),
		RealizedAPYPercent:    l.realizedAPYLocked(capital),
		MaxDrawdownPercent:    l.maxDrawdownPercent,
		OpportunitiesDetected: l.opportunitiesDetected,
		OrdersExecuted:        ordersExecuted,
		Exchanges:             exchanges,
	}
}

// ResetPerformanceMetrics 清零所有累计指标，开启新的统计窗口。
// 策略参数调整后旧历史失去参考意义时使用。
func (l *PerformanceLogger) ResetPerformanceMetrics() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.metrics = emptyExchangeMetrics()
	l.snapshots = nil
	l.payments = nil
	l.opportunitiesDetected = 0
	l.startTime = now
	l.lastResetTime = now
	l.peakValueUSD = 0
	l.maxDrawdownPercent = 0
	l.externalSummary = nil

	log.Info().Msg("performance metrics reset")
}

// SetExternalSummary 更新交易所账单 API 的真实资金费汇总
func (l *PerformanceLogger) SetExternalSummary(summary *model.FundingSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.externalSummary = summary
}

// SyncExternalPayments 从外部账单来源回放历史资金费支付。
// 只回放上次重置之后的记录，避免跨重启重复计账。
// 尽力而为：失败只记日志，绝不阻塞启动。
func (l *PerformanceLogger) SyncExternalPayments(ctx context.Context, days int) {
	if l.paymentSource == nil {
		return
	}

	payments, err := l.paymentSource.FetchAllFundingPayments(ctx, days)
	if err != nil {
		log.Warn().Err(err).Msg("external funding payment sync failed")
		return
	}

	l.mu.RLock()
	cutoff := l.lastResetTime
	l.mu.RUnlock()

	replayed := 0
	for _, p := range payments {
		if !p.At.After(cutoff) {
			continue
		}
		l.RecordFundingPayment(p.Exchange, p.Amount)
		replayed++
	}
	log.Info().
		Int("fetched", len(payments)).
		Int("replayed", replayed).
		Msg("✓ external funding payments synced")
}

// ExchangeMetricsSnapshot 各交易所指标的副本
func (l *PerformanceLogger) ExchangeMetricsSnapshot() map[model.Exchange]ExchangeMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[model.Exchange]ExchangeMetrics, len(l.metrics))
	for ex, m := range l.metrics {
		out[ex] = *m
	}
	return out
}

// FundingSnapshots 当前资金费率快照的副本
func (l *PerformanceLogger) FundingSnapshots() []model.FundingSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.FundingSnapshot, len(l.snapshots))
	copy(out, l.snapshots)
	return out
}

// Payments 本地记录的资金费支付副本
func (l *PerformanceLogger) Payments() []model.FundingPayment {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.FundingPayment, len(l.payments))
	copy(out, l.payments)
	return out
}
