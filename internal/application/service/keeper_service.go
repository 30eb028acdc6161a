package service

import (
	"context"
	"fmt"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
	domainsvc "perparb/internal/domain/service"

	"github.com/rs/zerolog/log"
)

// 累计利润达到此金额才触发一次收割，避免频繁小额转账
const harvestMinUSD = 25.0

// KeeperService 每个周期执行一轮决策：刷新持仓账务、巡检钱包资金、
// 扫描跨所资金费率价差、成本闸门过滤、调拨保证金、维护对冲组、收割利润。
// 订单执行交给交易所适配器，本服务只产出决策与账务。
type KeeperService struct {
	cfg      *model.StrategyConfig
	calc     *domainsvc.CostCalculator
	balances *BalanceManager
	logger   *PerformanceLogger
	adapters map[model.Exchange]port.ExchangeAdapter
	repo     port.Repository // 可为 nil，决策不依赖持久化
	treasury port.Treasury   // 可为 nil，关闭利润收割

	harvestedUSD float64 // 已收割的累计利润
}

// NewKeeperService 创建决策服务
func NewKeeperService(
	cfg *model.StrategyConfig,
	calc *domainsvc.CostCalculator,
	balances *BalanceManager,
	perfLogger *PerformanceLogger,
	adapters map[model.Exchange]port.ExchangeAdapter,
	repo port.Repository,
	treasury port.Treasury,
) *KeeperService {
	return &KeeperService{
		cfg:      cfg,
		calc:     calc,
		balances: balances,
		logger:   perfLogger,
		adapters: adapters,
		repo:     repo,
		treasury: treasury,
	}
}

// RunCycle 执行一轮决策。rates 为各交易所最新的每小时资金费率快照。
// 单个交易所的故障降级为跳过，不中断整轮。
func (k *KeeperService) RunCycle(ctx context.Context, rates map[model.Exchange]map[string]port.FundingTick) error {
	k.refreshPositions(ctx, rates)

	exchanges := make([]model.Exchange, 0, len(k.adapters))
	for ex := range k.adapters {
		exchanges = append(exchanges, ex)
	}
	if _, err := k.balances.CheckAndDepositWalletFunds(ctx, k.adapters, exchanges); err != nil {
		log.Warn().Err(err).Msg("wallet sweep failed")
	}

	k.scanOpportunities(ctx, rates)

	if k.cfg.PerpSpotHedging {
		k.maintainHedgeGroups(ctx)
	}

	k.harvestProfits(ctx)
	return ctx.Err()
}

// refreshPositions 把最新持仓与费率喂给绩效记录器
func (k *KeeperService) refreshPositions(ctx context.Context, rates map[model.Exchange]map[string]port.FundingTick) {
	for exchange, adapter := range k.adapters {
		positions, err := adapter.GetPositions(ctx)
		if err != nil {
			log.Warn().Str("exchange", string(exchange)).Err(err).Msg("position refresh failed, skipping this cycle")
			continue
		}

		rateMap := make(map[string]float64, len(rates[exchange]))
		for symbol, tick := range rates[exchange] {
			rateMap[symbol] = tick.HourlyRate
			rateMap[model.NormalizeSymbol(symbol)] = tick.HourlyRate
		}
		k.logger.UpdatePositionMetrics(exchange, positions, rateMap)
	}
}

// scanOpportunities 按归一化符号扫描跨所费率价差
func (k *KeeperService) scanOpportunities(ctx context.Context, rates map[model.Exchange]map[string]port.FundingTick) {
	bySymbol := make(map[string][]port.FundingTick)
	for _, ticks := range rates {
		for _, tick := range ticks {
			symbol := model.NormalizeSymbol(tick.Symbol)
			bySymbol[symbol] = append(bySymbol[symbol], tick)
		}
	}

	for symbol, ticks := range bySymbol {
		if len(ticks) < 2 {
			continue
		}

		longTick, shortTick := ticks[0], ticks[0]
		aggregateOI := 0.0
		for _, tick := range ticks {
			if tick.HourlyRate < longTick.HourlyRate {
				longTick = tick
			}
			if tick.HourlyRate > shortTick.HourlyRate {
				shortTick = tick
			}
			aggregateOI += tick.OpenInterestUSD
		}

		spread := shortTick.HourlyRate - longTick.HourlyRate
		if spread < k.cfg.MinSpread.Decimal() {
			continue
		}
		if longTick.OpenInterestUSD > 0 && longTick.OpenInterestUSD < k.cfg.MinOpenInterestUSD {
			continue
		}
		if shortTick.OpenInterestUSD > 0 && shortTick.OpenInterestUSD < k.cfg.MinOpenInterestUSD {
			continue
		}
		if aggregateOI > 0 && aggregateOI < k.cfg.MinAggregateOpenInterestUSD {
			continue
		}

		opp := &model.FundingOpportunity{
			Symbol:        symbol,
			LongExchange:  longTick.Exchange,
			ShortExchange: shortTick.Exchange,
			LongRate:      longTick.HourlyRate,
			ShortRate:     shortTick.HourlyRate,
			SpreadPerHour: spread,
			Timestamp:     time.Now().UnixMilli(),
		}
		k.evaluateOpportunity(ctx, opp, longTick, shortTick)
	}
}

// evaluateOpportunity 对单个机会做规模测算、成本闸门与保证金调拨
func (k *KeeperService) evaluateOpportunity(ctx context.Context, opp *model.FundingOpportunity, longTick, shortTick port.FundingTick) {
	longAdapter, ok := k.adapters[opp.LongExchange]
	if !ok {
		return
	}
	shortAdapter, ok := k.adapters[opp.ShortExchange]
	if !ok {
		return
	}

	longCapital, err := k.balances.GetDeployableCapital(ctx, longAdapter)
	if err != nil {
		log.Warn().Err(err).Msg("deployable capital unavailable, skipping opportunity")
		return
	}
	shortCapital, err := k.balances.GetDeployableCapital(ctx, shortAdapter)
	if err != nil {
		log.Warn().Err(err).Msg("deployable capital unavailable, skipping opportunity")
		return
	}

	capital := longCapital
	if shortCapital < capital {
		capital = shortCapital
	}
	notional := capital * k.cfg.BalanceUsageFraction * k.cfg.BaseLeverage
	if notional < k.cfg.MinPositionUSD {
		return
	}
	opp.NotionalUSD = notional

	costs := k.estimateCosts(notional, opp, longTick, shortTick)
	hourlyReturn := opp.SpreadPerHour * notional
	breakEven, ok := k.calc.CalculateBreakEvenHours(costs, hourlyReturn)
	if !ok || breakEven > k.cfg.MaxBreakEvenDays*24 {
		log.Debug().
			Str("symbol", opp.Symbol).
			Float64("break_even_hours", breakEven).
			Msg("opportunity rejected by cost gate")
		return
	}

	k.logger.RecordOpportunity()
	if k.repo != nil {
		if err := k.repo.SaveOpportunity(ctx, *opp); err != nil {
			log.Warn().Err(err).Msg("opportunity persist failed")
		}
	}

	required := notional / k.cfg.BaseLeverage
	longBalance, err := longAdapter.GetBalance(ctx)
	if err != nil {
		log.Warn().Str("exchange", string(opp.LongExchange)).Err(err).Msg("balance query failed")
		return
	}
	shortBalance, err := shortAdapter.GetBalance(ctx)
	if err != nil {
		log.Warn().Str("exchange", string(opp.ShortExchange)).Err(err).Msg("balance query failed")
		return
	}

	if err := k.balances.AttemptRebalanceForOpportunity(ctx, opp, k.adapters, required, longBalance, shortBalance); err != nil {
		log.Warn().
			Str("symbol", opp.Symbol).
			Err(err).
			Msg("collateral not secured, opportunity skipped")
		return
	}

	log.Info().
		Str("symbol", opp.Symbol).
		Str("long", string(opp.LongExchange)).
		Str("short", string(opp.ShortExchange)).
		Float64("spread_per_hour", opp.SpreadPerHour).
		Float64("notional", notional).
		Float64("break_even_hours", breakEven).
		Msg("opportunity ready for execution")
}

// estimateCosts 双腿开平仓的全部预期成本
func (k *KeeperService) estimateCosts(notional float64, opp *model.FundingOpportunity, longTick, shortTick port.FundingTick) float64 {
	slippage := k.calc.CalculateSlippageCost(notional, longTick.MarkPrice, longTick.MarkPrice, longTick.OpenInterestUSD, domainsvc.OrderTypeLimit) +
		k.calc.CalculateSlippageCost(notional, shortTick.MarkPrice, shortTick.MarkPrice, shortTick.OpenInterestUSD, domainsvc.OrderTypeLimit)
	fees := k.calc.RoundTripFees(notional, opp.LongExchange, opp.ShortExchange, true)
	return slippage + fees
}

// maintainHedgeGroups 校验各交易所的永续/现货对冲组并持久化
func (k *KeeperService) maintainHedgeGroups(ctx context.Context) {
	for exchange, adapter := range k.adapters {
		positions, err := adapter.GetPositions(ctx)
		if err != nil {
			continue
		}

		perps := make(map[string]model.LegPosition)
		spots := make(map[string]model.LegPosition)
		for _, pos := range positions {
			symbol := model.NormalizeSymbol(pos.Symbol)
			switch pos.Kind {
			case model.MarketPerp:
				perps[symbol] = pos
			case model.MarketSpot:
				spots[symbol] = pos
			}
		}

		for symbol, perp := range perps {
			spot, ok := spots[symbol]
			if !ok {
				continue
			}
			group, err := model.NewDeltaNeutralGroup(perp, spot, k.cfg.HedgeTolerance)
			if err != nil {
				log.Warn().Str("exchange", string(exchange)).Str("symbol", symbol).Err(err).Msg("invalid hedge pair")
				continue
			}
			if !group.IsNeutral() {
				log.Warn().
					Str("exchange", string(exchange)).
					Str("symbol", symbol).
					Float64("drift_percent", group.DriftPercent()).
					Msg("hedge group drifted out of tolerance")
			}
			if k.repo != nil {
				if err := k.repo.SaveGroup(ctx, group); err != nil {
					log.Warn().Err(err).Msg("group persist failed")
				}
			}
		}
	}
}

// harvestProfits 累计净利润超过阈值时转出到金库
func (k *KeeperService) harvestProfits(ctx context.Context) {
	if k.treasury == nil {
		return
	}

	metrics := k.logger.GetPerformanceMetrics(k.treasury.DeployedCapital())
	profit := metrics.NetFundingUSD + metrics.TotalRealizedPnLUSD - metrics.TotalTradingCostsUSD
	harvestable := profit - k.harvestedUSD
	if harvestable < harvestMinUSD {
		return
	}

	if err := k.treasury.SendFunds(ctx, harvestable); err != nil {
		log.Warn().Float64("amount", harvestable).Err(err).Msg("profit harvest failed")
		return
	}
	k.harvestedUSD += harvestable
	log.Info().
		Float64("amount", harvestable).
		Float64("total_harvested", k.harvestedUSD).
		Msg("✓ profits harvested to treasury")
}

// HarvestedUSD 已收割的累计利润
func (k *KeeperService) HarvestedUSD() float64 {
	return k.harvestedUSD
}

// Describe 当前配置摘要，供启动日志使用
func (k *KeeperService) Describe() string {
	return fmt.Sprintf("keeper: %d exchanges, min spread %.4f%%/h, min position %.0f USD",
		len(k.adapters), k.cfg.MinSpread.Percent(), k.cfg.MinPositionUSD)
}
