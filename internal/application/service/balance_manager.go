package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"

	"github.com/rs/zerolog/log"
)

const (
	// 单笔入金下限，低于此金额视为粉尘，跳过
	depositFloorUSD = 5.0

	// 连续入金之间的间隔，避免触发交易所限频
	defaultDepositPause = 2 * time.Second

	// 缺口小于此值视为已覆盖
	collateralEpsilon = 1e-6
)

// InsufficientCollateralError 三级调拨后仍无法覆盖双腿保证金缺口。
// 调用方收到此错误后不得开仓：单腿持仓破坏中性对冲，暴露方向性风险。
type InsufficientCollateralError struct {
	LongExchange  model.Exchange
	ShortExchange model.Exchange
	LongDeficit   float64
	ShortDeficit  float64
}

func (e *InsufficientCollateralError) Error() string {
	return fmt.Sprintf("insufficient collateral: long %s short %.2f USD, short %s short %.2f USD",
		e.LongExchange, e.LongDeficit, e.ShortExchange, e.ShortDeficit)
}

// BalanceManager 资金管理器 - 钱包余额巡检、入金分配、跨交易所保证金调拨
type BalanceManager struct {
	wallet     port.WalletClient // 未配置时为 nil，链上巡检功能关闭
	rebalancer port.Rebalancer
	tracker    port.ProfitTracker // 构造后注入一次，之后只读

	depositPause time.Duration
	sleep        func(time.Duration) // 可注入，测试中替换为空操作
}

// NewBalanceManager 创建资金管理器
func NewBalanceManager(wallet port.WalletClient, rebalancer port.Rebalancer) *BalanceManager {
	return &BalanceManager{
		wallet:       wallet,
		rebalancer:   rebalancer,
		depositPause: defaultDepositPause,
		sleep:        time.Sleep,
	}
}

// SetProfitTracker 注入利润追踪器。
// 构造时注入会形成循环依赖（追踪器本身依赖资金数据），所以放在装配完成后。
func (m *BalanceManager) SetProfitTracker(tracker port.ProfitTracker) {
	m.tracker = tracker
}

// GetWalletUSDCBalance 查询链上钱包 USDC 余额。
// 钱包未配置时返回 (0, nil)：功能关闭不是错误。
// RPC 瞬时失败返回错误由调用方记录后跳过本轮，不中断调度。
func (m *BalanceManager) GetWalletUSDCBalance(ctx context.Context) (float64, error) {
	if m.wallet == nil {
		return 0, nil
	}
	return m.wallet.USDCBalance(ctx)
}

// CheckAndDepositWalletFunds 将钱包余额等额分配入金到各交易所。
// 每份低于 5 美元时全部跳过。入金失败不扣减钱包侧余额：
// 资金仍在钱包里，下一轮重试；若错误表明该交易所只支持链上入金，
// 同样原地保留，该路径永久不可用但资金是安全的。
// 返回实际入金总额。
func (m *BalanceManager) CheckAndDepositWalletFunds(ctx context.Context, adapters map[model.Exchange]port.ExchangeAdapter, exchanges []model.Exchange) (float64, error) {
	if len(exchanges) == 0 {
		return 0, nil
	}

	balance, err := m.GetWalletUSDCBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("wallet balance check failed: %w", err)
	}
	if balance <= 0 {
		return 0, nil
	}

	share := balance / float64(len(exchanges))
	if share < depositFloorUSD {
		log.Debug().
			Float64("wallet_balance", balance).
			Float64("per_exchange", share).
			Msg("wallet funds below deposit floor, skipping")
		return 0, nil
	}

	deposited := 0.0
	for i, exchange := range exchanges {
		adapter, ok := adapters[exchange]
		if !ok {
			log.Warn().Str("exchange", string(exchange)).Msg("no adapter for deposit target")
			continue
		}

		if err := adapter.DepositExternal(ctx, share); err != nil {
			if isOnChainOnlyDeposit(err) {
				log.Warn().
					Str("exchange", string(exchange)).
					Err(err).
					Msg("exchange requires on-chain deposit, funds stay in wallet")
			} else {
				log.Warn().
					Str("exchange", string(exchange)).
					Float64("amount", share).
					Err(err).
					Msg("deposit failed, will retry next cycle")
			}
			continue
		}

		deposited += share
		log.Info().
			Str("exchange", string(exchange)).
			Float64("amount", share).
			Msg("deposited wallet funds")

		if i < len(exchanges)-1 {
			m.sleep(m.depositPause)
		}
	}

	return deposited, nil
}

// isOnChainOnlyDeposit 判断入金错误是否表示该交易所不支持 API 入金
func isOnChainOnlyDeposit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") ||
		strings.Contains(msg, "on-chain") ||
		strings.Contains(msg, "onchain")
}

// GetDeployableCapital 获取某交易所可部署资金。
// 利润追踪器的估算是建议性的，可能滞后；取 min(实际权益, 估算值)，
// 绝不让系统以为自己的钱比实际更多。追踪器缺失或出错时回退到全部权益：
// 账务细节不可用不能阻止交易。
func (m *BalanceManager) GetDeployableCapital(ctx context.Context, adapter port.ExchangeAdapter) (float64, error) {
	equity, err := adapter.GetEquity(ctx)
	if err != nil {
		return 0, fmt.Errorf("equity query failed for %s: %w", adapter.Name(), err)
	}

	if m.tracker == nil {
		return equity, nil
	}

	estimate, err := m.tracker.GetDeployableCapital(adapter.Name())
	if err != nil {
		log.Warn().
			Str("exchange", string(adapter.Name())).
			Err(err).
			Msg("profit tracker unavailable, using full equity")
		return equity, nil
	}

	return math.Min(equity, estimate), nil
}

// AttemptRebalanceForOpportunity 为一次套利机会凑齐双腿保证金，三级回退：
//  1. 闲置交易所：未参与本次机会的交易所按双腿缺口比例分配其余额
//  2. 腿间互转：一腿超额、另一腿不足时直接互转
//  3. 钱包补足：钱包余额足以覆盖剩余缺口时直接入金到缺口腿
//
// 入口先做幂等检查：双腿都已达标则不做任何转账直接成功。
// 三级全部用尽仍有缺口时返回 *InsufficientCollateralError，带双腿剩余缺口。
func (m *BalanceManager) AttemptRebalanceForOpportunity(
	ctx context.Context,
	opp *model.FundingOpportunity,
	adapters map[model.Exchange]port.ExchangeAdapter,
	requiredCollateral float64,
	longBalance, shortBalance float64,
) error {
	longDeficit := math.Max(0, requiredCollateral-longBalance)
	shortDeficit := math.Max(0, requiredCollateral-shortBalance)
	if longDeficit < collateralEpsilon && shortDeficit < collateralEpsilon {
		return nil
	}

	longAdapter, hasLong := adapters[opp.LongExchange]
	shortAdapter, hasShort := adapters[opp.ShortExchange]
	if !hasLong || !hasShort {
		return fmt.Errorf("missing adapter for opportunity legs %s/%s", opp.LongExchange, opp.ShortExchange)
	}

	log.Info().
		Str("symbol", opp.Symbol).
		Float64("long_deficit", longDeficit).
		Float64("short_deficit", shortDeficit).
		Msg("attempting collateral rebalance")

	// 第一级：闲置交易所按缺口比例分配
	for exchange, adapter := range adapters {
		if longDeficit < collateralEpsilon && shortDeficit < collateralEpsilon {
			break
		}
		if exchange == opp.LongExchange || exchange == opp.ShortExchange {
			continue
		}

		free, err := adapter.GetBalance(ctx)
		if err != nil {
			log.Warn().Str("exchange", string(exchange)).Err(err).Msg("idle balance query failed, skipping")
			continue
		}
		if free <= 0 {
			continue
		}

		total := longDeficit + shortDeficit
		toLong := math.Min(longDeficit, free*longDeficit/total)
		toShort := math.Min(shortDeficit, free*shortDeficit/total)

		if toLong > collateralEpsilon {
			if err := m.rebalancer.TransferBetweenExchanges(ctx, exchange, opp.LongExchange, toLong, adapter, longAdapter); err != nil {
				log.Warn().Str("from", string(exchange)).Str("to", string(opp.LongExchange)).Err(err).Msg("idle transfer failed")
			} else {
				longDeficit -= toLong
				longBalance += toLong
			}
		}
		if toShort > collateralEpsilon {
			if err := m.rebalancer.TransferBetweenExchanges(ctx, exchange, opp.ShortExchange, toShort, adapter, shortAdapter); err != nil {
				log.Warn().Str("from", string(exchange)).Str("to", string(opp.ShortExchange)).Err(err).Msg("idle transfer failed")
			} else {
				shortDeficit -= toShort
				shortBalance += toShort
			}
		}
	}

	// 第二级：腿间互转
	if longDeficit >= collateralEpsilon && shortBalance > requiredCollateral {
		amount := math.Min(longDeficit, shortBalance-requiredCollateral)
		if err := m.rebalancer.TransferBetweenExchanges(ctx, opp.ShortExchange, opp.LongExchange, amount, shortAdapter, longAdapter); err != nil {
			log.Warn().Err(err).Msg("short-to-long transfer failed")
		} else {
			longDeficit -= amount
			shortBalance -= amount
		}
	}
	if shortDeficit >= collateralEpsilon && longBalance > requiredCollateral {
		amount := math.Min(shortDeficit, longBalance-requiredCollateral)
		if err := m.rebalancer.TransferBetweenExchanges(ctx, opp.LongExchange, opp.ShortExchange, amount, longAdapter, shortAdapter); err != nil {
			log.Warn().Err(err).Msg("long-to-short transfer failed")
		} else {
			shortDeficit -= amount
			longBalance -= amount
		}
	}

	// 第三级：钱包补足
	remaining := longDeficit + shortDeficit
	if remaining >= collateralEpsilon {
		walletBalance, err := m.GetWalletUSDCBalance(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("wallet balance check failed during rebalance")
		} else if walletBalance >= remaining {
			if longDeficit >= collateralEpsilon {
				if err := longAdapter.DepositExternal(ctx, longDeficit); err != nil {
					log.Warn().Str("exchange", string(opp.LongExchange)).Err(err).Msg("wallet top-up failed")
				} else {
					longDeficit = 0
				}
			}
			if shortDeficit >= collateralEpsilon {
				if err := shortAdapter.DepositExternal(ctx, shortDeficit); err != nil {
					log.Warn().Str("exchange", string(opp.ShortExchange)).Err(err).Msg("wallet top-up failed")
				} else {
					shortDeficit = 0
				}
			}
		}
	}

	if longDeficit >= collateralEpsilon || shortDeficit >= collateralEpsilon {
		return &InsufficientCollateralError{
			LongExchange:  opp.LongExchange,
			ShortExchange: opp.ShortExchange,
			LongDeficit:   longDeficit,
			ShortDeficit:  shortDeficit,
		}
	}
	return nil
}
