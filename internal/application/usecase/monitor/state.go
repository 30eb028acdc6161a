package monitor

import (
	"strings"
	"sync"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

// RateBoard 资金费率看板：按归一化符号保存各交易所的最新费率推送。
// 决策周期到来时把整板快照交给 KeeperService。
type RateBoard struct {
	mu sync.Mutex

	order []string // 渲染顺序，配置中的符号序
	rates map[model.Exchange]map[string]port.FundingTick
}

// NewRateBoard 创建看板，只跟踪给定符号
func NewRateBoard(symbols []string) *RateBoard {
	order := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		n := model.NormalizeSymbol(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		order = append(order, n)
	}
	return &RateBoard{
		order: order,
		rates: make(map[model.Exchange]map[string]port.FundingTick),
	}
}

// Symbols 跟踪的符号列表
func (b *RateBoard) Symbols() []string {
	return b.order
}

// Apply 应用一次费率推送。未跟踪的符号或费率未变化时返回 false。
func (b *RateBoard) Apply(t port.FundingTick) bool {
	symbol := model.NormalizeSymbol(t.Symbol)
	if symbol == "" || !b.tracked(symbol) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	byEx := b.rates[t.Exchange]
	if byEx == nil {
		byEx = make(map[string]port.FundingTick)
		b.rates[t.Exchange] = byEx
	}

	prev, had := byEx[symbol]
	byEx[symbol] = t
	return !had || prev.HourlyRate != t.HourlyRate
}

func (b *RateBoard) tracked(symbol string) bool {
	for _, s := range b.order {
		if s == symbol {
			return true
		}
	}
	return false
}

// Rates 整板快照副本，键为交易所 → 归一化符号
func (b *RateBoard) Rates() map[model.Exchange]map[string]port.FundingTick {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[model.Exchange]map[string]port.FundingTick, len(b.rates))
	for ex, byEx := range b.rates {
		m := make(map[string]port.FundingTick, len(byEx))
		for s, t := range byEx {
			m[s] = t
		}
		out[ex] = m
	}
	return out
}

// RateFor 查询某交易所某符号的最新每小时费率
func (b *RateBoard) RateFor(exchange model.Exchange, symbol string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byEx := b.rates[exchange]
	if byEx == nil {
		return 0, false
	}
	t, ok := byEx[model.NormalizeSymbol(symbol)]
	if !ok {
		return 0, false
	}
	return t.HourlyRate, true
}

// BestSpread 某符号当前的最优跨所价差：做多最低费率所、做空最高费率所。
// 少于两个交易所有报价时 ok 为 false。
func (b *RateBoard) BestSpread(symbol string) (long, short model.Exchange, spread float64, ok bool) {
	n := model.NormalizeSymbol(symbol)

	b.mu.Lock()
	defer b.mu.Unlock()

	first := true
	var lowRate, highRate float64
	for ex, byEx := range b.rates {
		t, has := byEx[n]
		if !has {
			continue
		}
		if first {
			long, short = ex, ex
			lowRate, highRate = t.HourlyRate, t.HourlyRate
			first = false
			continue
		}
		if t.HourlyRate < lowRate {
			lowRate = t.HourlyRate
			long = ex
		}
		if t.HourlyRate > highRate {
			highRate = t.HourlyRate
			short = ex
		}
	}
	if first || long == short {
		return "", "", 0, false
	}
	return long, short, highRate - lowRate, true
}

// exchangeLabel 渲染用的交易所缩写
func exchangeLabel(ex model.Exchange) string {
	s := string(ex)
	if len(s) > 2 {
		s = s[:2]
	}
	return strings.ToUpper(s)
}
