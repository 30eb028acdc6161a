package monitor

import (
	"fmt"
	"strings"

	appservice "perparb/internal/application/service"
	"perparb/internal/domain/model"
)

const (
	ansiReset    = "\033[0m"
	ansiRed      = "\033[31m"
	ansiGreen    = "\033[32m"
	ansiYellow   = "\033[33m"
	ansiDim      = "\033[2m"
	ansiClearEOL = "\033[K"
)

func colorize(s, c string) string { return c + s + ansiReset }

// Formatter 终端渲染：实时行展示各符号的跨所费率价差，
// 快照行附带绩效汇总。
type Formatter struct {
	// 价差达到此值（小数/小时）时高亮为可操作
	SpreadThreshold float64
}

func NewFormatter(threshold float64) *Formatter {
	return &Formatter{SpreadThreshold: threshold}
}

type RenderMode int

const (
	RenderLive RenderMode = iota
	RenderSnapshot
)

// Render 渲染看板。metrics 可为 nil（实时行一般不带绩效）。
func (f *Formatter) Render(board *RateBoard, metrics *appservice.PerformanceMetrics, mode RenderMode) string {
	rates := board.Rates()

	var sb strings.Builder
	if mode == RenderLive {
		sb.WriteString("\r")
	}

	sb.WriteString(colorize("[PERPARB] ", ansiDim))

	for i, symbol := range board.Symbols() {
		if i > 0 {
			sb.WriteString(colorize("  ||  ", ansiDim))
		}
		sb.WriteString(symbol)

		for _, ex := range model.AllExchanges() {
			byEx, ok := rates[ex]
			if !ok {
				continue
			}
			tick, ok := byEx[symbol]
			if !ok {
				sb.WriteString(" ")
				sb.WriteString(colorize(exchangeLabel(ex)+":--", ansiYellow))
				continue
			}
			col := ansiYellow
			if tick.HourlyRate > 0 {
				col = ansiGreen
			} else if tick.HourlyRate < 0 {
				col = ansiRed
			}
			sb.WriteString(" ")
			sb.WriteString(colorize(fmt.Sprintf("%s:%+.5f%%", exchangeLabel(ex), tick.HourlyRate*100), col))
		}

		spreadStr := "Δ=--"
		col := ansiYellow
		if _, _, spread, ok := board.BestSpread(symbol); ok {
			spreadStr = fmt.Sprintf("Δ=%+.5f%%/h", spread*100)
			if spread >= f.SpreadThreshold {
				col = ansiGreen
			}
		}
		sb.WriteString(" ")
		sb.WriteString(colorize(spreadStr, col))
	}

	if metrics != nil {
		sb.WriteString(colorize("  ||  ", ansiDim))
		sb.WriteString(fmt.Sprintf("net=%+.2f$ est=%.1f%% real=%.1f%% dd=%.1f%% opps=%d",
			metrics.NetFundingUSD,
			metrics.EstimatedAPYPercent,
			metrics.RealizedAPYPercent,
			metrics.MaxDrawdownPercent,
			metrics.OpportunitiesDetected))
	}

	if mode == RenderLive {
		sb.WriteString(ansiClearEOL)
	}
	return sb.String()
}
