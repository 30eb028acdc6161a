package feed

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

// LighterFeed 订阅 market_stats/all 频道。Lighter 按小时结算资金费。
// 只透传配置里关心的标的，其余市场丢弃。
type LighterFeed struct {
	wsURL   string
	tracked map[string]struct{} // 归一化标的
	out     chan port.FundingTick
	cancel  context.CancelFunc
}

func NewLighterFeed(wsURL string, symbols []string) *LighterFeed {
	tracked := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		tracked[model.NormalizeSymbol(symbol)] = struct{}{}
	}
	return &LighterFeed{
		wsURL:   strings.TrimSpace(wsURL),
		tracked: tracked,
		out:     make(chan port.FundingTick, 256),
	}
}

func (f *LighterFeed) Name() model.Exchange { return model.ExchangeLighter }

func (f *LighterFeed) Ticks() <-chan port.FundingTick { return f.out }

func (f *LighterFeed) Start(ctx context.Context) error {
	if f.wsURL == "" {
		return errors.New("lighter ws_url empty")
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.run(runCtx)
	return nil
}

func (f *LighterFeed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

type lighterSubReq struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type lighterMarketStats struct {
	Symbol          string `json:"symbol"`
	FundingRate     string `json:"current_funding_rate"`
	MarkPrice       string `json:"mark_price"`
	OpenInterestUSD string `json:"open_interest"`
}

type lighterStatsMsg struct {
	Type        string                        `json:"type"`
	Channel     string                        `json:"channel"`
	MarketStats map[string]lighterMarketStats `json:"market_stats"`
}

func (f *LighterFeed) run(ctx context.Context) {
	defer close(f.out)

	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, f.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", string(f.Name())).Err(err).Msg("ws dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		sub := lighterSubReq{Type: "subscribe", Channel: "market_stats/all"}
		if err := conn.WriteJSON(sub); err != nil {
			_ = conn.Close()
			log.Error().Str("feed", string(f.Name())).Err(err).Msg("subscribe failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("feed", string(f.Name())).Msg("ws connected & subscribed")

		err = readLoop(ctx, conn, func(b []byte) {
			var msg lighterStatsMsg
			if e := json.Unmarshal(b, &msg); e != nil {
				return
			}
			if len(msg.MarketStats) == 0 {
				return
			}

			for _, stats := range msg.MarketStats {
				symbol := strings.ToUpper(strings.TrimSpace(stats.Symbol))
				if symbol == "" {
					continue
				}
				if _, ok := f.tracked[model.NormalizeSymbol(symbol)]; !ok {
					continue
				}

				rate, _ := strconv.ParseFloat(stats.FundingRate, 64)
				mark, _ := strconv.ParseFloat(stats.MarkPrice, 64)
				oi, _ := strconv.ParseFloat(stats.OpenInterestUSD, 64)

				f.out <- port.FundingTick{
					Exchange:        f.Name(),
					Symbol:          symbol,
					HourlyRate:      rate,
					MarkPrice:       mark,
					OpenInterestUSD: oi,
					At:              time.Now(),
				}
			}
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", string(f.Name())).Err(err).Msg("ws disconnected, reconnecting")
		time.Sleep(backoff)
		backoff = minDur(backoff*2, maxBackoff)
	}
}

var _ port.FundingFeed = (*LighterFeed)(nil)
