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

// HyperliquidFeed 订阅 activeAssetCtx 频道获取每小时资金费率、
// 标记价格和未平仓量。Hyperliquid 按小时结算，费率无需折算。
type HyperliquidFeed struct {
	wsURL   string
	symbols []string
	out     chan port.FundingTick
	cancel  context.CancelFunc
}

func NewHyperliquidFeed(wsURL string, symbols []string) *HyperliquidFeed {
	return &HyperliquidFeed{
		wsURL:   strings.TrimSpace(wsURL),
		symbols: symbols,
		out:     make(chan port.FundingTick, 256),
	}
}

func (f *HyperliquidFeed) Name() model.Exchange { return model.ExchangeHyperliquid }

func (f *HyperliquidFeed) Ticks() <-chan port.FundingTick { return f.out }

func (f *HyperliquidFeed) Start(ctx context.Context) error {
	if f.wsURL == "" {
		return errors.New("hyperliquid ws_url empty")
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.run(runCtx)
	return nil
}

func (f *HyperliquidFeed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

type hlSubscription struct {
	Method       string `json:"method"`
	Subscription struct {
		Type string `json:"type"`
		Coin string `json:"coin"`
	} `json:"subscription"`
}

type hlAssetCtxMsg struct {
	Channel string `json:"channel"`
	Data    struct {
		Coin string `json:"coin"`
		Ctx  struct {
			Funding      string `json:"funding"`
			OpenInterest string `json:"openInterest"`
			MarkPx       string `json:"markPx"`
		} `json:"ctx"`
	} `json:"data"`
}

func (f *HyperliquidFeed) run(ctx context.Context) {
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

		// 每个标的一条订阅
		subErr := false
		for _, symbol := range f.symbols {
			var sub hlSubscription
			sub.Method = "subscribe"
			sub.Subscription.Type = "activeAssetCtx"
			sub.Subscription.Coin = model.NormalizeSymbol(symbol)
			if err := conn.WriteJSON(sub); err != nil {
				subErr = true
				break
			}
		}
		if subErr {
			_ = conn.Close()
			log.Error().Str("feed", string(f.Name())).Msg("subscribe failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("feed", string(f.Name())).Msg("ws connected & subscribed")

		err = readLoop(ctx, conn, func(b []byte) {
			var msg hlAssetCtxMsg
			if e := json.Unmarshal(b, &msg); e != nil {
				return
			}
			if msg.Channel != "activeAssetCtx" || msg.Data.Coin == "" {
				return
			}

			rate, _ := strconv.ParseFloat(msg.Data.Ctx.Funding, 64)
			mark, _ := strconv.ParseFloat(msg.Data.Ctx.MarkPx, 64)
			oi, _ := strconv.ParseFloat(msg.Data.Ctx.OpenInterest, 64)

			f.out <- port.FundingTick{
				Exchange:        f.Name(),
				Symbol:          strings.ToUpper(msg.Data.Coin),
				HourlyRate:      rate,
				MarkPrice:       mark,
				OpenInterestUSD: oi * mark,
				At:              time.Now(),
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

var _ port.FundingFeed = (*HyperliquidFeed)(nil)
