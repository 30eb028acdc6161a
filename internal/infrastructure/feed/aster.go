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

// Aster 按 8 小时周期结算，折算为小时费率
const asterFundingIntervalHours = 8.0

// AsterFeed 订阅 <symbol>@markPrice 组合流，消息为 Binance 合约风格。
// 流里没有未平仓量，OpenInterestUSD 置 0 表示未知。
type AsterFeed struct {
	wsURL   string
	symbols []string
	out     chan port.FundingTick
	cancel  context.CancelFunc
}

func NewAsterFeed(wsURL string, symbols []string) *AsterFeed {
	return &AsterFeed{
		wsURL:   strings.TrimSpace(wsURL),
		symbols: symbols,
		out:     make(chan port.FundingTick, 256),
	}
}

func (f *AsterFeed) Name() model.Exchange { return model.ExchangeAster }

func (f *AsterFeed) Ticks() <-chan port.FundingTick { return f.out }

func (f *AsterFeed) Start(ctx context.Context) error {
	if f.wsURL == "" {
		return errors.New("aster ws_url empty")
	}
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.run(runCtx)
	return nil
}

func (f *AsterFeed) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

// streamURL 拼组合流地址：/stream?streams=ethusdt@markPrice/btcusdt@markPrice
func (f *AsterFeed) streamURL() string {
	streams := make([]string, 0, len(f.symbols))
	for _, symbol := range f.symbols {
		base := strings.ToLower(model.NormalizeSymbol(symbol))
		if base == "" {
			continue
		}
		streams = append(streams, base+"usdt@markPrice")
	}
	return strings.TrimSuffix(f.wsURL, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

type asterMarkPriceMsg struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType   string `json:"e"` // markPriceUpdate
		Symbol      string `json:"s"`
		MarkPrice   string `json:"p"`
		FundingRate string `json:"r"`
	} `json:"data"`
}

func (f *AsterFeed) run(ctx context.Context) {
	defer close(f.out)

	url := f.streamURL()
	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, url, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", string(f.Name())).Err(err).Msg("ws dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("feed", string(f.Name())).Msg("ws connected & subscribed")

		err = readLoop(ctx, conn, func(b []byte) {
			var msg asterMarkPriceMsg
			if e := json.Unmarshal(b, &msg); e != nil {
				return
			}
			if msg.Data.EventType != "markPriceUpdate" || msg.Data.Symbol == "" {
				return
			}

			rate, _ := strconv.ParseFloat(msg.Data.FundingRate, 64)
			mark, _ := strconv.ParseFloat(msg.Data.MarkPrice, 64)

			f.out <- port.FundingTick{
				Exchange:   f.Name(),
				Symbol:     strings.ToUpper(msg.Data.Symbol),
				HourlyRate: rate / asterFundingIntervalHours,
				MarkPrice:  mark,
				At:         time.Now(),
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

var _ port.FundingFeed = (*AsterFeed)(nil)
