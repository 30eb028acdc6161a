package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"perparb/internal/application/port"
	"perparb/internal/domain/model"
)

// Client Hyperliquid /info REST 客户端，只读：账户状态、持仓、
// 资金费历史。出入金走链上，不在这里发起。
type Client struct {
	baseURL string
	user    string // 钱包地址
	http    *http.Client

	mu           sync.Mutex
	tradingCosts float64 // 从成交记录累计的手续费
}

func NewClient(restURL, userAddress string) *Client {
	if restURL == "" {
		restURL = "https://api.hyperliquid.xyz"
	}
	return &Client{
		baseURL: restURL,
		user:    userAddress,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Name() model.Exchange { return model.ExchangeHyperliquid }

func (c *Client) post(ctx context.Context, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("hyperliquid api error: %d %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type clearinghouseState struct {
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
	} `json:"marginSummary"`
	Withdrawable   string `json:"withdrawable"`
	AssetPositions []struct {
		Position struct {
			Coin       string `json:"coin"`
			Szi        string `json:"szi"`
			EntryPx    string `json:"entryPx"`
			MarkPx     string `json:"markPx"`
			Unrealized string `json:"unrealizedPnl"`
		} `json:"position"`
	} `json:"assetPositions"`
}

func (c *Client) state(ctx context.Context) (*clearinghouseState, error) {
	var st clearinghouseState
	err := c.post(ctx, map[string]any{"type": "clearinghouseState", "user": c.user}, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	st, err := c.state(ctx)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(st.Withdrawable, 64)
}

func (c *Client) GetEquity(ctx context.Context) (float64, error) {
	st, err := c.state(ctx)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(st.MarginSummary.AccountValue, 64)
}

func (c *Client) GetPositions(ctx context.Context) ([]model.LegPosition, error) {
	st, err := c.state(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var positions []model.LegPosition
	for _, ap := range st.AssetPositions {
		szi, _ := strconv.ParseFloat(ap.Position.Szi, 64)
		if szi == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(ap.Position.EntryPx, 64)
		mark, _ := strconv.ParseFloat(ap.Position.MarkPx, 64)

		side := model.SideLong
		if szi < 0 {
			side = model.SideShort
		}
		positions = append(positions, model.LegPosition{
			Exchange:   model.ExchangeHyperliquid,
			Symbol:     ap.Position.Coin,
			Kind:       model.MarketPerp,
			Side:       side,
			Size:       math.Abs(szi),
			EntryPrice: entry,
		}.WithMarkPrice(mark, now))
	}
	return positions, nil
}

// Hyperliquid 入金是向桥合约转 USDC，没有 API 入口
func (c *Client) DepositExternal(ctx context.Context, amountUSD float64) error {
	return fmt.Errorf("hyperliquid deposits are on-chain only, send %.2f USDC to the bridge", amountUSD)
}

func (c *Client) WithdrawExternal(ctx context.Context, amountUSD float64, destination string) error {
	return fmt.Errorf("hyperliquid withdrawal requires a signed on-chain action")
}

type userFundingEntry struct {
	Time  int64 `json:"time"`
	Delta struct {
		Type string `json:"type"` // "funding"
		Usdc string `json:"usdc"`
	} `json:"delta"`
}

// FetchAllFundingPayments 拉取资金费历史，顺带刷新手续费累计
func (c *Client) FetchAllFundingPayments(ctx context.Context, days int) ([]model.FundingPayment, error) {
	start := time.Now().AddDate(0, 0, -days).UnixMilli()

	var entries []userFundingEntry
	err := c.post(ctx, map[string]any{
		"type":      "userFunding",
		"user":      c.user,
		"startTime": start,
	}, &entries)
	if err != nil {
		return nil, err
	}

	payments := make([]model.FundingPayment, 0, len(entries))
	for _, e := range entries {
		if e.Delta.Type != "funding" {
			continue
		}
		amount, err := strconv.ParseFloat(e.Delta.Usdc, 64)
		if err != nil {
			continue
		}
		payments = append(payments, model.FundingPayment{
			Exchange: model.ExchangeHyperliquid,
			Amount:   amount,
			At:       time.UnixMilli(e.Time),
		})
	}

	c.refreshTradingCosts(ctx, start)
	return payments, nil
}

type userFill struct {
	Fee string `json:"fee"`
}

func (c *Client) refreshTradingCosts(ctx context.Context, startMs int64) {
	var fills []userFill
	err := c.post(ctx, map[string]any{
		"type":      "userFillsByTime",
		"user":      c.user,
		"startTime": startMs,
	}, &fills)
	if err != nil {
		return // 保留上次的值
	}

	var total float64
	for _, f := range fills {
		fee, _ := strconv.ParseFloat(f.Fee, 64)
		total += fee
	}
	c.mu.Lock()
	c.tradingCosts = total
	c.mu.Unlock()
}

func (c *Client) GetTotalTradingCosts() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tradingCosts
}

// GetCombinedSummary 基于费用历史计算对账汇总
func (c *Client) GetCombinedSummary(ctx context.Context, days int, capitalDeployedUSD float64) (*model.FundingSummary, error) {
	payments, err := c.FetchAllFundingPayments(ctx, days)
	if err != nil {
		return nil, err
	}
	return BuildSummary(payments, c.GetTotalTradingCosts(), days, capitalDeployedUSD), nil
}

// BuildSummary 从支付流水聚合出汇总指标。capital 为 0 时年化置 0。
func BuildSummary(payments []model.FundingPayment, tradingCosts float64, days int, capitalDeployedUSD float64) *model.FundingSummary {
	s := &model.FundingSummary{TotalDays: days}
	if len(payments) == 0 {
		return s
	}

	byDay := make(map[string]float64)
	for _, p := range payments {
		s.NetFundingUSD += p.Amount
		byDay[p.At.UTC().Format("2006-01-02")] += p.Amount
	}
	for _, dayNet := range byDay {
		if dayNet > 0 {
			s.ProfitableDays++
		}
	}
	if len(byDay) > 0 {
		s.WinRate = float64(s.ProfitableDays) / float64(len(byDay))
	}
	if days > 0 {
		s.DailyAverage = s.NetFundingUSD / float64(days)
	}
	if capitalDeployedUSD > 0 {
		s.AnnualizedAPY = s.DailyAverage / capitalDeployedUSD * 365 * 100
		s.RealAPY = s.AnnualizedAPY
	}
	if hourly := s.DailyAverage / 24; hourly > 0 && tradingCosts > 0 {
		s.BreakEvenHours = tradingCosts / hourly
	}
	return s
}

var (
	_ port.ExchangeAdapter      = (*Client)(nil)
	_ port.FundingPaymentSource = (*Client)(nil)
)
