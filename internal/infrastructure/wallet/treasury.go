package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"perparb/internal/application/port"
)

// LedgerTreasury 金库记账：记录应划转到金库地址的利润。
// 引擎只做决策不发交易，真实划转由运营方按账本执行。
type LedgerTreasury struct {
	address  common.Address
	deployed float64

	mu      sync.Mutex
	sentUSD float64
}

func NewLedgerTreasury(address string, deployedCapitalUSD float64) (*LedgerTreasury, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.New("invalid treasury address")
	}
	return &LedgerTreasury{
		address:  common.HexToAddress(address),
		deployed: deployedCapitalUSD,
	}, nil
}

func (t *LedgerTreasury) DeployedCapital() float64 { return t.deployed }

func (t *LedgerTreasury) SendFunds(ctx context.Context, amountUSD float64) error {
	if amountUSD <= 0 {
		return errors.New("transfer amount must be positive")
	}
	t.mu.Lock()
	t.sentUSD += amountUSD
	total := t.sentUSD
	t.mu.Unlock()

	log.Info().
		Str("treasury", t.address.Hex()).
		Float64("amount_usd", amountUSD).
		Float64("total_usd", total).
		Msg("treasury transfer recorded")
	return nil
}

// SentUSD 累计已记账的划转金额
func (t *LedgerTreasury) SentUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sentUSD
}

var _ port.Treasury = (*LedgerTreasury)(nil)
