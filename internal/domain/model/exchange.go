package model

// Exchange 交易所标识
type Exchange string

const (
	ExchangeHyperliquid Exchange = "HYPERLIQUID"
	ExchangeAster       Exchange = "ASTER"
	ExchangeLighter     Exchange = "LIGHTER"
)

// AllExchanges 默认支持的交易所列表
func AllExchanges() []Exchange {
	return []Exchange{ExchangeHyperliquid, ExchangeAster, ExchangeLighter}
}

func (e Exchange) String() string { return string(e) }
