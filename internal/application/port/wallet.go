package port

import "context"

// WalletClient 链上钱包查询
type WalletClient interface {
	// Address 钱包地址（由配置地址或私钥推导）
	Address() string

	// USDCBalance 查询 USDC 余额（USD）
	USDCBalance(ctx context.Context) (float64, error)
}
