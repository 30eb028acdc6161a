package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"perparb/internal/application/port"
	"perparb/internal/infrastructure/config"
)

// USDC 合约 6 位小数
const usdcDecimals = -6

// balanceOf(address) 选择子
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Client 链上钱包：通过 RPC 读 USDC 余额，地址来自配置或私钥推导。
// 只读，不发交易。
type Client struct {
	eth     *ethclient.Client
	address common.Address
	usdc    common.Address
	timeout time.Duration
}

func New(cfg *config.Config) (*Client, error) {
	wc := cfg.Wallet
	if wc.RPCURL == "" {
		return nil, errors.New("wallet rpc_url not configured")
	}

	eth, err := ethclient.Dial(wc.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	address, err := resolveAddress(wc.Address, wc.PrivateKeyEnv)
	if err != nil {
		eth.Close()
		return nil, err
	}

	usdc := common.HexToAddress(wc.USDCContract)
	if wc.USDCContract == "" {
		eth.Close()
		return nil, errors.New("wallet usdc_contract not configured")
	}

	log.Info().Str("address", address.Hex()).Msg("✓ wallet client initialized")
	return &Client{
		eth:     eth,
		address: address,
		usdc:    usdc,
		timeout: 10 * time.Second,
	}, nil
}

// resolveAddress 优先使用显式地址，否则从私钥环境变量推导
func resolveAddress(explicit, privateKeyEnv string) (common.Address, error) {
	if explicit != "" {
		if !common.IsHexAddress(explicit) {
			return common.Address{}, fmt.Errorf("invalid wallet address %q", explicit)
		}
		return common.HexToAddress(explicit), nil
	}

	if privateKeyEnv == "" {
		return common.Address{}, errors.New("wallet needs address or private_key_env")
	}
	raw := strings.TrimPrefix(strings.TrimSpace(os.Getenv(privateKeyEnv)), "0x")
	if raw == "" {
		return common.Address{}, fmt.Errorf("env %s is empty", privateKeyEnv)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key in %s: %w", privateKeyEnv, err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func (c *Client) Address() string { return c.address.Hex() }

// USDCBalance 读取 USDC 余额，eth_call balanceOf(address)
func (c *Client) USDCBalance(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(c.address.Bytes(), 32)...)

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.usdc, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("balanceOf call: %w", err)
	}
	if len(out) == 0 {
		return 0, errors.New("empty balanceOf response")
	}

	raw := new(big.Int).SetBytes(out)
	return decimal.NewFromBigInt(raw, usdcDecimals).InexactFloat64(), nil
}

func (c *Client) Close() { c.eth.Close() }

var _ port.WalletClient = (*Client)(nil)
