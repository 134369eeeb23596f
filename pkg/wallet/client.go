// Package wallet reads the trading wallet's on-chain balances on Polygon.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	PolygonUSDC        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	PolygonCTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	DefaultRPCURL = "https://polygon-rpc.com"

	usdcDecimals = 6
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// Balances holds on-chain balances. USDC amounts are in dollars.
type Balances struct {
	MATIC         *big.Int // wei
	USDC          decimal.Decimal
	USDCAllowance decimal.Decimal
}

// Client reads balances over JSON-RPC.
type Client struct {
	rpcURL  string
	token   common.Address
	spender common.Address
	erc20   abi.ABI
	logger  *zap.Logger
}

// NewClient creates a wallet client for the given RPC endpoint.
func NewClient(rpcURL string, logger *zap.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, errors.New("rpcURL cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	return &Client{
		rpcURL:  rpcURL,
		token:   common.HexToAddress(PolygonUSDC),
		spender: common.HexToAddress(PolygonCTFExchange),
		erc20:   parsed,
		logger:  logger,
	}, nil
}

// GetBalances fetches MATIC, USDC and the USDC allowance granted to the exchange.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (*Balances, error) {
	start := time.Now()
	defer func() { BalanceFetchDuration.Observe(time.Since(start).Seconds()) }()

	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		BalanceFetchErrors.Inc()
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	matic, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		BalanceFetchErrors.Inc()
		return nil, fmt.Errorf("get MATIC balance: %w", err)
	}

	usdc, err := c.call(ctx, client, "balanceOf", address)
	if err != nil {
		BalanceFetchErrors.Inc()
		return nil, fmt.Errorf("get USDC balance: %w", err)
	}

	allowance, err := c.call(ctx, client, "allowance", address, c.spender)
	if err != nil {
		BalanceFetchErrors.Inc()
		return nil, fmt.Errorf("get USDC allowance: %w", err)
	}

	b := &Balances{
		MATIC:         matic,
		USDC:          FromUSDCUnits(usdc),
		USDCAllowance: FromUSDCUnits(allowance),
	}

	maticFloat, _ := new(big.Float).Quo(new(big.Float).SetInt(matic), big.NewFloat(1e18)).Float64()
	MATICBalance.Set(maticFloat)
	USDCBalance.Set(b.USDC.InexactFloat64())
	USDCAllowance.Set(b.USDCAllowance.InexactFloat64())

	c.logger.Debug("wallet-balances-fetched",
		zap.String("address", address.Hex()),
		zap.String("usdc", b.USDC.StringFixed(2)),
		zap.String("allowance", b.USDCAllowance.StringFixed(2)))
	return b, nil
}

func (c *Client) call(ctx context.Context, client *ethclient.Client, method string, args ...interface{}) (*big.Int, error) {
	data, err := c.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return new(big.Int).SetBytes(result), nil
}

// FromUSDCUnits converts 6-decimal token units to dollars.
func FromUSDCUnits(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -usdcDecimals)
}
