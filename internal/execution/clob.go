package execution

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultCLOBURL  = "https://clob.polymarket.com"
	polygonChainID  = 137
	zeroAddress     = "0x0000000000000000000000000000000000000000"
	orderPath       = "/order"
	usdcDecimals    = 6
	defaultHTTPWait = 30 * time.Second
)

// CLOBPlacerConfig holds credentials for live order placement.
type CLOBPlacerConfig struct {
	BaseURL       string
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string
	Address       string
	ProxyAddress  string
	SignatureType int
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// CLOBPlacer signs EIP-712 orders and submits them to the Polymarket CLOB.
type CLOBPlacer struct {
	baseURL       string
	apiKey        string
	secret        []byte
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string
	maker         string
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewCLOBPlacer creates a live order placer.
func NewCLOBPlacer(cfg *CLOBPlacerConfig) (*CLOBPlacer, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" || cfg.Secret == "" || cfg.Passphrase == "" {
		return nil, errors.New("api credentials are required for live trading")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	// The secret is URL-safe base64.
	secret, err := base64.URLEncoding.DecodeString(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	address := cfg.Address
	if address == "" {
		pub, _ := privateKey.Public().(*ecdsa.PublicKey)
		address = crypto.PubkeyToAddress(*pub).Hex()
	}
	maker := address
	if cfg.ProxyAddress != "" {
		maker = cfg.ProxyAddress
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultCLOBURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPWait}
	}

	return &CLOBPlacer{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		secret:        secret,
		passphrase:    cfg.Passphrase,
		privateKey:    privateKey,
		address:       address,
		maker:         maker,
		signatureType: model.SignatureType(cfg.SignatureType),
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
		httpClient:    httpClient,
		logger:        cfg.Logger,
	}, nil
}

// Mode reports live.
func (c *CLOBPlacer) Mode() Mode {
	return ModeLive
}

// Address returns the signer (EOA) address.
func (c *CLOBPlacer) Address() string {
	return c.address
}

// MakerAddress returns the funding address: the proxy wallet when configured, the EOA otherwise.
func (c *CLOBPlacer) MakerAddress() string {
	return c.maker
}

// PlaceOrder signs a GTC BUY order and submits it.
func (c *CLOBPlacer) PlaceOrder(ctx context.Context, order Order) (*OrderResult, error) {
	if order.TokenID == "" {
		return nil, types.NewPermanentError(types.ErrCodeInvalidLeg, "missing token id for "+order.MarketID)
	}
	if !order.Price.IsPositive() || !order.Shares.IsPositive() {
		return nil, types.NewPermanentError(types.ErrCodeInvalidLeg, "order price and shares must be positive")
	}

	signed, err := c.orderBuilder.BuildSignedOrder(c.privateKey, &model.OrderData{
		Maker:         c.maker,
		Taker:         zeroAddress,
		TokenId:       order.TokenID,
		MakerAmount:   rawAmount(order.Amount()),
		TakerAmount:   rawAmount(order.Shares),
		Side:          model.BUY,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}, model.CTFExchange)
	if err != nil {
		return nil, types.NewPermanentError(types.ErrCodeRejected, fmt.Sprintf("build order: %v", err))
	}

	body, err := json.Marshal(types.OrderSubmissionRequest{
		Order:     toJSON(signed),
		Owner:     c.apiKey,
		OrderType: "GTC",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.submit(ctx, body)
	if err != nil {
		return nil, err
	}

	c.logger.Info("live-order-placed",
		zap.String("order-id", resp.OrderID),
		zap.String("status", resp.Status),
		zap.String("market-id", order.MarketID),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.String("shares", order.Shares.String()))

	return &OrderResult{OrderID: resp.OrderID, Status: resp.Status, Price: order.Price, Shares: order.Shares}, nil
}

func (c *CLOBPlacer) submit(ctx context.Context, body []byte) (*types.OrderSubmissionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+orderPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", c.sign(timestamp, http.MethodPost, orderPath, body))
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)
	req.Header.Set("POLY_ADDRESS", c.address)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, types.NewTransientError(types.ErrCodeTimeout, err)
		}
		return nil, types.NewTransientError(types.ErrCodeNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewTransientError(types.ErrCodeNetwork, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, types.NewTransientError(types.ErrCodeRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, types.NewTransientError(types.ErrCodeServer, fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	var out types.OrderSubmissionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, types.NewPermanentError(types.ErrCodeRejected, fmt.Sprintf("status %d: %s", resp.StatusCode, raw))
		}
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !out.Success {
		return nil, classifyRejection(out.ErrorMsg)
	}
	return &out, nil
}

// sign computes the L2 HMAC header over timestamp + method + path + body.
func (c *CLOBPlacer) sign(timestamp, method, path string, body []byte) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(timestamp + method + path))
	h.Write(body)
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

var knownCodes = []string{
	types.ErrInvalidMinTickSize,
	types.ErrNotEnoughBalance,
	types.ErrFOKNotFilled,
	types.ErrMarketNotReady,
	types.ErrUnmatched,
}

func classifyRejection(msg string) *types.ExecutionError {
	code := types.ErrCodeRejected
	for _, known := range knownCodes {
		if strings.Contains(msg, known) {
			code = known
			break
		}
	}
	if msg == "" {
		msg = "order rejected"
	}
	return &types.ExecutionError{Kind: types.ClassifyCLOBError(code), Code: code, Message: msg}
}

func toJSON(order *model.SignedOrder) types.SignedOrderJSON {
	side := "BUY"
	if order.Side.Uint64() == uint64(model.SELL) {
		side = "SELL"
	}
	return types.SignedOrderJSON{
		Salt:          order.Salt.Int64(),
		Maker:         order.Maker.Hex(),
		Signer:        order.Signer.Hex(),
		Taker:         order.Taker.Hex(),
		TokenID:       order.TokenId.String(),
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Side:          side,
		Expiration:    order.Expiration.String(),
		Nonce:         order.Nonce.String(),
		FeeRateBps:    order.FeeRateBps.String(),
		SignatureType: int(order.SignatureType.Int64()),
		Signature:     "0x" + common.Bytes2Hex(order.Signature),
	}
}

// rawAmount converts a USDC or share amount to 6-decimal base units.
func rawAmount(v decimal.Decimal) string {
	return v.Shift(usdcDecimals).Truncate(0).String()
}
