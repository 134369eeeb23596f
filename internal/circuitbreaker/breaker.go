// Package circuitbreaker halts live dispatch when the trading wallet runs low on USDC.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FewZ2372/polymarket-bot/pkg/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInsufficientBalance is returned by CheckTradable while the guard is halted.
var ErrInsufficientBalance = errors.New("wallet balance below guard threshold")

const stakeWindow = 20

// BalanceFetcher is satisfied by wallet.Client.
type BalanceFetcher interface {
	GetBalances(ctx context.Context, address common.Address) (*wallet.Balances, error)
}

// Config holds balance guard configuration.
type Config struct {
	CheckInterval time.Duration
	// TradeMultiplier scales the rolling average stake into the halt threshold.
	TradeMultiplier decimal.Decimal
	MinAbsolute     decimal.Decimal
	// HysteresisRatio (>= 1) sets the resume threshold relative to the halt threshold.
	HysteresisRatio decimal.Decimal
	Wallet          BalanceFetcher
	Address         common.Address
	Logger          *zap.Logger
}

// Status is a point-in-time view of the guard.
type Status struct {
	Tradable        bool
	LastBalance     decimal.Decimal
	LastCheck       time.Time
	HaltThreshold   decimal.Decimal
	ResumeThreshold decimal.Decimal
	AvgStake        decimal.Decimal
	RecentStakes    int
}

// BalanceGuard polls the wallet and flips between tradable and halted with hysteresis.
// Thresholds follow the average of the last few filled stakes.
type BalanceGuard struct {
	tradable atomic.Bool

	checkInterval time.Duration
	multiplier    decimal.Decimal
	minAbsolute   decimal.Decimal
	hysteresis    decimal.Decimal
	wallet        BalanceFetcher
	address       common.Address
	logger        *zap.Logger

	mu              sync.RWMutex
	lastBalance     decimal.Decimal
	lastCheck       time.Time
	stakes          []decimal.Decimal
	haltThreshold   decimal.Decimal
	resumeThreshold decimal.Decimal

	wg sync.WaitGroup
}

// New creates a guard. It starts tradable until the first balance check says otherwise.
func New(cfg *Config) (*BalanceGuard, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Wallet == nil {
		return nil, errors.New("wallet cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.CheckInterval <= 0 {
		return nil, errors.New("check interval must be positive")
	}
	if !cfg.TradeMultiplier.IsPositive() {
		return nil, errors.New("trade multiplier must be positive")
	}
	if !cfg.MinAbsolute.IsPositive() {
		return nil, errors.New("min absolute must be positive")
	}
	if cfg.HysteresisRatio.LessThan(decimal.NewFromInt(1)) {
		return nil, errors.New("hysteresis ratio must be >= 1")
	}

	g := &BalanceGuard{
		checkInterval:   cfg.CheckInterval,
		multiplier:      cfg.TradeMultiplier,
		minAbsolute:     cfg.MinAbsolute,
		hysteresis:      cfg.HysteresisRatio,
		wallet:          cfg.Wallet,
		address:         cfg.Address,
		logger:          cfg.Logger,
		stakes:          make([]decimal.Decimal, 0, stakeWindow),
		haltThreshold:   cfg.MinAbsolute,
		resumeThreshold: cfg.MinAbsolute.Mul(cfg.HysteresisRatio),
	}
	g.tradable.Store(true)

	GuardTradable.Set(1)
	GuardHaltThreshold.Set(g.haltThreshold.InexactFloat64())
	GuardResumeThreshold.Set(g.resumeThreshold.InexactFloat64())
	GuardAvgStake.Set(0)
	return g, nil
}

// CheckTradable returns ErrInsufficientBalance while halted. Lock-free.
func (g *BalanceGuard) CheckTradable() error {
	if g.tradable.Load() {
		return nil
	}
	return ErrInsufficientBalance
}

// RecordTrade adds a filled stake to the rolling window and recomputes thresholds.
func (g *BalanceGuard) RecordTrade(stake decimal.Decimal) {
	if !stake.IsPositive() {
		g.logger.Warn("invalid-stake", zap.String("stake", stake.String()))
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.stakes = append(g.stakes, stake)
	if len(g.stakes) > stakeWindow {
		g.stakes = g.stakes[1:]
	}

	avg := decimal.Avg(g.stakes[0], g.stakes[1:]...)
	g.haltThreshold = decimal.Max(avg.Mul(g.multiplier), g.minAbsolute)
	g.resumeThreshold = g.haltThreshold.Mul(g.hysteresis)

	GuardAvgStake.Set(avg.InexactFloat64())
	GuardHaltThreshold.Set(g.haltThreshold.InexactFloat64())
	GuardResumeThreshold.Set(g.resumeThreshold.InexactFloat64())

	g.logger.Debug("guard-thresholds-updated",
		zap.String("avg-stake", avg.StringFixed(2)),
		zap.Int("stakes", len(g.stakes)),
		zap.String("halt-threshold", g.haltThreshold.StringFixed(2)),
		zap.String("resume-threshold", g.resumeThreshold.StringFixed(2)))
}

// CheckBalance fetches the USDC balance and applies the halt/resume transition.
// A failed fetch leaves the current state unchanged.
func (g *BalanceGuard) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() { GuardCheckDurationSeconds.Observe(time.Since(start).Seconds()) }()

	balances, err := g.wallet.GetBalances(ctx, g.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}
	balance := balances.USDC

	g.mu.Lock()
	g.lastBalance = balance
	g.lastCheck = time.Now()
	halt, resume := g.haltThreshold, g.resumeThreshold
	g.mu.Unlock()

	GuardBalance.Set(balance.InexactFloat64())

	fields := []zap.Field{
		zap.String("balance", balance.StringFixed(2)),
		zap.String("halt-threshold", halt.StringFixed(2)),
		zap.String("resume-threshold", resume.StringFixed(2)),
	}

	tradable := g.tradable.Load()
	switch {
	case tradable && balance.LessThan(halt):
		g.tradable.Store(false)
		GuardTradable.Set(0)
		GuardStateChangesTotal.Inc()
		g.logger.Warn("balance-guard-halted", fields...)
	case !tradable && balance.GreaterThanOrEqual(resume):
		g.tradable.Store(true)
		GuardTradable.Set(1)
		GuardStateChangesTotal.Inc()
		g.logger.Info("balance-guard-resumed", fields...)
	default:
		g.logger.Debug("balance-checked", append(fields, zap.Bool("tradable", tradable))...)
	}
	return nil
}

// Start checks the balance once and then polls every CheckInterval until ctx ends.
func (g *BalanceGuard) Start(ctx context.Context) {
	g.logger.Info("balance-guard-started",
		zap.String("address", g.address.Hex()),
		zap.Duration("check-interval", g.checkInterval),
		zap.String("min-absolute", g.minAbsolute.String()))

	if err := g.CheckBalance(ctx); err != nil {
		g.logger.Error("initial-balance-check-failed", zap.Error(err))
	}

	g.wg.Add(1)
	go g.loop(ctx)
}

func (g *BalanceGuard) loop(ctx context.Context) {
	defer g.wg.Done()
	ticker := time.NewTicker(g.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("balance-guard-stopped")
			return
		case <-ticker.C:
			if err := g.CheckBalance(ctx); err != nil {
				g.logger.Error("balance-check-failed", zap.Error(err))
			}
		}
	}
}

// Wait blocks until the polling loop has exited. The loop ends with the context passed to Start.
func (g *BalanceGuard) Wait() {
	g.wg.Wait()
}

// Status returns the current guard state.
func (g *BalanceGuard) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	avg := decimal.Zero
	if len(g.stakes) > 0 {
		avg = decimal.Avg(g.stakes[0], g.stakes[1:]...)
	}
	return Status{
		Tradable:        g.tradable.Load(),
		LastBalance:     g.lastBalance,
		LastCheck:       g.lastCheck,
		HaltThreshold:   g.haltThreshold,
		ResumeThreshold: g.resumeThreshold,
		AvgStake:        avg,
		RecentStakes:    len(g.stakes),
	}
}
