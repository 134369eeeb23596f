package execution

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DryRunPlacer records intended orders without calling the venue. Every order fills at its limit price.
type DryRunPlacer struct {
	logger *zap.Logger

	mu     sync.Mutex
	orders []Order
}

// NewDryRunPlacer creates a dry-run placer.
func NewDryRunPlacer(logger *zap.Logger) *DryRunPlacer {
	return &DryRunPlacer{logger: logger}
}

// PlaceOrder records the order and reports it filled.
func (p *DryRunPlacer) PlaceOrder(ctx context.Context, order Order) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.orders = append(p.orders, order)
	p.mu.Unlock()

	id := "dry-" + uuid.New().String()
	p.logger.Info("dry-run-order",
		zap.String("order-id", id),
		zap.String("market-id", order.MarketID),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.String("shares", order.Shares.String()),
		zap.String("amount-usd", order.Amount().StringFixed(2)))

	return &OrderResult{OrderID: id, Status: "matched", Price: order.Price, Shares: order.Shares}, nil
}

// Mode reports dry_run.
func (p *DryRunPlacer) Mode() Mode {
	return ModeDryRun
}

// Orders returns the orders recorded so far.
func (p *DryRunPlacer) Orders() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Order(nil), p.orders...)
}
