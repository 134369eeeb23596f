// Package app wires the scanner together and drives its lifecycle.
package app

import (
	"context"
	"io"
	"sync"

	"github.com/FewZ2372/polymarket-bot/internal/circuitbreaker"
	"github.com/FewZ2372/polymarket-bot/internal/execution"
	"github.com/FewZ2372/polymarket-bot/internal/feed"
	"github.com/FewZ2372/polymarket-bot/internal/position"
	"github.com/FewZ2372/polymarket-bot/internal/risk"
	"github.com/FewZ2372/polymarket-bot/internal/storage"
	"github.com/FewZ2372/polymarket-bot/pkg/cache"
	"github.com/FewZ2372/polymarket-bot/pkg/config"
	"github.com/FewZ2372/polymarket-bot/pkg/healthprobe"
	"github.com/FewZ2372/polymarket-bot/pkg/httpserver"
	"github.com/FewZ2372/polymarket-bot/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	cache         *cache.RistrettoCache
	wsManager     *websocket.Manager
	priceStream   *feed.PriceStream
	pipeline      *Pipeline
	riskManager   *risk.Manager
	balanceGuard  *circuitbreaker.BalanceGuard
	stateCloser   io.Closer
	pool          *execution.Pool
	positions     *position.Manager
	storage       storage.Storage
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// ScanOnly builds detection and ranking only: no risk state, execution, positions,
	// price stream or HTTP server.
	ScanOnly bool
}
