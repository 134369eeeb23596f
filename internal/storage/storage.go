// Package storage persists opportunity, execution and position history.
package storage

import (
	"context"

	"github.com/FewZ2372/polymarket-bot/internal/execution"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/internal/position"
)

// Storage records the pipeline's history. It satisfies execution.Recorder and position.Recorder.
type Storage interface {
	// StoreOpportunities stores the ranked opportunities of one scan cycle.
	StoreOpportunities(ctx context.Context, opps []*opportunity.Opportunity) error

	RecordExecution(ctx context.Context, fill *execution.Fill) error

	// RecordPosition upserts a position snapshot; it is called on open and on close.
	RecordPosition(ctx context.Context, p *position.Position) error

	// Close closes the storage connection.
	Close() error
}

// OpenPositionLoader is implemented by backends that can reload positions left open by a
// previous run.
type OpenPositionLoader interface {
	LoadOpenPositions(ctx context.Context) ([]*position.Position, error)
}

var (
	_ Storage            = (*ConsoleStorage)(nil)
	_ OpenPositionLoader = (*PostgresStorage)(nil)
	_ Storage            = (*PostgresStorage)(nil)
	_ execution.Recorder = Storage(nil)
	_ position.Recorder  = Storage(nil)
)
