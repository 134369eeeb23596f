package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/FewZ2372/polymarket-bot/internal/execution"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/internal/position"
	"github.com/goccy/go-json"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Schema is applied by Migrate. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id              UUID PRIMARY KEY,
	type            TEXT NOT NULL,
	action          TEXT NOT NULL,
	detector        TEXT NOT NULL,
	question        TEXT NOT NULL,
	market_ids      TEXT[] NOT NULL,
	event_id        TEXT,
	expected_profit DOUBLE PRECISION NOT NULL,
	confidence      INTEGER NOT NULL,
	score           DOUBLE PRECISION NOT NULL,
	legs            JSONB NOT NULL,
	evidence        JSONB,
	detected_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS executions (
	id             UUID PRIMARY KEY,
	opportunity_id UUID NOT NULL,
	reservation_id TEXT,
	mode           TEXT NOT NULL,
	status         TEXT NOT NULL,
	stake          NUMERIC(20,6) NOT NULL,
	shares         NUMERIC(20,6) NOT NULL,
	legs           JSONB NOT NULL,
	attempts       INTEGER NOT NULL,
	error          TEXT,
	executed_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id             UUID PRIMARY KEY,
	fill_id        UUID NOT NULL UNIQUE,
	opportunity_id UUID NOT NULL,
	type           TEXT NOT NULL,
	legs           JSONB NOT NULL,
	shares         NUMERIC(20,6) NOT NULL,
	entry_unit     NUMERIC(20,6) NOT NULL,
	target_unit    NUMERIC(20,6) NOT NULL,
	opened_at      TIMESTAMPTZ NOT NULL,
	max_hold_until TIMESTAMPTZ NOT NULL,
	state          TEXT NOT NULL,
	exit_reason    TEXT,
	exit_unit      NUMERIC(20,6),
	realized_pnl   NUMERIC(20,6),
	closed_at      TIMESTAMPTZ
);

ALTER TABLE positions ADD COLUMN IF NOT EXISTS reservation_id TEXT;
ALTER TABLE positions ADD COLUMN IF NOT EXISTS action TEXT;
ALTER TABLE positions ADD COLUMN IF NOT EXISTS partial BOOLEAN NOT NULL DEFAULT FALSE;
ALTER TABLE positions ADD COLUMN IF NOT EXISTS take_profit_unit NUMERIC(20,6);
CREATE INDEX IF NOT EXISTS positions_state_idx ON positions (state);
`

const insertOpportunity = `
	INSERT INTO opportunities (
		id, type, action, detector, question, market_ids, event_id,
		expected_profit, confidence, score, legs, evidence, detected_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO NOTHING
`

const insertExecution = `
	INSERT INTO executions (
		id, opportunity_id, reservation_id, mode, status, stake, shares,
		legs, attempts, error, executed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

const upsertPosition = `
	INSERT INTO positions (
		id, fill_id, opportunity_id, type, legs, shares, entry_unit, target_unit,
		opened_at, max_hold_until, state, exit_reason, exit_unit, realized_pnl, closed_at,
		reservation_id, action, partial, take_profit_unit
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (id) DO UPDATE SET
		state = EXCLUDED.state,
		exit_reason = EXCLUDED.exit_reason,
		exit_unit = EXCLUDED.exit_unit,
		realized_pnl = EXCLUDED.realized_pnl,
		closed_at = EXCLUDED.closed_at
`

const selectOpenPositions = `
	SELECT id, fill_id, opportunity_id, reservation_id, type, action, partial, legs,
		shares, entry_unit, target_unit, take_profit_unit, opened_at, max_hold_until
	FROM positions
	WHERE state = $1
	ORDER BY opened_at
`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects, verifies the connection and applies the schema.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &PostgresStorage{db: db, logger: cfg.Logger}
	if err := p.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))
	return p, nil
}

// Migrate creates the history tables if they do not exist.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// StoreOpportunities inserts one cycle's opportunities in a single transaction.
func (p *PostgresStorage) StoreOpportunities(ctx context.Context, opps []*opportunity.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertOpportunity)
	if err != nil {
		return fmt.Errorf("prepare opportunity insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range opps {
		legs, err := json.Marshal(o.Legs)
		if err != nil {
			return fmt.Errorf("marshal legs for %s: %w", o.ID, err)
		}
		evidence, err := marshalEvidence(o.Evidence)
		if err != nil {
			return fmt.Errorf("marshal evidence for %s: %w", o.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			o.ID,
			string(o.Type),
			string(o.Action),
			o.Detector,
			o.Question,
			pq.Array(o.MarketIDs),
			nullString(o.EventID),
			o.ExpectedProfit,
			o.Confidence,
			o.Score,
			legs,
			evidence,
			o.DetectedAt,
		)
		if err != nil {
			return fmt.Errorf("insert opportunity %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit opportunities: %w", err)
	}

	p.logger.Debug("opportunities-stored", zap.Int("count", len(opps)))
	return nil
}

// RecordExecution inserts one execution attempt.
func (p *PostgresStorage) RecordExecution(ctx context.Context, fill *execution.Fill) error {
	legs, err := json.Marshal(fill.Legs)
	if err != nil {
		return fmt.Errorf("marshal legs: %w", err)
	}

	_, err = p.db.ExecContext(ctx, insertExecution,
		fill.ID,
		fill.OpportunityID,
		nullString(fill.ReservationID),
		string(fill.Mode),
		string(fill.Status),
		fill.Stake,
		fill.Shares,
		legs,
		fill.Attempts,
		nullString(fill.Error),
		fill.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	p.logger.Debug("execution-stored",
		zap.String("fill-id", fill.ID),
		zap.String("status", string(fill.Status)))
	return nil
}

// RecordPosition upserts a position. Only the exit columns change after the first insert.
func (p *PostgresStorage) RecordPosition(ctx context.Context, pos *position.Position) error {
	legs, err := json.Marshal(pos.Legs)
	if err != nil {
		return fmt.Errorf("marshal legs: %w", err)
	}

	var (
		exitReason sql.NullString
		exitUnit   interface{}
		pnl        interface{}
		closedAt   sql.NullTime
	)
	if pos.State == position.StateClosed {
		exitReason = sql.NullString{String: string(pos.ExitReason), Valid: true}
		exitUnit = pos.ExitUnit
		pnl = pos.RealizedPnL
		closedAt = sql.NullTime{Time: pos.ClosedAt, Valid: true}
	}

	_, err = p.db.ExecContext(ctx, upsertPosition,
		pos.ID,
		pos.FillID,
		pos.OpportunityID,
		string(pos.Type),
		legs,
		pos.Shares,
		pos.EntryUnit,
		pos.TargetUnit,
		pos.OpenedAt,
		pos.MaxHoldUntil,
		string(pos.State),
		exitReason,
		exitUnit,
		pnl,
		closedAt,
		nullString(pos.ReservationID),
		nullString(string(pos.Action)),
		pos.Partial,
		decimal.NullDecimal{Decimal: pos.TakeProfitUnit, Valid: pos.TakeProfitUnit.IsPositive()},
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	p.logger.Debug("position-stored",
		zap.String("position-id", pos.ID),
		zap.String("state", string(pos.State)))
	return nil
}

// LoadOpenPositions returns every position still OPEN, oldest first.
func (p *PostgresStorage) LoadOpenPositions(ctx context.Context) ([]*position.Position, error) {
	rows, err := p.db.QueryContext(ctx, selectOpenPositions, string(position.StateOpen))
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var out []*position.Position
	for rows.Next() {
		var (
			pos         position.Position
			reservation sql.NullString
			typ         string
			action      sql.NullString
			partial     sql.NullBool
			legs        []byte
			takeProfit  decimal.NullDecimal
		)
		err := rows.Scan(
			&pos.ID,
			&pos.FillID,
			&pos.OpportunityID,
			&reservation,
			&typ,
			&action,
			&partial,
			&legs,
			&pos.Shares,
			&pos.EntryUnit,
			&pos.TargetUnit,
			&takeProfit,
			&pos.OpenedAt,
			&pos.MaxHoldUntil,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if err := json.Unmarshal(legs, &pos.Legs); err != nil {
			return nil, fmt.Errorf("unmarshal legs for %s: %w", pos.ID, err)
		}
		pos.ReservationID = reservation.String
		pos.Type = opportunity.Type(typ)
		pos.Action = opportunity.Action(action.String)
		pos.Partial = partial.Bool
		if takeProfit.Valid {
			pos.TakeProfitUnit = takeProfit.Decimal
		}
		pos.State = position.StateOpen
		out = append(out, &pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}

	p.logger.Debug("open-positions-loaded", zap.Int("count", len(out)))
	return out, nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

// marshalEvidence encodes evidence with its kind so rows can be decoded without the detector.
func marshalEvidence(e opportunity.Evidence) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	return json.Marshal(struct {
		Kind opportunity.Type     `json:"kind"`
		Data opportunity.Evidence `json:"data"`
	}{Kind: e.Kind(), Data: e})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
