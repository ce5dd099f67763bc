// Package sqlite persists opportunity sell plans for later audit. Plans are
// stored verbatim as JSON alongside a few indexed columns for lookups; the
// store never reinterprets or alters a plan.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoTradeSim/internal/domain"
	"cryptoTradeSim/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// PlanStore implements the ports.PlanRepository interface using SQLite.
type PlanStore struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite plan store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewPlanStore creates a new SQLite plan store instance.
func NewPlanStore(cfg Config) (*PlanStore, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite plan store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_sim.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite plan store initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the trading path and audit reads.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite plan store initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite plan store initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from limiting connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &PlanStore{db: db, logger: cfg.Logger}
	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize plan store schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite plan store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Plan store ready", map[string]interface{}{"path": dbPath})

	return store, nil
}

func (s *PlanStore) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sell_plans (
		id TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL,
		buy_asset TEXT NOT NULL,
		decision TEXT NOT NULL,
		shortfall REAL NOT NULL,
		liquidation_percent REAL NOT NULL,
		evaluated_at TIMESTAMP NOT NULL,
		plan_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sell_plans_portfolio_evaluated ON sell_plans (portfolio_id, evaluated_at);
	CREATE INDEX IF NOT EXISTS idx_sell_plans_decision ON sell_plans (decision);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PlanStore) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite plan store")
		return s.db.Close()
	}
	return nil
}

// Create saves an evaluated plan verbatim.
func (s *PlanStore) Create(ctx context.Context, plan *domain.OpportunitySellPlan) error {
	blob, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan %s: %w", plan.ID, err)
	}

	const query = `
	INSERT INTO sell_plans (id, portfolio_id, buy_asset, decision, shortfall, liquidation_percent, evaluated_at, plan_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		plan.ID.String(), plan.PortfolioID, plan.BuyAssetID, string(plan.Decision),
		plan.Shortfall, plan.LiquidationPercent, plan.EvaluatedAt, string(blob))
	if err != nil {
		return fmt.Errorf("%w: failed to insert plan %s: %v", ports.ErrQueryFailed, plan.ID, err)
	}
	s.logger.Debug(ctx, "Plan stored", map[string]interface{}{"planID": plan.ID.String(), "decision": string(plan.Decision)})
	return nil
}

// FindByID retrieves a plan by its evaluation ID.
func (s *PlanStore) FindByID(ctx context.Context, id string) (*domain.OpportunitySellPlan, error) {
	const query = `SELECT plan_json FROM sell_plans WHERE id = ?`

	var blob string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug(ctx, "Plan not found by ID", map[string]interface{}{"planID": id})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("%w: failed to query plan by ID %s: %v", ports.ErrQueryFailed, id, err)
	}
	return unmarshalPlan(blob)
}

// FindByPortfolio retrieves the most recent plans for a portfolio, up to a limit.
func (s *PlanStore) FindByPortfolio(ctx context.Context, portfolioID string, limit int) ([]*domain.OpportunitySellPlan, error) {
	const query = `
	SELECT plan_json FROM sell_plans
	WHERE portfolio_id = ?
	ORDER BY evaluated_at DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query plans for portfolio %s: %v", ports.ErrQueryFailed, portfolioID, err)
	}
	defer rows.Close()

	plans := make([]*domain.OpportunitySellPlan, 0)
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plan, err := unmarshalPlan(blob)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan rows: %w", err)
	}
	return plans, nil
}

// CountByDecision counts stored plans that ended with the given decision.
func (s *PlanStore) CountByDecision(ctx context.Context, decision domain.Decision) (int, error) {
	const query = `SELECT COUNT(*) FROM sell_plans WHERE decision = ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, string(decision)).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count plans by decision %s: %v", ports.ErrQueryFailed, decision, err)
	}
	return count, nil
}

func unmarshalPlan(blob string) (*domain.OpportunitySellPlan, error) {
	var plan domain.OpportunitySellPlan
	if err := json.Unmarshal([]byte(blob), &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored plan: %w", err)
	}
	return &plan, nil
}
