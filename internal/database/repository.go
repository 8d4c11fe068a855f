package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AnalysisSnapshot is one persisted confluence decision: the scored
// summary of a multi-timeframe analysis run for a symbol.
type AnalysisSnapshot struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	HTFInterval    string    `json:"htf_interval"`
	ITFInterval    string    `json:"itf_interval"`
	LTFInterval    string    `json:"ltf_interval"`
	HTFBias        string    `json:"htf_bias"`
	ITFAlignment   bool      `json:"itf_alignment"`
	LTFTrigger     bool      `json:"ltf_trigger"`
	Score          float64   `json:"score"`
	TradeDirection *string   `json:"trade_direction,omitempty"`
	Reasoning      []string  `json:"reasoning"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrNotFound is returned when no snapshot exists for a query.
var ErrNotFound = errors.New("snapshot not found")

// Repository provides data access for the snapshot journal.
type Repository struct {
	db *DB
}

// NewRepository creates a repository over the pool.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the database.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveSnapshot inserts a snapshot, assigning its ID and creation time.
func (r *Repository) SaveSnapshot(ctx context.Context, snapshot *AnalysisSnapshot) error {
	reasoning, err := json.Marshal(snapshot.Reasoning)
	if err != nil {
		return fmt.Errorf("failed to marshal reasoning: %w", err)
	}

	snapshot.ID = uuid.New().String()

	query := `
		INSERT INTO analysis_snapshots (
			id, symbol, htf_interval, itf_interval, ltf_interval,
			htf_bias, itf_alignment, ltf_trigger, score, trade_direction, reasoning
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	err = r.db.Pool.QueryRow(ctx, query,
		snapshot.ID, snapshot.Symbol,
		snapshot.HTFInterval, snapshot.ITFInterval, snapshot.LTFInterval,
		snapshot.HTFBias, snapshot.ITFAlignment, snapshot.LTFTrigger,
		snapshot.Score, snapshot.TradeDirection, reasoning,
	).Scan(&snapshot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for a symbol.
func (r *Repository) LatestSnapshot(ctx context.Context, symbol string) (*AnalysisSnapshot, error) {
	query := `
		SELECT id, symbol, htf_interval, itf_interval, ltf_interval,
		       htf_bias, itf_alignment, ltf_trigger, score, trade_direction, reasoning, created_at
		FROM analysis_snapshots
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	snapshot, err := r.scanSnapshot(r.db.Pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	return snapshot, nil
}

// RecentSnapshots lists snapshots for a symbol, newest first.
func (r *Repository) RecentSnapshots(ctx context.Context, symbol string, limit int) ([]*AnalysisSnapshot, error) {
	query := `
		SELECT id, symbol, htf_interval, itf_interval, ltf_interval,
		       htf_bias, itf_alignment, ltf_trigger, score, trade_direction, reasoning, created_at
		FROM analysis_snapshots
		WHERE symbol = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*AnalysisSnapshot
	for rows.Next() {
		snapshot, err := r.scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *Repository) scanSnapshot(row rowScanner) (*AnalysisSnapshot, error) {
	snapshot := &AnalysisSnapshot{}
	var reasoning []byte
	err := row.Scan(
		&snapshot.ID, &snapshot.Symbol,
		&snapshot.HTFInterval, &snapshot.ITFInterval, &snapshot.LTFInterval,
		&snapshot.HTFBias, &snapshot.ITFAlignment, &snapshot.LTFTrigger,
		&snapshot.Score, &snapshot.TradeDirection, &reasoning, &snapshot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reasoning, &snapshot.Reasoning); err != nil {
		return nil, fmt.Errorf("corrupt reasoning payload: %w", err)
	}
	return snapshot, nil
}
