package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jusunglee/subway-board/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// fixed width so captured_at_utc sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SnapshotDB persists the last good boards so a restart can show something immediately
type SnapshotDB struct {
	conn    *sql.DB
	writeMu sync.Mutex
	logger  *slog.Logger
}

// OpenSnapshotDB opens (or creates) the SQLite file at path and ensures the schema
func OpenSnapshotDB(ctx context.Context, path string, logger *slog.Logger) (*SnapshotDB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("snapshot database ready", "path", path)
	return &SnapshotDB{conn: conn, logger: logger}, nil
}

// Close closes the database connection
func (db *SnapshotDB) Close() error {
	return db.conn.Close()
}

// Save writes entry for station and returns the new snapshot id
func (db *SnapshotDB) Save(ctx context.Context, station string, entry models.CacheEntry) (string, error) {
	board := entry.Board
	if board == nil {
		board = models.ArrivalBoard{}
	}
	data, err := json.Marshal(board)
	if err != nil {
		return "", fmt.Errorf("failed to encode board: %w", err)
	}

	snapshotID := uuid.New().String()

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO board_snapshots (snapshot_id, station, captured_at_utc, board_json) VALUES (?, ?, ?, ?)",
		snapshotID, station, entry.CapturedAt.UTC().Format(timeLayout), string(data),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}

	return snapshotID, nil
}

// Latest returns the most recent snapshot for station, or ErrNoDataYet
func (db *SnapshotDB) Latest(ctx context.Context, station string) (models.CacheEntry, error) {
	var capturedAt, boardJSON string
	err := db.conn.QueryRowContext(ctx,
		"SELECT captured_at_utc, board_json FROM board_snapshots WHERE station = ? ORDER BY captured_at_utc DESC LIMIT 1",
		station,
	).Scan(&capturedAt, &boardJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, ErrNoDataYet
	}
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	ts, err := time.Parse(timeLayout, capturedAt)
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("invalid captured_at %q: %w", capturedAt, err)
	}

	var board models.ArrivalBoard
	if err := json.Unmarshal([]byte(boardJSON), &board); err != nil {
		return models.CacheEntry{}, fmt.Errorf("invalid board for snapshot: %w", err)
	}

	return models.CacheEntry{Board: board, CapturedAt: ts}, nil
}

// Prune keeps the newest keep snapshots per station and deletes the rest
func (db *SnapshotDB) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result, err := db.conn.ExecContext(ctx, `
		DELETE FROM board_snapshots WHERE snapshot_id IN (
			SELECT snapshot_id FROM (
				SELECT snapshot_id, ROW_NUMBER() OVER (
					PARTITION BY station ORDER BY captured_at_utc DESC
				) AS rn FROM board_snapshots
			) WHERE rn > ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		db.logger.Debug("pruned snapshots", "deleted", rows)
	}
	return nil
}
