package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultSQLitePath = "data/spades_ledger.db"

type SQLiteService struct {
	db *sql.DB
}

func NewSQLiteServiceFromEnv() (*SQLiteService, error) {
	dbPath := strings.TrimSpace(os.Getenv("LEDGER_SQLITE_PATH"))
	if dbPath == "" {
		dbPath = defaultSQLitePath
	}
	return NewSQLiteService(dbPath)
}

func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteLedgerSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteService{db: db}, nil
}

func ensureSQLiteLedgerSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS hand_settlements (
    game_id     TEXT    NOT NULL,
    hand_no     INTEGER NOT NULL,
    team        INTEGER NOT NULL,
    bid         INTEGER NOT NULL,
    tricks      INTEGER NOT NULL,
    bags        INTEGER NOT NULL,
    bag_penalty INTEGER NOT NULL,
    score       INTEGER NOT NULL,
    total       INTEGER NOT NULL,
    recorded_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (game_id, hand_no, team)
)`,
		`CREATE TABLE IF NOT EXISTS game_results (
    game_id     TEXT    NOT NULL,
    user_id     TEXT    NOT NULL,
    seat        INTEGER NOT NULL,
    team        INTEGER NOT NULL,
    won         INTEGER NOT NULL,
    delta       INTEGER NOT NULL,
    recorded_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (game_id, user_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_game_results_user ON game_results (user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure ledger schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) RecordHandSettlement(ctx context.Context, recs []HandRecord) error {
	for _, r := range recs {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO hand_settlements (game_id, hand_no, team, bid, tricks, bags, bag_penalty, score, total)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (game_id, hand_no, team) DO NOTHING`,
			r.GameID, r.HandNo, r.Team, r.Bid, r.Tricks, r.Bags, r.BagPenalty, r.Score, r.Total)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteService) RecordGameResult(ctx context.Context, gameID string, outcomes []SeatOutcome) error {
	for _, o := range outcomes {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO game_results (game_id, user_id, seat, team, won, delta)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (game_id, user_id) DO NOTHING`,
			gameID, o.UserID, o.Seat, o.Team, o.Won, o.Delta)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteService) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(delta), 0) FROM game_results WHERE user_id = ?`, userID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}
