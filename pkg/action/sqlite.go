package action

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteHistory is a persistent HistoryStore. It is only used when
// configured explicitly.
type SQLiteHistory struct {
	db *sql.DB
}

// OpenSQLiteHistory opens (creating if needed) a history database at path.
func OpenSQLiteHistory(path string) (*SQLiteHistory, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	h := &SQLiteHistory{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return h, nil
}

func (h *SQLiteHistory) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS executions (
			execution_id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			params TEXT NOT NULL,
			result TEXT NOT NULL,
			cost_usd REAL NOT NULL DEFAULT 0,
			timestamp INTEGER NOT NULL,
			mission_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			role_id TEXT NOT NULL DEFAULT '',
			rolled_back INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_executions_action ON executions(action, timestamp);
	`
	_, err := h.db.Exec(schema)
	return err
}

func (h *SQLiteHistory) Save(ctx context.Context, entry HistoryEntry) error {
	if entry.ExecutionID == "" {
		return fmt.Errorf("execution id is required")
	}
	params, err := json.Marshal(entry.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	result, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO executions
			(execution_id, action, params, result, cost_usd, timestamp, mission_id, user_id, role_id, rolled_back)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ExecutionID, entry.Action, string(params), string(result), entry.CostUSD,
		entry.Timestamp.UnixNano(), entry.MissionID, entry.UserID, entry.RoleID, entry.RolledBack,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

const selectColumns = `execution_id, action, params, result, cost_usd, timestamp, mission_id, user_id, role_id, rolled_back`

func (h *SQLiteHistory) Get(ctx context.Context, executionID string) (HistoryEntry, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM executions WHERE execution_id = ?`, executionID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return HistoryEntry{}, fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	return entry, err
}

func (h *SQLiteHistory) List(ctx context.Context, action string, limit int) ([]HistoryEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM executions`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (h *SQLiteHistory) MarkRolledBack(ctx context.Context, executionID string) error {
	res, err := h.db.ExecContext(ctx, `UPDATE executions SET rolled_back = 1 WHERE execution_id = ?`, executionID)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	return nil
}

// Close closes the database.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (HistoryEntry, error) {
	var (
		entry          HistoryEntry
		params, result string
		ts             int64
	)
	if err := row.Scan(&entry.ExecutionID, &entry.Action, &params, &result, &entry.CostUSD,
		&ts, &entry.MissionID, &entry.UserID, &entry.RoleID, &entry.RolledBack); err != nil {
		return HistoryEntry{}, err
	}
	if err := json.Unmarshal([]byte(params), &entry.Params); err != nil {
		return HistoryEntry{}, fmt.Errorf("failed to decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(result), &entry.Result); err != nil {
		return HistoryEntry{}, fmt.Errorf("failed to decode result: %w", err)
	}
	entry.Timestamp = time.Unix(0, ts)
	return entry, nil
}
