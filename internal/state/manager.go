package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Ning0612/Gitbox/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is the database file created inside the data directory
const DBFileName = "gitbox.db"

// Manager handles persisted repository configuration and execution history
type Manager struct {
	db *sql.DB
}

// ExecutionRecord represents a single engine operation
type ExecutionRecord struct {
	ID         int64
	Operation  string // "connect", "sync", "force-pull", "force-push"
	Repository string
	Branch     string
	StartTime  time.Time
	EndTime    time.Time
	Status     domain.ExecutionStatus
	CommitID   string
	Error      string
}

// NewManager creates a new state manager
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connection pool to prevent "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}

	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

// initSchema creates the database schema
func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation TEXT NOT NULL,
		repository TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT '',
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		commit_id TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_executions_repo_time ON executions(repository, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
	`

	_, err := m.db.Exec(schema)
	return err
}

// SaveConfig stores cfg under key, replacing any previous value
func (m *Manager) SaveConfig(key string, cfg *domain.RepositoryConfig) error {
	if key == "" {
		return fmt.Errorf("config key cannot be empty")
	}
	if cfg == nil {
		return m.DeleteConfig(key)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}

	_, err = m.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save config %q: %w", key, err)
	}
	return nil
}

// LoadConfig returns the config stored under key.
// Absent or malformed data yields a nil config and a nil error.
func (m *Manager) LoadConfig(key string) (*domain.RepositoryConfig, error) {
	var value string
	err := m.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config %q: %w", key, err)
	}

	return domain.UnmarshalRepositoryConfig([]byte(value)), nil
}

// DeleteConfig removes the config stored under key; a missing key is not an error
func (m *Manager) DeleteConfig(key string) error {
	if _, err := m.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete config %q: %w", key, err)
	}
	return nil
}

// SaveExecution records an engine operation
func (m *Manager) SaveExecution(record ExecutionRecord) error {
	if !record.Status.IsValid() {
		return fmt.Errorf("invalid status: %s (must be 'success', 'failed', or 'conflict')", record.Status)
	}
	if record.Operation == "" {
		return fmt.Errorf("operation cannot be empty")
	}

	query := `
		INSERT INTO executions (operation, repository, branch, start_time, end_time, status, commit_id, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.Exec(query,
		record.Operation,
		record.Repository,
		record.Branch,
		record.StartTime,
		record.EndTime,
		string(record.Status),
		record.CommitID,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution record: %w", err)
	}

	return nil
}

const selectExecutions = `
	SELECT id, operation, repository, branch, start_time, end_time, status, commit_id, error
	FROM executions
`

// GetHistory retrieves execution history for a repository URL
func (m *Manager) GetHistory(repository string, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectExecutions+`
		WHERE repository = ?
		ORDER BY start_time DESC, id DESC
		LIMIT ?
	`, repository, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetLastSuccess retrieves the last successful operation for a repository URL
func (m *Manager) GetLastSuccess(repository string) (*ExecutionRecord, error) {
	rows, err := m.db.Query(selectExecutions+`
		WHERE repository = ? AND status = 'success'
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`, repository)
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil // No successful execution found
	}
	return &records[0], nil
}

// GetAllHistory retrieves execution history across repositories
func (m *Manager) GetAllHistory(limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectExecutions+`
		ORDER BY start_time DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query all history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	for rows.Next() {
		var record ExecutionRecord
		var status string
		err := rows.Scan(
			&record.ID,
			&record.Operation,
			&record.Repository,
			&record.Branch,
			&record.StartTime,
			&record.EndTime,
			&status,
			&record.CommitID,
			&record.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record.Status = domain.ExecutionStatus(status)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
