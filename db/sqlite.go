package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"houseprice/pipeline"
)

// Store keeps training runs and served predictions in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file and tables if needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        version TEXT NOT NULL UNIQUE,
        rows INTEGER NOT NULL,
        dropped_rows INTEGER DEFAULT 0,
        features INTEGER NOT NULL,
        r2 REAL,
        rmse REAL,
        mae REAL,
        dataset TEXT,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        bundle_version TEXT NOT NULL,
        inputs TEXT NOT NULL,
        price REAL NOT NULL,
        formatted TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE TABLE IF NOT EXISTS data_quality (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        bundle_version TEXT NOT NULL,
        column_name TEXT,
        issue_type TEXT NOT NULL,
        severity TEXT NOT NULL,
        message TEXT,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// TrainingLog is one completed training run.
type TrainingLog struct {
	Version     string    `json:"version"`
	Rows        int       `json:"rows"`
	DroppedRows int       `json:"dropped_rows"`
	Features    int       `json:"features"`
	R2          float64   `json:"r2"`
	RMSE        float64   `json:"rmse"`
	MAE         float64   `json:"mae"`
	Dataset     string    `json:"dataset"`
	TrainedAt   time.Time `json:"trained_at"`
}

// LogTraining records a run together with the quality issues found while cleaning its data.
func (s *Store) LogTraining(ctx context.Context, entry TrainingLog, issues []pipeline.QualityIssue) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO training_log (version, rows, dropped_rows, features, r2, rmse, mae, dataset, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Version, entry.Rows, entry.DroppedRows, entry.Features, entry.R2, entry.RMSE, entry.MAE,
		entry.Dataset, entry.TrainedAt.UTC())
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, issue := range issues {
		_, err = tx.ExecContext(ctx, `
            INSERT INTO data_quality (bundle_version, column_name, issue_type, severity, message, created_at)
            VALUES (?, ?, ?, ?, ?, ?)`,
			entry.Version, issue.Column, issue.Type, issue.Severity, issue.Message, issue.Timestamp.UTC())
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadTrainingLog returns runs newest first.
func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT version, rows, dropped_rows, features, r2, rmse, mae, dataset, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.Version, &log.Rows, &log.DroppedRows, &log.Features,
			&log.R2, &log.RMSE, &log.MAE, &log.Dataset, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// QualityIssues returns the issues recorded for a training run.
func (s *Store) QualityIssues(ctx context.Context, version string) ([]pipeline.QualityIssue, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT column_name, issue_type, severity, message, created_at
        FROM data_quality
        WHERE bundle_version = ?
        ORDER BY id`, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	issues := make([]pipeline.QualityIssue, 0)
	for rows.Next() {
		var issue pipeline.QualityIssue
		if err := rows.Scan(&issue.Column, &issue.Type, &issue.Severity, &issue.Message, &issue.Timestamp); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// Prediction is one served estimate.
type Prediction struct {
	BundleVersion string         `json:"bundle_version"`
	Inputs        map[string]any `json:"inputs"`
	Price         float64        `json:"price"`
	Formatted     string         `json:"formatted"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (s *Store) SavePrediction(ctx context.Context, p Prediction) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}
	inputs, err := json.Marshal(p.Inputs)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO predictions (bundle_version, inputs, price, formatted, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		p.BundleVersion, string(inputs), p.Price, p.Formatted, p.CreatedAt.UTC())
	return err
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]Prediction, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT bundle_version, inputs, price, formatted, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		var inputs string
		if err := rows.Scan(&p.BundleVersion, &inputs, &p.Price, &p.Formatted, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(inputs), &p.Inputs); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
