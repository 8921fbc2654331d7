package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"perfpredict/ml"
)

const schema = `
CREATE TABLE IF NOT EXISTS training_examples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    progress REAL NOT NULL,
    days_remaining REAL NOT NULL,
    days_worked REAL NOT NULL,
    avg_rating REAL NOT NULL,
    target REAL NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model_type VARCHAR(50) NOT NULL,
    model_path TEXT NOT NULL,
    rmse REAL NOT NULL,
    data_points INTEGER NOT NULL,
    trained_at DATETIME NOT NULL
);
`

// Store keeps training examples and a log of training runs in SQLite.
type Store struct {
	db *sql.DB
}

type TrainingRun struct {
	ModelType  string
	ModelPath  string
	RMSE       float64
	DataPoints int
	TrainedAt  time.Time
}

func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InsertExamples appends examples in a single transaction.
func (s *Store) InsertExamples(ctx context.Context, examples []ml.Example) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO training_examples (progress, days_remaining, days_worked, avg_rating, target)
        VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ex := range examples {
		f := ex.Features
		if _, err := stmt.ExecContext(ctx, f.Progress, f.DaysRemaining, f.DaysWorked, f.AvgRating, ex.Target); err != nil {
			return fmt.Errorf("insert example: %w", err)
		}
	}
	return tx.Commit()
}

// LoadExamples returns every stored example in insertion order.
func (s *Store) LoadExamples(ctx context.Context) ([]ml.Example, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT progress, days_remaining, days_worked, avg_rating, target
        FROM training_examples
        ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var examples []ml.Example
	for rows.Next() {
		var ex ml.Example
		f := &ex.Features
		if err := rows.Scan(&f.Progress, &f.DaysRemaining, &f.DaysWorked, &f.AvgRating, &ex.Target); err != nil {
			return nil, err
		}
		examples = append(examples, ex)
	}
	return examples, rows.Err()
}

func (s *Store) LogTraining(ctx context.Context, run TrainingRun) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (model_type, model_path, rmse, data_points, trained_at)
        VALUES (?, ?, ?, ?, ?)`,
		run.ModelType, run.ModelPath, run.RMSE, run.DataPoints, run.TrainedAt.UTC())
	return err
}

// LatestTraining returns the most recent run, or sql.ErrNoRows.
func (s *Store) LatestTraining(ctx context.Context) (TrainingRun, error) {
	var run TrainingRun
	err := s.db.QueryRowContext(ctx, `
        SELECT model_type, model_path, rmse, data_points, trained_at
        FROM training_log
        ORDER BY id DESC
        LIMIT 1`).Scan(&run.ModelType, &run.ModelPath, &run.RMSE, &run.DataPoints, &run.TrainedAt)
	return run, err
}
