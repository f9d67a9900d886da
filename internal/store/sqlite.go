package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/framesched/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Each pooled connection to ":memory:" would open its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// --- Run CRUD ---

// CreateRun inserts a run together with its history and scheduled boxes in
// one transaction. An empty run ID is filled in.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run, history []model.HistoryRecord, boxes map[string][]model.ScheduledBox) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID, "history", len(history))

	countersJSON, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, name, source, status, error, frame_period, frames, sim_time,
		 counters, miss_rate, config, created_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Source, string(run.Status), run.Error,
		run.FramePeriod, run.Frames, run.SimTime,
		string(countersJSON), run.MissRate, string(configJSON),
		run.CreatedAt.Format(time.RFC3339Nano), int64(run.Duration),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	histStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO history (run_id, seq, image_path, image_out_path, coord, depth, priority, bbox_id,
		 enqueue_time, exec_time, response_time, deadline, missed, task_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer histStmt.Close()

	for i, rec := range history {
		coordJSON, err := json.Marshal(rec.Coord)
		if err != nil {
			return fmt.Errorf("marshal coord: %w", err)
		}
		if _, err := histStmt.ExecContext(ctx,
			run.ID, i+1, rec.ImagePath, rec.ImageOutPath, string(coordJSON), rec.Depth,
			rec.Priority, rec.BBoxID, rec.EnqueueTime, rec.ExecTime, rec.ResponseTime,
			rec.Deadline, rec.Missed, rec.Order,
		); err != nil {
			return fmt.Errorf("insert history %d: %w", i+1, err)
		}
	}

	boxStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO scheduled_boxes (run_id, image, seq, x0, y0, x1, y1, depth)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer boxStmt.Close()

	for image, list := range boxes {
		for i, b := range list {
			if _, err := boxStmt.ExecContext(ctx, run.ID, image, i, b.X0, b.Y0, b.X1, b.Y1, b.Depth); err != nil {
				return fmt.Errorf("insert scheduled box %s/%d: %w", image, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const runColumns = `id, name, source, status, error, frame_period, frames, sim_time,
	counters, miss_rate, config, created_at, duration_ns`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset, "status", opts.Status)
	opts.Clamp()

	where := ""
	var args []any
	if opts.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(opts.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "runs", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// --- Run outputs ---

const historyColumns = `image_path, image_out_path, coord, depth, priority, bbox_id,
	enqueue_time, exec_time, response_time, deadline, missed, task_order`

// ListHistory returns one page of a run's history in completion order.
func (s *SQLiteStore) ListHistory(ctx context.Context, runID string, opts model.ListOptions) ([]model.HistoryRecord, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "history", "run_id", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history WHERE run_id = ?`, runID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM history WHERE run_id = ? ORDER BY seq LIMIT ? OFFSET ?`,
		runID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records, err := scanHistory(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// AllHistory returns every history record of a run in completion order.
func (s *SQLiteStore) AllHistory(ctx context.Context, runID string) ([]model.HistoryRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "history", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM history WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

// ListScheduledBoxes returns a run's scheduled boxes keyed by image name.
func (s *SQLiteStore) ListScheduledBoxes(ctx context.Context, runID string) (map[string][]model.ScheduledBox, error) {
	s.logger.Debug("sql", "op", "select", "table", "scheduled_boxes", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT image, x0, y0, x1, y1, depth FROM scheduled_boxes
		 WHERE run_id = ? ORDER BY image, seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	boxes := make(map[string][]model.ScheduledBox)
	for rows.Next() {
		var image string
		var b model.ScheduledBox
		if err := rows.Scan(&image, &b.X0, &b.Y0, &b.X1, &b.Y1, &b.Depth); err != nil {
			return nil, err
		}
		boxes[image] = append(boxes[image], b)
	}
	return boxes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var status, countersJSON, configJSON, createdAt string
	var durationNS int64

	if err := row.Scan(
		&run.ID, &run.Name, &run.Source, &status, &run.Error,
		&run.FramePeriod, &run.Frames, &run.SimTime,
		&countersJSON, &run.MissRate, &configJSON, &createdAt, &durationNS,
	); err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	json.Unmarshal([]byte(countersJSON), &run.Counters)
	json.Unmarshal([]byte(configJSON), &run.Config)
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	run.Duration = time.Duration(durationNS)
	return &run, nil
}

func scanHistory(rows *sql.Rows) ([]model.HistoryRecord, error) {
	var records []model.HistoryRecord
	for rows.Next() {
		var rec model.HistoryRecord
		var coordJSON string
		if err := rows.Scan(
			&rec.ImagePath, &rec.ImageOutPath, &coordJSON, &rec.Depth, &rec.Priority, &rec.BBoxID,
			&rec.EnqueueTime, &rec.ExecTime, &rec.ResponseTime, &rec.Deadline, &rec.Missed, &rec.Order,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(coordJSON), &rec.Coord); err != nil {
			return nil, fmt.Errorf("decode coord: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
