package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all run tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		error        TEXT NOT NULL DEFAULT '',
		frame_period INTEGER NOT NULL,
		frames       INTEGER NOT NULL,
		sim_time     INTEGER NOT NULL,
		counters     TEXT NOT NULL DEFAULT '{}',
		miss_rate    REAL,
		config       TEXT NOT NULL DEFAULT '{}',
		created_at   TEXT NOT NULL,
		duration_ns  INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS history (
		run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq            INTEGER NOT NULL,
		image_path     TEXT NOT NULL,
		image_out_path TEXT NOT NULL DEFAULT '',
		coord          TEXT NOT NULL,
		depth          REAL NOT NULL,
		priority       INTEGER NOT NULL,
		bbox_id        INTEGER NOT NULL DEFAULT 0,
		enqueue_time   INTEGER NOT NULL,
		exec_time      INTEGER NOT NULL,
		response_time  INTEGER NOT NULL,
		deadline       INTEGER NOT NULL,
		missed         INTEGER NOT NULL DEFAULT 0,
		task_order     INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS scheduled_boxes (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		image  TEXT NOT NULL,
		seq    INTEGER NOT NULL,
		x0     INTEGER NOT NULL,
		y0     INTEGER NOT NULL,
		x1     INTEGER NOT NULL,
		y1     INTEGER NOT NULL,
		depth  REAL NOT NULL,
		PRIMARY KEY (run_id, image, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_history_missed ON history(run_id, missed)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "runs",
		column:   "source",
		alterSQL: "ALTER TABLE runs ADD COLUMN source TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source)",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
