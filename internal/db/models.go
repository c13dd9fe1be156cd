package db

import (
	"database/sql"
	"encoding/json"
	"time"
)

// RunRecord is the durable row for one research run.
type RunRecord struct {
	RunID       string        `db:"run_id"`
	Query       string        `db:"query"`
	Status      string        `db:"status"`
	Iteration   int           `db:"iteration"`
	Confidence  sql.NullInt64 `db:"confidence"`
	ErrorCount  int           `db:"error_count"`
	StartedAt   time.Time     `db:"started_at"`
	CompletedAt sql.NullTime  `db:"completed_at"`
	UpdatedAt   time.Time     `db:"updated_at"`
}

// ReportRecord is the durable row for a finished run's report: the rendered
// plain-text document plus the structured JSON form.
type ReportRecord struct {
	RunID       string          `db:"run_id"`
	Title       string          `db:"title"`
	Body        string          `db:"body"`
	ReportJSON  json.RawMessage `db:"report_json"`
	GeneratedAt time.Time       `db:"generated_at"`
}
