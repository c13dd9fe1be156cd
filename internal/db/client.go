// Package db persists research runs and reports to Postgres. Writes from
// the hot path go through an async queue so a slow database never stalls a
// workflow activity; reads are synchronous for the HTTP API.
package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/meridianlabs-ai/deepresearch/internal/config"
)

const (
	writeQueueSize = 1000
	writeWorkers   = 4
	writeTimeout   = 10 * time.Second
)

type writeKind int

const (
	writeRunUpsert writeKind = iota
	writeReportInsert
)

type writeRequest struct {
	kind   writeKind
	run    *RunRecord
	report *ReportRecord
}

// Client manages the connection pool and the async write queue.
type Client struct {
	db     *sqlx.DB
	logger *zap.Logger

	writeQueue chan writeRequest
	stopCh     chan struct{}
	workerWg   sync.WaitGroup
}

// NewClient opens the pool, verifies connectivity, and starts the write
// workers.
func NewClient(cfg config.DatabaseConfig, logger *zap.Logger) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode,
	)

	pool, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	c := newClientWithDB(pool, logger)
	logger.Info("Database client initialized",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)
	return c, nil
}

func newClientWithDB(pool *sqlx.DB, logger *zap.Logger) *Client {
	c := &Client{
		db:         pool,
		logger:     logger,
		writeQueue: make(chan writeRequest, writeQueueSize),
		stopCh:     make(chan struct{}),
	}
	for i := 0; i < writeWorkers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker()
	}
	return c
}

func (c *Client) writeWorker() {
	defer c.workerWg.Done()
	for {
		select {
		case req := <-c.writeQueue:
			c.handleWrite(req)
		case <-c.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case req := <-c.writeQueue:
					c.handleWrite(req)
				default:
					return
				}
			}
		}
	}
}

func (c *Client) handleWrite(req writeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch req.kind {
	case writeRunUpsert:
		err = c.UpsertRun(ctx, req.run)
	case writeReportInsert:
		err = c.SaveReport(ctx, req.report)
	}
	if err != nil {
		c.logger.Error("Async database write failed", zap.Error(err))
	}
}

// enqueue never blocks; when the queue is full the write is dropped and
// logged. Run state in Redis remains authoritative for live reads.
func (c *Client) enqueue(req writeRequest) {
	select {
	case c.writeQueue <- req:
	default:
		c.logger.Warn("Database write queue full, dropping write")
	}
}

// EnqueueRunUpsert schedules an async run row upsert.
func (c *Client) EnqueueRunUpsert(run *RunRecord) { c.enqueue(writeRequest{kind: writeRunUpsert, run: run}) }

// EnqueueReport schedules an async report insert.
func (c *Client) EnqueueReport(rep *ReportRecord) {
	c.enqueue(writeRequest{kind: writeReportInsert, report: rep})
}

// UpsertRun writes the run row, replacing mutable fields on conflict.
func (c *Client) UpsertRun(ctx context.Context, run *RunRecord) error {
	const q = `
		INSERT INTO research_runs (run_id, query, status, iteration, confidence, error_count, started_at, completed_at, updated_at)
		VALUES (:run_id, :query, :status, :iteration, :confidence, :error_count, :started_at, :completed_at, :updated_at)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			iteration = EXCLUDED.iteration,
			confidence = EXCLUDED.confidence,
			error_count = EXCLUDED.error_count,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at`
	if _, err := c.db.NamedExecContext(ctx, q, run); err != nil {
		return fmt.Errorf("upsert run %s: %w", run.RunID, err)
	}
	return nil
}

// SaveReport writes the report row for a finished run.
func (c *Client) SaveReport(ctx context.Context, rep *ReportRecord) error {
	const q = `
		INSERT INTO research_reports (run_id, title, body, report_json, generated_at)
		VALUES (:run_id, :title, :body, :report_json, :generated_at)
		ON CONFLICT (run_id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			report_json = EXCLUDED.report_json,
			generated_at = EXCLUDED.generated_at`
	if _, err := c.db.NamedExecContext(ctx, q, rep); err != nil {
		return fmt.Errorf("save report %s: %w", rep.RunID, err)
	}
	return nil
}

// GetRun returns the run row, or sql.ErrNoRows.
func (c *Client) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var run RunRecord
	const q = `SELECT run_id, query, status, iteration, confidence, error_count, started_at, completed_at, updated_at
		FROM research_runs WHERE run_id = $1`
	if err := c.db.GetContext(ctx, &run, q, runID); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetReport returns the report row, or sql.ErrNoRows.
func (c *Client) GetReport(ctx context.Context, runID string) (*ReportRecord, error) {
	var rep ReportRecord
	const q = `SELECT run_id, title, body, report_json, generated_at
		FROM research_reports WHERE run_id = $1`
	if err := c.db.GetContext(ctx, &rep, q, runID); err != nil {
		return nil, err
	}
	return &rep, nil
}

// ListRuns returns recent run rows, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var runs []RunRecord
	const q = `SELECT run_id, query, status, iteration, confidence, error_count, started_at, completed_at, updated_at
		FROM research_runs ORDER BY started_at DESC LIMIT $1`
	if err := c.db.SelectContext(ctx, &runs, q, limit); err != nil {
		return nil, err
	}
	return runs, nil
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close drains queued writes, stops workers, and closes the pool.
func (c *Client) Close() error {
	close(c.stopCh)
	c.workerWg.Wait()
	return c.db.Close()
}
