// Package storage keeps an optional local journal of uploads, simulations
// and worker refresh runs. The backend stays the source of truth; the
// journal is history only.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"fluxo/internal/core"
	"fluxo/internal/events"
	"fluxo/internal/log"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	if _, err := RunMigrations(dbPath, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordUpload stores an upload. Recording the same event twice is a no-op.
func (r *SQLiteRepository) RecordUpload(ctx context.Context, u Upload) error {
	files, err := json.Marshal(u.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO uploads (id, files, has_outflow, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, string(files), u.HasOutflow, u.Message, u.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	r.logger.DebugContext(ctx, "Upload recorded", "id", u.ID, log.FieldFiles, u.Files)
	return nil
}

// RecordSimulation stores a scenario summary under kind.
func (r *SQLiteRepository) RecordSimulation(ctx context.Context, kind string, params map[string]any, s core.ScenarioSummary) (int64, error) {
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("encode parameters: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO simulations (kind, parameters, prob_negative, flow_min, flow_median, flow_max, risk, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		kind, string(encoded), s.ProbNegative, s.Min.String(), s.Median.String(), s.Max.String(),
		s.Risk().String(), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert simulation: %w", err)
	}
	return res.LastInsertId()
}

// RecordRefresh stores a worker refresh run.
func (r *SQLiteRepository) RecordRefresh(ctx context.Context, run RefreshRun) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_runs (source, message_id, days, points, months, status, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Source, run.MessageID, run.Days, run.Points, run.Months, run.Status, run.Error,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert refresh run: %w", err)
	}
	return res.LastInsertId()
}

// ListUploads returns the most recent uploads first.
func (r *SQLiteRepository) ListUploads(ctx context.Context, limit int) ([]Upload, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, files, has_outflow, message, created_at FROM uploads ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		var (
			u              Upload
			files, created string
		)
		if err := rows.Scan(&u.ID, &files, &u.HasOutflow, &u.Message, &created); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		if err := json.Unmarshal([]byte(files), &u.Files); err != nil {
			return nil, fmt.Errorf("decode files of upload %s: %w", u.ID, err)
		}
		u.CreatedAt = parseTime(created)
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListSimulations returns the most recent simulations first.
func (r *SQLiteRepository) ListSimulations(ctx context.Context, limit int) ([]Simulation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, parameters, prob_negative, flow_min, flow_median, flow_max, risk, created_at
		 FROM simulations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query simulations: %w", err)
	}
	defer rows.Close()

	var out []Simulation
	for rows.Next() {
		var (
			s                            Simulation
			params, lo, mid, hi, created string
		)
		if err := rows.Scan(&s.ID, &s.Kind, &params, &s.ProbNegative, &lo, &mid, &hi, &s.Risk, &created); err != nil {
			return nil, fmt.Errorf("scan simulation: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &s.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters of simulation %d: %w", s.ID, err)
		}
		s.Min = parseDecimal(lo)
		s.Median = parseDecimal(mid)
		s.Max = parseDecimal(hi)
		s.CreatedAt = parseTime(created)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListRefreshRuns returns the most recent runs first.
func (r *SQLiteRepository) ListRefreshRuns(ctx context.Context, limit int) ([]RefreshRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source, message_id, days, points, months, status, error, started_at, finished_at
		 FROM refresh_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query refresh runs: %w", err)
	}
	defer rows.Close()

	var out []RefreshRun
	for rows.Next() {
		var (
			run               RefreshRun
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.Source, &run.MessageID, &run.Days, &run.Points, &run.Months,
			&run.Status, &run.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan refresh run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		out = append(out, run)
	}
	return out, rows.Err()
}

// UploadRecorder returns a bus handler that journals every DataChanged event.
func (r *SQLiteRepository) UploadRecorder() events.Handler {
	return func(ctx context.Context, e events.Event) {
		if e.Kind != events.DataChanged || e.ID == "" {
			return
		}
		err := r.RecordUpload(ctx, Upload{
			ID:         e.ID,
			Files:      e.Files,
			HasOutflow: e.HasOutflow,
			Message:    e.Message,
			CreatedAt:  e.At,
		})
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to journal upload", log.FieldError, err, "id", e.ID)
		}
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
