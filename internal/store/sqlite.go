package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/electricitymaps/carbonshift/pkg/model"

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

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
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

const stepColumns = `id, name, state, patience_ns, expected_duration_ns, latitude, longitude,
	optimization_metric, recommended_start, wake_at, output, error_code, error_message,
	labels, created_at, evaluated_at, completed_at`

func (s *SQLiteStore) CreateStep(ctx context.Context, step *model.Step) error {
	s.logger.Debug("sql", "op", "insert", "table", "steps", "id", step.ID)

	labelsJSON, err := json.Marshal(step.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	outputJSON, err := marshalOutput(step.Output)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO steps (`+stepColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.Name, step.State,
		int64(step.Policy.Patience), int64(step.Policy.ExpectedDuration),
		step.Policy.Location.Latitude, step.Policy.Location.Longitude,
		step.Policy.OptimizationMetric,
		nullableTime(step.RecommendedStart), nullableTime(step.WakeAt), outputJSON,
		string(step.ErrorCode), step.ErrorMessage, string(labelsJSON),
		step.CreatedAt.UTC().Format(timeFormat),
		nullableTime(step.EvaluatedAt), nullableTime(step.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) GetStep(ctx context.Context, id string) (*model.Step, error) {
	s.logger.Debug("sql", "op", "select", "table", "steps", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+stepColumns+` FROM steps WHERE id = ?`, id)
	step, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return step, err
}

func (s *SQLiteStore) ListSteps(ctx context.Context, opts model.ListOptions) ([]*model.Step, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "steps", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := ""
	args := []any{}
	if opts.State != "" {
		where = " WHERE state = ?"
		args = append(args, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM steps`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var steps []*model.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, 0, err
		}
		steps = append(steps, step)
	}
	return steps, total, rows.Err()
}

func (s *SQLiteStore) UpdateStep(ctx context.Context, step *model.Step, prev model.StepState) error {
	s.logger.Debug("sql", "op", "update", "table", "steps", "id", step.ID, "state", step.State, "prev", prev)

	labelsJSON, err := json.Marshal(step.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	outputJSON, err := marshalOutput(step.Output)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE steps SET name = ?, state = ?, patience_ns = ?, expected_duration_ns = ?,
			latitude = ?, longitude = ?, optimization_metric = ?,
			recommended_start = ?, wake_at = ?, output = ?,
			error_code = ?, error_message = ?, labels = ?,
			evaluated_at = ?, completed_at = ?
		 WHERE id = ? AND state = ?`,
		step.Name, step.State,
		int64(step.Policy.Patience), int64(step.Policy.ExpectedDuration),
		step.Policy.Location.Latitude, step.Policy.Location.Longitude,
		step.Policy.OptimizationMetric,
		nullableTime(step.RecommendedStart), nullableTime(step.WakeAt), outputJSON,
		string(step.ErrorCode), step.ErrorMessage, string(labelsJSON),
		nullableTime(step.EvaluatedAt), nullableTime(step.CompletedAt),
		step.ID, prev,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("step %s: %w", step.ID, ErrStaleStep)
	}
	return nil
}

func (s *SQLiteStore) GetStepsByState(ctx context.Context, state model.StepState) ([]*model.Step, error) {
	s.logger.Debug("sql", "op", "select_by_state", "table", "steps", "state", state)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM steps WHERE state = ? ORDER BY created_at`, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*model.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *SQLiteStore) GetDueSteps(ctx context.Context, now time.Time) ([]*model.Step, error) {
	s.logger.Debug("sql", "op", "select_due", "table", "steps", "now", now)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM steps
		 WHERE state = ? AND wake_at IS NOT NULL AND wake_at <= ?
		 ORDER BY wake_at`,
		model.StepStateWaiting, now.UTC().Format(timeFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*model.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *SQLiteStore) RegisterWakeup(ctx context.Context, stepID string, at time.Time) error {
	s.logger.Debug("sql", "op", "register_wakeup", "table", "steps", "id", stepID, "at", at)

	res, err := s.db.ExecContext(ctx,
		`UPDATE steps SET wake_at = ? WHERE id = ?`,
		at.UTC().Format(timeFormat), stepID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("step %s not found", stepID)
	}
	return nil
}

// timeFormat is RFC3339 with a fixed-width fractional second so stored
// UTC timestamps order lexicographically; the due-wake-up scan relies on
// that for its wake_at comparison.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStep(sc scanner) (*model.Step, error) {
	var (
		step                     model.Step
		patienceNS, expectedNS   int64
		metric                   string
		recommendedStart, wakeAt sql.NullString
		output                   sql.NullString
		errorCode                string
		labelsJSON, createdAt    string
		evaluatedAt, completedAt sql.NullString
	)

	err := sc.Scan(&step.ID, &step.Name, &step.State, &patienceNS, &expectedNS,
		&step.Policy.Location.Latitude, &step.Policy.Location.Longitude,
		&metric, &recommendedStart, &wakeAt, &output,
		&errorCode, &step.ErrorMessage, &labelsJSON,
		&createdAt, &evaluatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	step.Policy.Patience = time.Duration(patienceNS)
	step.Policy.ExpectedDuration = time.Duration(expectedNS)
	step.Policy.OptimizationMetric = metric
	step.ErrorCode = model.ErrorCode(errorCode)

	if err := json.Unmarshal([]byte(labelsJSON), &step.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	if output.Valid && output.String != "" {
		var out model.OptimizationOutput
		if err := json.Unmarshal([]byte(output.String), &out); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
		step.Output = &out
	}

	if step.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if step.RecommendedStart, err = parseNullableTime("recommended_start", recommendedStart); err != nil {
		return nil, err
	}
	if step.WakeAt, err = parseNullableTime("wake_at", wakeAt); err != nil {
		return nil, err
	}
	if step.EvaluatedAt, err = parseNullableTime("evaluated_at", evaluatedAt); err != nil {
		return nil, err
	}
	if step.CompletedAt, err = parseNullableTime("completed_at", completedAt); err != nil {
		return nil, err
	}

	return &step, nil
}

func marshalOutput(out *model.OptimizationOutput) (sql.NullString, error) {
	if out == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal output: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func parseNullableTime(column string, s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", column, err)
	}
	return &t, nil
}
