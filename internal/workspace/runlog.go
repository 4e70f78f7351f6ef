package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/hexenrich/internal/timeutil"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one pipeline execution recorded in a workspace.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Stage      string
	Error      string
}

// RunMessage is a provider status message captured during a run.
type RunMessage struct {
	Seq     int
	Stage   string
	Message string
}

// RunLog records pipeline runs in the runs and run_messages tables of a
// workspace.
type RunLog struct {
	s     *store
	clock timeutil.Clock
}

// RunLog opens the run log of workspace, creating the workspace if needed.
func (m *Manager) RunLog(workspace string, clock timeutil.Clock) (*RunLog, error) {
	ws, err := ParseWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	s, err := m.open(ws, true)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RunLog{s: s, clock: clock}, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(f float64) time.Time {
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
}

// Start records a new running run and returns its ID.
func (r *RunLog) Start(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, status) VALUES (?, ?, ?)`,
		id.String(), unixSeconds(r.clock.Now()), RunRunning)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// SetStage records the stage a run has reached.
func (r *RunLog) SetStage(ctx context.Context, id uuid.UUID, stage string) error {
	_, err := r.s.db.ExecContext(ctx, `UPDATE runs SET stage = ? WHERE run_id = ?`, stage, id.String())
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	return nil
}

// AddMessages appends provider messages for stage.
func (r *RunLog) AddMessages(ctx context.Context, id uuid.UUID, stage string, msgs []string) error {
	if len(msgs) == 0 {
		return nil
	}
	var next int
	err := r.s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM run_messages WHERE run_id = ?`, id.String()).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to read run messages: %w", err)
	}
	for _, msg := range msgs {
		next++
		if _, err := r.s.db.ExecContext(ctx,
			`INSERT INTO run_messages (run_id, seq, stage, message) VALUES (?, ?, ?, ?)`,
			id.String(), next, stage, msg); err != nil {
			return fmt.Errorf("failed to record run message: %w", err)
		}
	}
	return nil
}

// Finish marks the run succeeded, or failed with runErr when it is non-nil.
func (r *RunLog) Finish(ctx context.Context, id uuid.UUID, runErr error) error {
	status, msg := RunSucceeded, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	_, err := r.s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE run_id = ?`,
		unixSeconds(r.clock.Now()), status, msg, id.String())
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	return nil
}

// Get returns the run with the given ID.
func (r *RunLog) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	var (
		run      Run
		rawID    string
		started  float64
		finished sql.NullFloat64
	)
	err := r.s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, status, stage, error FROM runs WHERE run_id = ?`,
		id.String()).Scan(&rawID, &started, &finished, &run.Status, &run.Stage, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}
	if run.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("corrupt run id %q: %w", rawID, err)
	}
	run.StartedAt = fromUnixSeconds(started)
	if finished.Valid {
		t := fromUnixSeconds(finished.Float64)
		run.FinishedAt = &t
	}
	return &run, nil
}

// Messages returns the messages recorded for a run in order.
func (r *RunLog) Messages(ctx context.Context, id uuid.UUID) ([]RunMessage, error) {
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT seq, stage, message FROM run_messages WHERE run_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read run messages: %w", err)
	}
	defer rows.Close()

	var msgs []RunMessage
	for rows.Next() {
		var m RunMessage
		if err := rows.Scan(&m.Seq, &m.Stage, &m.Message); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
