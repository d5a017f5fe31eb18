package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/motion.report/internal/motion"
)

// Session is one recorded start..stop span of the engine.
type Session struct {
	ID              string     `json:"id"`
	Mode            string     `json:"mode"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	FramesProcessed uint64     `json:"frames_processed"`
	StepCount       uint       `json:"step_count"`
	LastError       string     `json:"last_error,omitempty"`
}

// MetricSample is one periodic snapshot of a session's metrics.
type MetricSample struct {
	SessionID          string    `json:"session_id"`
	SampledAt          time.Time `json:"sampled_at"`
	Mode               string    `json:"mode"`
	TremorAmplitude    float64   `json:"tremor_amplitude"`
	GaitStabilityIndex float64   `json:"gait_stability_index"`
	GaitSymmetryIndex  float64   `json:"gait_symmetry_index"`
	TremorTrend        string    `json:"tremor_trend"`
	StepCount          uint      `json:"step_count"`
	FramesProcessed    uint64    `json:"frames_processed"`
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// StartSession inserts a new open session and returns it.
func (db *DB) StartSession(mode motion.Mode, startedAt time.Time) (*Session, error) {
	s := &Session{
		ID:        NewSessionID(),
		Mode:      mode.String(),
		StartedAt: fromUnix(toUnix(startedAt)),
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, mode, started_unix) VALUES (?, ?, ?)`,
		s.ID, s.Mode, toUnix(startedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// EndSession closes an open session with its final counters.
func (db *DB) EndSession(id string, endedAt time.Time, final motion.Snapshot) error {
	var lastErr sql.NullString
	if final.LastError != nil {
		lastErr = sql.NullString{String: final.LastError.Error(), Valid: true}
	}
	res, err := db.Exec(
		`UPDATE sessions
		 SET ended_unix = ?, frames_processed = ?, step_count = ?, last_error = ?
		 WHERE session_id = ?`,
		toUnix(endedAt), final.FramesProcessed, final.SessionStepCount, lastErr, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordSample appends a metrics sample to a session.
func (db *DB) RecordSample(sessionID string, at time.Time, s motion.Snapshot) error {
	_, err := db.Exec(
		`INSERT INTO metric_samples (
			session_id, sampled_unix, mode, tremor_amplitude, gait_stability_index,
			gait_symmetry_index, tremor_trend, step_count, frames_processed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, toUnix(at), s.Mode.String(), s.TremorAmplitude, s.GaitStabilityIndex,
		s.GaitSymmetryIndex, s.TremorTrend.String(), s.SessionStepCount, s.FramesProcessed,
	)
	if err != nil {
		return fmt.Errorf("failed to record sample for session %s: %w", sessionID, err)
	}
	return nil
}

const sessionColumns = `session_id, mode, started_unix, ended_unix, frames_processed, step_count, last_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	var (
		s       Session
		started float64
		ended   sql.NullFloat64
		lastErr sql.NullString
	)
	if err := r.Scan(&s.ID, &s.Mode, &started, &ended, &s.FramesProcessed, &s.StepCount, &lastErr); err != nil {
		return nil, err
	}
	s.StartedAt = fromUnix(started)
	if ended.Valid {
		t := fromUnix(ended.Float64)
		s.EndedAt = &t
	}
	s.LastError = lastErr.String
	return &s, nil
}

// Sessions returns the most recent sessions, newest first. A non-positive
// limit returns at most 100.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// SessionByID returns a single session or ErrNotFound.
func (db *DB) SessionByID(id string) (*Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return s, nil
}

// Samples returns every sample of a session in time order.
func (db *DB) Samples(sessionID string) ([]MetricSample, error) {
	rows, err := db.Query(
		`SELECT session_id, sampled_unix, mode, tremor_amplitude, gait_stability_index,
			gait_symmetry_index, tremor_trend, step_count, frames_processed
		 FROM metric_samples WHERE session_id = ? ORDER BY sampled_unix ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	samples := []MetricSample{}
	for rows.Next() {
		var (
			m  MetricSample
			ts float64
		)
		if err := rows.Scan(&m.SessionID, &ts, &m.Mode, &m.TremorAmplitude, &m.GaitStabilityIndex,
			&m.GaitSymmetryIndex, &m.TremorTrend, &m.StepCount, &m.FramesProcessed); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		m.SampledAt = fromUnix(ts)
		samples = append(samples, m)
	}
	return samples, rows.Err()
}

// DeleteSession removes a session and, by cascade, its samples.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete session %s: %w", id, ErrNotFound)
	}
	return nil
}
