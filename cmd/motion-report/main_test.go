package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/report"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// seedDB writes two sessions; the gait session is the newest.
func seedDB(t *testing.T) (path, tremorID, gaitID string) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "motion.db")
	store, err := db.NewDB(path)
	require.NoError(t, err)
	defer store.Close()

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, mode := range []motion.Mode{motion.ModeTremor, motion.ModeGait} {
		begin := start.Add(time.Duration(i) * time.Hour)
		s, err := store.StartSession(mode, begin)
		require.NoError(t, err)
		snap := motion.DefaultSnapshot()
		snap.Mode = mode
		for j := 0; j < 4; j++ {
			snap.TremorAmplitude = 0.1 * float64(j)
			snap.SessionStepCount = uint(j)
			require.NoError(t, store.RecordSample(s.ID, begin.Add(time.Duration(j)*time.Second), snap))
		}
		require.NoError(t, store.EndSession(s.ID, begin.Add(4*time.Second), snap))
		if mode == motion.ModeTremor {
			tremorID = s.ID
		} else {
			gaitID = s.ID
		}
	}
	return path, tremorID, gaitID
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionsCommand(t *testing.T) {
	path, tremorID, gaitID := seedDB(t)

	t.Run("table", func(t *testing.T) {
		out, err := run(t, "sessions", "--db", path, "--summary")
		require.NoError(t, err)
		assert.Contains(t, out, "MEAN AMP")
		assert.Contains(t, out, tremorID)
		assert.Contains(t, out, gaitID)
		assert.Less(t, bytes.Index([]byte(out), []byte(gaitID)), bytes.Index([]byte(out), []byte(tremorID)), "newest first")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "sessions", "--db", path, "--json", "--limit", "1")
		require.NoError(t, err)
		var sessions []db.Session
		require.NoError(t, json.Unmarshal([]byte(out), &sessions))
		require.Len(t, sessions, 1)
		assert.Equal(t, gaitID, sessions[0].ID)
	})
}

func TestPlotCommand(t *testing.T) {
	path, tremorID, _ := seedDB(t)
	out := filepath.Join(t.TempDir(), "tremor.png")

	stdout, err := run(t, "plot", "--db", path, "--session", tremorID, "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "4 samples")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestSummaryCommand(t *testing.T) {
	path, _, gaitID := seedDB(t)

	out, err := run(t, "summary", "--db", path)
	require.NoError(t, err)

	var got struct {
		Session db.Session     `json:"session"`
		Summary report.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, gaitID, got.Session.ID, "defaults to the newest session")
	assert.Equal(t, 4, got.Summary.Samples)
	assert.InDelta(t, 0.3, got.Summary.PeakAmplitude, 1e-9)
	assert.Equal(t, uint(3), got.Summary.Steps)
}

func TestCommandErrors(t *testing.T) {
	path, _, _ := seedDB(t)

	_, err := run(t, "sessions", "--db", filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorIs(t, err, os.ErrNotExist, "a missing database is not created")

	_, err = run(t, "plot", "--db", path, "--session", "nope")
	assert.ErrorIs(t, err, db.ErrNotFound)

	empty := filepath.Join(t.TempDir(), "empty.db")
	store, err := db.NewDB(empty)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	_, err = run(t, "summary", "--db", empty)
	assert.ErrorIs(t, err, errNoSessions)
}
