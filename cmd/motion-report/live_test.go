package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/admission"
	"github.com/banshee-data/motion.report/internal/api"
	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/motion"
)

func newDaemon(t *testing.T) (*motion.Engine, string) {
	t.Helper()
	engine := motion.NewEngine(motion.DefaultCalibration())
	mux := http.NewServeMux()
	api.NewServer(api.Config{Engine: engine, Frames: admission.New(nil, 0)}).AttachRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return engine, ts.URL
}

func TestLiveCommand(t *testing.T) {
	_, url := newDaemon(t)

	out, err := run(t, "live", "--url", url, "--count", "2", "--interval", "1ms")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, "header plus two readings:\n%s", out)
	assert.Contains(t, lines[0], "AMPLITUDE")
	assert.True(t, strings.HasPrefix(lines[1], "tremor"), lines[1])
	assert.Contains(t, lines[1], "false")
}

func TestControlCommands(t *testing.T) {
	engine, url := newDaemon(t)

	decode := func(out string) httputil.Reading {
		t.Helper()
		var r httputil.Reading
		require.NoError(t, json.Unmarshal([]byte(out), &r))
		return r
	}

	out, err := run(t, "control", "mode", "gait", "--url", url)
	require.NoError(t, err)
	assert.Equal(t, "gait", decode(out).Mode)
	assert.Equal(t, motion.ModeGait, engine.Mode())

	out, err = run(t, "control", "start", "--url", url)
	require.NoError(t, err)
	assert.True(t, decode(out).IsActive)
	assert.True(t, engine.Snapshot().IsActive)

	out, err = run(t, "control", "reset", "--url", url)
	require.NoError(t, err)
	assert.True(t, decode(out).IsActive)

	out, err = run(t, "control", "stop", "--url", url)
	require.NoError(t, err)
	assert.False(t, decode(out).IsActive)

	_, err = run(t, "control", "mode", "running", "--url", url)
	assert.Error(t, err)
}

func TestLiveCommand_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	_, err := run(t, "live", "--url", ts.URL, "--count", "1")
	assert.Error(t, err)
}
