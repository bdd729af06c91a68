package infra

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guizzs26/go-imei-sync/internal/config"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, time.Second, 2)

	for i := 0; i < 10; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
	assert.Equal(t, 10, b.Attempts())

	b.Reset()
	assert.Zero(t, b.Attempts())
	assert.LessOrEqual(t, b.Next(), 120*time.Millisecond)
}

func TestRetry(t *testing.T) {
	b := NewBackoff(time.Millisecond, 5*time.Millisecond, 2)
	calls := 0
	var seen []int

	v, err := Retry(context.Background(), b, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("refused")
		}
		return "ok", nil
	}, func(_ error, attempt int) { seen = append(seen, attempt) })

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Zero(t, b.Attempts(), "success resets the curve")
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBackoff(time.Hour, time.Hour, 2)

	_, err := Retry(ctx, b, func(context.Context) (int, error) { return 0, errors.New("down") }, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imeisync.log")
	var stdout bytes.Buffer

	l := newLogger(&stdout, &config.Config{LogLevel: "warn", LogFormat: "json", LogFile: path})
	l.Info("hidden")
	l.Warn("visible", "run_id", "r1")
	require.NoError(t, CloseLogger())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"visible"`)
	assert.Contains(t, string(data), `"run_id":"r1"`)
	assert.NotContains(t, string(data), "hidden")
	assert.Equal(t, string(data), stdout.String())
	assert.NoError(t, CloseLogger())
}

func TestHealthHandler(t *testing.T) {
	ok := true
	h := healthHandler("SCHEDULER", func() bool { return ok })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SCHEDULER ALIVE", rec.Body.String())

	ok = false
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
