package middlewares_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyluong2025/verp-sub017/middlewares"
	"github.com/tonyluong2025/verp-sub017/pkg/logger"
)

func jsonLogger(buf *bytes.Buffer, extractors ...logger.ContextExtractor) *slog.Logger {
	return logger.NewWithWriter(buf, logger.Config{Level: "debug", Format: "json"}, extractors...)
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("generates id", func(t *testing.T) {
		t.Parallel()
		var seen string
		h := middlewares.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = middlewares.GetRequestID(r.Context())
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, seen)
		assert.Len(t, seen, 26)
		assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	})

	t.Run("keeps incoming id", func(t *testing.T) {
		t.Parallel()
		var seen string
		h := middlewares.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = middlewares.GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Correlation-ID", "corr-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "corr-1", seen)
		assert.Equal(t, "corr-1", rec.Header().Get("X-Request-ID"))
	})

	t.Run("custom options", func(t *testing.T) {
		t.Parallel()
		h := middlewares.RequestID(
			middlewares.WithRequestIDHeaders("X-Trace"),
			middlewares.WithRequestIDGenerator(func() string { return "fixed" }),
			middlewares.WithRequestIDResponseHeader("X-Trace"),
		)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "ignored")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "fixed", rec.Header().Get("X-Trace"))
	})

	t.Run("empty context", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, middlewares.GetRequestID(context.Background()))
	})
}

func TestRequestIDExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := jsonLogger(&buf, middlewares.RequestIDExtractor())
	h := middlewares.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.InfoContext(r.Context(), "inside")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "rid-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "rid-7", lines[0]["request_id"])
}

func TestRecover(t *testing.T) {
	t.Parallel()

	t.Run("writes 500", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		h := middlewares.Recover(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/x.css", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "panic recovered", lines[0]["msg"])
		assert.Equal(t, "boom", lines[0]["panic"])
		assert.Contains(t, lines[0]["stack"], "goroutine")
	})

	t.Run("keeps started response", func(t *testing.T) {
		t.Parallel()
		h := middlewares.Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			panic("late")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("custom handler without stack", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		var got *middlewares.PanicError
		h := middlewares.Recover(jsonLogger(&buf),
			middlewares.WithRecoverDisablePrintStack(),
			middlewares.WithRecoverHandler(func(w http.ResponseWriter, r *http.Request, pe *middlewares.PanicError) {
				got = pe
				w.WriteHeader(http.StatusServiceUnavailable)
			}),
		)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(42)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, 42, got.Value)
		assert.Nil(t, got.Stack)
		assert.Equal(t, "panic: 42", got.Error())
		assert.True(t, middlewares.IsPanicError(got))
		pe, ok := middlewares.AsPanicError(got)
		assert.True(t, ok)
		assert.Same(t, got, pe)
		assert.NotContains(t, decodeLines(t, &buf)[0], "stack")
	})

	t.Run("abort handler propagates", func(t *testing.T) {
		t.Parallel()
		h := middlewares.Recover(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	t.Run("sets deadline", func(t *testing.T) {
		t.Parallel()
		var deadline time.Time
		var ok bool
		h := middlewares.Timeout(time.Minute, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deadline, ok = r.Context().Deadline()
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
	})

	t.Run("logs overrun", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		h := middlewares.Timeout(10*time.Millisecond, jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			w.WriteHeader(http.StatusGatewayTimeout)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "request timeout", lines[0]["msg"])
		assert.Equal(t, "/slow", lines[0]["path"])
	})

	t.Run("quiet when in time", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		h := middlewares.Timeout(time.Second, jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Empty(t, buf.String())
	})
}

func TestAccessLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		level  string
	}{
		{"ok", http.StatusOK, "hello", "INFO"},
		{"client error", http.StatusNotFound, "missing", "WARN"},
		{"server error", http.StatusInternalServerError, "", "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			h := middlewares.AccessLog(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/web/login", nil))

			lines := decodeLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tt.level, lines[0]["level"])
			assert.Equal(t, "POST", lines[0]["method"])
			assert.Equal(t, "/web/login", lines[0]["path"])
			assert.EqualValues(t, tt.status, lines[0]["status"])
			assert.EqualValues(t, len(tt.body), lines[0]["size"])
		})
	}
}
