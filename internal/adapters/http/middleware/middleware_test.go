package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(router *gin.Engine, method, target string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		path      string
		status    int
		skipPaths []string
		wantLevel string
	}{
		{name: "success at info", path: "/api/quotes", status: http.StatusOK, wantLevel: "INFO"},
		{name: "client error at warn", path: "/api/quotes", status: http.StatusBadRequest, wantLevel: "WARN"},
		{name: "server error at error", path: "/api/quotes", status: http.StatusInternalServerError, wantLevel: "ERROR"},
		{name: "liveness skipped", path: "/-/live", status: http.StatusOK},
		{name: "configured path skipped", path: "/health", status: http.StatusOK, skipPaths: []string{"/health"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			router := gin.New()
			router.Use(Logging(slog.New(slog.NewJSONHandler(&buf, nil)), tt.skipPaths...))
			router.GET(tt.path, func(c *gin.Context) { c.Status(tt.status) })

			w := serve(router, http.MethodGet, tt.path+"?limit=1")
			assert.Equal(t, tt.status, w.Code)

			if tt.wantLevel == "" {
				assert.Empty(t, buf.String())
				return
			}

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "request completed", entry["msg"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.path, entry["route"])
			assert.Equal(t, tt.path+"?limit=1", entry["path"])
			assert.InDelta(t, tt.status, entry["status"], 0)
		})
	}
}

func TestLogging_UsesRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), logger))
	}, RequestID(), Logging(slog.New(slog.DiscardHandler)), RequireAuth(nil))
	router.POST("/api/quotes", func(c *gin.Context) { c.Status(http.StatusCreated) })

	serve(router, http.MethodPost, "/api/quotes", HeaderRequestID, "req-5", "X-User-ID", "curator-1")

	out := buf.String()
	assert.Contains(t, out, `"subject":"curator-1"`)
	assert.Contains(t, out, `"request_id":"req-5"`)
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	t.Run("passes through", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery(slog.New(slog.NewTextHandler(io.Discard, nil))))
		router.GET("/api/quotes", func(c *gin.Context) { c.Status(http.StatusOK) })

		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/quotes").Code)
	})

	t.Run("panic becomes internal error envelope", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		var hooked any
		var stack []byte

		router := gin.New()
		router.Use(Recovery(slog.New(slog.NewJSONHandler(&buf, nil)), func(r any, s []byte) {
			hooked, stack = r, s
		}))
		router.GET("/trmnl/markup", func(*gin.Context) { panic("template exploded") })

		w := serve(router, http.MethodGet, "/trmnl/markup", HeaderRequestID, "req-77")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"INTERNAL_ERROR"`)
		assert.Contains(t, w.Body.String(), `"traceId":"req-77"`)
		assert.NotContains(t, w.Body.String(), "template exploded")
		assert.Contains(t, buf.String(), "panic recovered")
		assert.Equal(t, "template exploded", hooked)
		assert.NotEmpty(t, stack)
	})

	t.Run("partial response left alone", func(t *testing.T) {
		t.Parallel()

		router := gin.New()
		router.Use(Recovery(slog.New(slog.NewTextHandler(io.Discard, nil))))
		router.GET("/api/quotes", func(c *gin.Context) {
			c.String(http.StatusOK, "[")
			panic("encoder failed")
		})

		w := serve(router, http.MethodGet, "/api/quotes")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[", w.Body.String())
	})
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		timeout      time.Duration
		skip         []string
		handler      gin.HandlerFunc
		wantCode     int
		wantBody     string
		wantDeadline bool
	}{
		{
			name:         "fast handler keeps its answer",
			timeout:      time.Second,
			handler:      func(c *gin.Context) { c.Status(http.StatusOK) },
			wantCode:     http.StatusOK,
			wantDeadline: true,
		},
		{
			name:     "skipped path has no deadline",
			timeout:  time.Second,
			skip:     []string{"/api/quotes"},
			handler:  func(c *gin.Context) { c.Status(http.StatusOK) },
			wantCode: http.StatusOK,
		},
		{
			name:     "zero timeout disables the deadline",
			handler:  func(c *gin.Context) { c.Status(http.StatusOK) },
			wantCode: http.StatusOK,
		},
		{
			name:         "silent handler gets timeout envelope",
			timeout:      10 * time.Millisecond,
			handler:      func(c *gin.Context) { <-c.Request.Context().Done() },
			wantCode:     http.StatusGatewayTimeout,
			wantBody:     `"code":"TIMEOUT"`,
			wantDeadline: true,
		},
		{
			name:    "late answer is kept",
			timeout: 10 * time.Millisecond,
			handler: func(c *gin.Context) {
				<-c.Request.Context().Done()
				c.String(http.StatusServiceUnavailable, "store busy")
			},
			wantCode:     http.StatusServiceUnavailable,
			wantBody:     "store busy",
			wantDeadline: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var hasDeadline bool

			router := gin.New()
			router.Use(Timeout(tt.timeout, tt.skip...))
			router.GET("/api/quotes", func(c *gin.Context) {
				_, hasDeadline = c.Request.Context().Deadline()
				tt.handler(c)
			})

			w := serve(router, http.MethodGet, "/api/quotes")

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.Equal(t, tt.wantDeadline, hasDeadline)
		})
	}
}
