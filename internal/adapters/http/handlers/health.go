// Package handlers holds the gin handlers for the quote API, the TRMNL
// plugin endpoints and the operational endpoints.
package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/dto"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
	"github.com/jsamuelsen/trmnl-quotes/internal/ports"
)

// BuildInfo is served at /-/build. Version, Commit and BuildTime come from
// ldflags.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// NewBuildInfo fills GoVersion from the running binary.
func NewBuildInfo(version, commit, buildTime string) BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime, GoVersion: runtime.Version()}
}

// QuoteCounter reports the size of the quote collection.
type QuoteCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthHandler serves the /-/ endpoints and the /health status page.
type HealthHandler struct {
	registry  ports.HealthRegistry
	buildInfo BuildInfo
	counter   QuoteCounter
	interval  time.Duration
	now       func() time.Time
}

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithQuoteStatus adds the collection size and dispatch interval to /health.
func WithQuoteStatus(counter QuoteCounter, interval time.Duration) HealthOption {
	return func(h *HealthHandler) {
		h.counter, h.interval = counter, interval
	}
}

// WithHealthClock overrides the timestamp source of /health.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandler) { h.now = now }
}

// NewHealthHandler builds the handler. A nil registry makes /-/ready
// report healthy with no checks.
func NewHealthHandler(registry ports.HealthRegistry, buildInfo BuildInfo, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{registry: registry, buildInfo: buildInfo, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

type opsResponse struct {
	Status string                        `json:"status"`
	Checks map[string]*ports.CheckResult `json:"checks,omitempty"`
}

// Liveness answers 200 while the process runs. It never touches the store.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, opsResponse{Status: "ok"})
}

// Readiness runs the registered checks: 200 when all pass, 503 otherwise.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if h.registry == nil {
		c.JSON(http.StatusOK, opsResponse{Status: string(ports.HealthStatusHealthy)})
		return
	}

	result := h.registry.CheckAll(c.Request.Context())

	code := http.StatusOK
	if result.Status == ports.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, opsResponse{Status: string(result.Status), Checks: result.Checks})
}

// Health handles GET /health. A store that cannot be counted makes it
// answer 503 with status "unhealthy".
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	resp := dto.HealthResponse{
		Status:          "healthy",
		IntervalMinutes: int(h.interval / time.Minute),
		Timestamp:       h.now(),
	}

	code := http.StatusOK

	if h.counter != nil {
		n, err := h.counter.Count(ctx)
		switch {
		case err != nil:
			logging.FromContext(ctx).WarnContext(ctx, "counting quotes for health", "error", err.Error())
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		default:
			resp.QuotesCount = n
		}
	}

	c.JSON(code, resp)
}

// BuildInfoHandler serves /-/build.
func (h *HealthHandler) BuildInfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.buildInfo)
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RegisterHealthRoutes mounts live, ready, build and metrics on rg.
func (h *HealthHandler) RegisterHealthRoutes(rg *gin.RouterGroup) {
	rg.GET("/live", h.Liveness)
	rg.GET("/ready", h.Readiness)
	rg.GET("/build", h.BuildInfoHandler)
	rg.GET("/metrics", gin.WrapH(MetricsHandler()))
}

// RegisterHealthRoutesOnEngine mounts the ops endpoints under /-/ and the status
// page at /health.
func (h *HealthHandler) RegisterHealthRoutesOnEngine(engine *gin.Engine) {
	h.RegisterHealthRoutes(engine.Group("/-"))
	engine.GET("/health", h.Health)
}
