//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/clients"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/clients/acl"
	httpadapter "github.com/jsamuelsen/trmnl-quotes/internal/adapters/http"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/handlers"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/sources"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/storage/boltdb"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/storage/jsonfile"
	"github.com/jsamuelsen/trmnl-quotes/internal/app"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/config"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/metrics"
	"github.com/jsamuelsen/trmnl-quotes/internal/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type quoteStore interface {
	ports.QuoteRepository
	ports.HealthChecker
}

// webhookRecorder is a fake TRMNL webhook that keeps every payload.
type webhookRecorder struct {
	*httptest.Server

	mu       sync.Mutex
	payloads []map[string]map[string]string
	status   int
}

func newWebhookRecorder() *webhookRecorder {
	rec := &webhookRecorder{status: http.StatusOK}
	rec.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]map[string]string
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)

		rec.mu.Lock()
		rec.payloads = append(rec.payloads, payload)
		status := rec.status
		rec.mu.Unlock()

		w.WriteHeader(status)
	}))

	return rec
}

func (w *webhookRecorder) setStatus(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = code
}

func (w *webhookRecorder) deliveries() []map[string]map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]map[string]map[string]string, len(w.payloads))
	copy(out, w.payloads)

	return out
}

// waitForDeliveries polls until n payloads arrived or the timeout passes.
func (w *webhookRecorder) waitForDeliveries(n int, timeout time.Duration) []map[string]map[string]string {
	deadline := time.Now().Add(timeout)
	for {
		got := w.deliveries()
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// stack is one fully wired service instance served by httptest.
type stack struct {
	server    *httptest.Server
	store     quoteStore
	scheduler *app.Scheduler
	webhook   *webhookRecorder
	closers   []func()
}

type stackOptions struct {
	driver     string
	dir        string
	auth       *config.AuthConfig
	noWebhook  bool
	retryLimit int
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStack wires the same components main does, with an isolated store,
// a private Prometheus registry and a fake webhook.
func newStack(opts stackOptions) (*stack, error) {
	logger := discardLogger()
	s := &stack{}

	var err error
	switch opts.driver {
	case "bolt":
		var bs *boltdb.Store
		bs, err = boltdb.Open(&boltdb.Config{Path: filepath.Join(opts.dir, "quotes.db"), Logger: logger})
		if err != nil {
			return nil, err
		}
		s.store = bs
		s.closers = append(s.closers, func() { _ = bs.Close() })
	default:
		s.store = jsonfile.New(filepath.Join(opts.dir, "quotes.json"), jsonfile.WithLogger(logger))
	}

	m := metrics.New(prometheus.NewRegistry())
	registry := ports.NewHealthRegistry()
	if err := registry.Register(s.store); err != nil {
		return nil, err
	}

	service := app.NewQuoteService(app.QuoteServiceConfig{
		Repository: s.store,
		Source:     sources.NewDailyStoic(time.Now),
		Metrics:    m,
		Logger:     logger,
	})

	var notifier ports.QuoteNotifier
	if !opts.noWebhook {
		s.webhook = newWebhookRecorder()
		s.closers = append(s.closers, s.webhook.Close)

		attempts := opts.retryLimit
		if attempts == 0 {
			attempts = 1
		}

		client, err := clients.New(&clients.Config{
			BaseURL:     s.webhook.URL,
			ServiceName: acl.TRMNLServiceName,
			Timeout:     2 * time.Second,
			Retry: config.RetryConfig{
				MaxAttempts:     attempts,
				InitialInterval: time.Millisecond,
				MaxInterval:     5 * time.Millisecond,
				Multiplier:      2,
			},
			Circuit: config.CircuitBreakerConfig{MaxFailures: 5, Timeout: time.Second, HalfOpenLimit: 1},
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}

		if err := registry.Register(client); err != nil {
			return nil, err
		}

		notifier = acl.NewTRMNLNotifier(acl.TRMNLNotifierConfig{Client: client, Logger: logger})
	}

	dispatcher := app.NewDispatcher(app.DispatcherConfig{
		Repository: s.store,
		Notifier:   notifier,
		Timeout:    2 * time.Second,
		Metrics:    m,
		Logger:     logger,
	})

	interval := 30 * time.Minute
	s.scheduler = app.NewScheduler(app.SchedulerConfig{
		Deliverer: dispatcher,
		Interval:  interval,
		Disabled:  true,
		Logger:    logger,
	})
	s.scheduler.Start()

	engine := gin.New()
	httpadapter.SetupRouter(engine, httpadapter.RouterConfig{
		Logger:     logger,
		AuthConfig: opts.auth,
		AppConfig:  &config.AppConfig{Name: "trmnl-quotes"},
		HealthHandler: handlers.NewHealthHandler(registry, handlers.NewBuildInfo("test", "none", "now"),
			handlers.WithQuoteStatus(service, interval)),
		QuoteHandler: handlers.NewQuoteHandler(service, s.scheduler),
		TRMNLHandler: handlers.NewTRMNLHandler(service, interval),
		Timeout:      5 * time.Second,
	})

	s.server = httptest.NewServer(engine)

	return s, nil
}

func (s *stack) close() {
	s.server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.scheduler.Stop(ctx)

	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// mustStack is newStack for plain tests.
func mustStack(t *testing.T, opts stackOptions) *stack {
	t.Helper()

	if opts.dir == "" {
		opts.dir = t.TempDir()
	}

	s, err := newStack(opts)
	if err != nil {
		t.Fatalf("wiring stack: %v", err)
	}
	t.Cleanup(s.close)

	return s
}

// postJSON posts body (empty for none) and closes the response.
func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	_ = resp.Body.Close()

	return resp
}
