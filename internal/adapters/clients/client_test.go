package clients

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/middleware"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/config"
)

type mergeVars struct {
	MergeVariables map[string]string `json:"merge_variables"`
}

var delivery = mergeVars{MergeVariables: map[string]string{
	"text":   "You have power over your mind - not outside events.",
	"author": "Marcus Aurelius",
}}

// webhook is a fake TRMNL endpoint answering with the scripted statuses in
// order and repeating the last one. It records every body it receives.
type webhook struct {
	mu       sync.Mutex
	statuses []int
	bodies   []string
	headers  []http.Header
	calls    atomic.Int32
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	n := int(w.calls.Add(1))
	body, _ := io.ReadAll(r.Body)

	w.mu.Lock()
	w.bodies = append(w.bodies, string(body))
	w.headers = append(w.headers, r.Header.Clone())
	status := w.statuses[min(n, len(w.statuses))-1]
	w.mu.Unlock()

	rw.WriteHeader(status)
}

func startWebhook(t *testing.T, statuses ...int) (*webhook, string) {
	t.Helper()

	if len(statuses) == 0 {
		statuses = []int{http.StatusOK}
	}

	hook := &webhook{statuses: statuses}
	srv := httptest.NewServer(hook)
	t.Cleanup(srv.Close)

	return hook, srv.URL
}

func newTestClient(t *testing.T, baseURL string, mutate ...func(*Config)) *Client {
	t.Helper()

	cfg := &Config{
		BaseURL:     baseURL,
		ServiceName: "trmnl-webhook",
		Timeout:     2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		},
		Circuit: config.CircuitBreakerConfig{MaxFailures: 5, Timeout: time.Minute, HalfOpenLimit: 1},
	}
	for _, m := range mutate {
		m(cfg)
	}

	client, err := New(cfg)
	require.NoError(t, err)

	return client
}

func post(t *testing.T, c *Client, ctx context.Context) (*http.Response, error) { //nolint:revive // test helper
	t.Helper()

	resp, err := c.PostJSON(ctx, "", delivery)
	if resp != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}

	return resp, err
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(nil)
	require.EqualError(t, err, "config is required")

	_, err = New(&Config{BaseURL: "http://localhost"})
	require.EqualError(t, err, "service name is required")
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(&Config{ServiceName: "trmnl-webhook", BaseURL: "https://usetrmnl.com/api/"})
	require.NoError(t, err)

	assert.Equal(t, defaultTimeout, c.http.Timeout)
	assert.Equal(t, 1, c.retry.MaxAttempts)
	assert.Equal(t, "https://usetrmnl.com/api", c.baseURL)
	assert.Equal(t, "trmnl-webhook", c.Name())
	assert.Equal(t, StateClosed, c.CircuitState())

	transport, ok := c.http.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, config.DefaultTransportMaxIdleConns, transport.MaxIdleConns)
	assert.Equal(t, config.DefaultTransportIdleConnTimeout, transport.IdleConnTimeout)
}

func TestClient_PostJSON_SendsPayload(t *testing.T) {
	hook, url := startWebhook(t, http.StatusOK)
	client := newTestClient(t, url)

	resp, err := post(t, client, context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, hook.bodies, 1)
	var got mergeVars
	require.NoError(t, json.Unmarshal([]byte(hook.bodies[0]), &got))
	assert.Equal(t, delivery, got)
	assert.Equal(t, "application/json", hook.headers[0].Get("Content-Type"))
}

func TestClient_PostJSON_UnencodableBody(t *testing.T) {
	hook, url := startWebhook(t)
	client := newTestClient(t, url)

	_, err := client.PostJSON(context.Background(), "", map[string]any{"bad": make(chan int)})
	require.ErrorContains(t, err, "encoding request body")
	assert.Zero(t, hook.calls.Load())
}

func TestClient_PropagatesIDs(t *testing.T) {
	hook, url := startWebhook(t)
	client := newTestClient(t, url)

	ctx := middleware.ContextWithRequestID(context.Background(), "req-42")
	ctx = middleware.ContextWithCorrelationID(ctx, "corr-7")

	_, err := post(t, client, ctx)
	require.NoError(t, err)

	assert.Equal(t, "req-42", hook.headers[0].Get(middleware.HeaderRequestID))
	assert.Equal(t, "corr-7", hook.headers[0].Get(middleware.HeaderCorrelationID))
}

func TestClient_Retries(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []int
		wantStatus int
		wantErr    bool
		wantCalls  int32
	}{
		{"first attempt succeeds", []int{200}, 200, false, 1},
		{"recovers after server errors", []int{502, 503, 200}, 200, false, 3},
		{"client error returned unretried", []int{422}, 422, false, 1},
		{"rate limit returned unretried", []int{429}, 429, false, 1},
		{"gives up after max attempts", []int{500}, 0, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook, url := startWebhook(t, tt.statuses...)
			client := newTestClient(t, url)

			resp, err := post(t, client, context.Background())
			assert.Equal(t, tt.wantCalls, hook.calls.Load())

			if tt.wantErr {
				require.ErrorIs(t, err, ErrMaxRetriesExceeded)
				assert.Equal(t, tt.statuses[len(tt.statuses)-1], StatusCode(err))
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestClient_RetriesReplayBody(t *testing.T) {
	hook, url := startWebhook(t, 503, 503, 204)
	client := newTestClient(t, url)

	_, err := post(t, client, context.Background())
	require.NoError(t, err)

	require.Len(t, hook.bodies, 3)
	assert.NotEmpty(t, hook.bodies[0])
	assert.Equal(t, hook.bodies[0], hook.bodies[1])
	assert.Equal(t, hook.bodies[0], hook.bodies[2])
}

func TestClient_SingleAttemptByDefault(t *testing.T) {
	hook, url := startWebhook(t, 500)
	client := newTestClient(t, url, func(c *Config) { c.Retry.MaxAttempts = 0 })

	_, err := post(t, client, context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), hook.calls.Load())
}

func TestClient_CircuitOpensAndFailsFast(t *testing.T) {
	hook, url := startWebhook(t, 500)
	client := newTestClient(t, url, func(c *Config) {
		c.Retry.MaxAttempts = 1
		c.Circuit.MaxFailures = 2
	})
	ctx := context.Background()

	for range 2 {
		_, err := post(t, client, ctx)
		require.ErrorIs(t, err, ErrMaxRetriesExceeded)
	}

	assert.Equal(t, StateOpen, client.CircuitState())
	require.ErrorIs(t, client.Check(ctx), ErrCircuitOpen)

	_, err := post(t, client, ctx)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hook.calls.Load(), "open circuit sends nothing")
}

func TestClient_ClientErrorsKeepCircuitClosed(t *testing.T) {
	_, url := startWebhook(t, 400)
	client := newTestClient(t, url, func(c *Config) { c.Circuit.MaxFailures = 1 })

	for range 3 {
		resp, err := post(t, client, context.Background())
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}

	assert.Equal(t, StateClosed, client.CircuitState())
	assert.NoError(t, client.Check(context.Background()))
}

func TestClient_AttemptTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slow.Close)

	client := newTestClient(t, slow.URL, func(c *Config) {
		c.Timeout = 20 * time.Millisecond
		c.Retry.MaxAttempts = 1
	})

	_, err := post(t, client, context.Background())
	require.Error(t, err)
}

func TestClient_CallerCancellationIsNotWrapped(t *testing.T) {
	_, url := startWebhook(t, 503)
	client := newTestClient(t, url, func(c *Config) {
		c.Retry.InitialInterval = time.Second
		c.Retry.MaxInterval = time.Second
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := post(t, client, ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestClient_BuildURL(t *testing.T) {
	client := newTestClient(t, "https://usetrmnl.com/api/custom_plugins/8f2c/")

	tests := map[string]string{
		"":        "https://usetrmnl.com/api/custom_plugins/8f2c",
		"/status": "https://usetrmnl.com/api/custom_plugins/8f2c/status",
		"status":  "https://usetrmnl.com/api/custom_plugins/8f2c/status",
	}

	for path, want := range tests {
		assert.Equal(t, want, client.buildURL(path), "path %q", path)
	}
}

func TestClient_Backoff(t *testing.T) {
	client := newTestClient(t, "http://localhost", func(c *Config) {
		c.Retry = config.RetryConfig{
			MaxAttempts:     5,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2,
			JitterFactor:    0.1,
		}
	})

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}

	for _, tt := range tests {
		for range 20 {
			got := client.backoff(tt.attempt)
			assert.InDelta(t, float64(tt.base), float64(got), float64(tt.base)/10+1, "attempt %d", tt.attempt)
		}
	}
}

func TestClient_BackoffDefaultJitter(t *testing.T) {
	client := newTestClient(t, "http://localhost", func(c *Config) {
		c.Retry.InitialInterval = 100 * time.Millisecond
		c.Retry.MaxInterval = time.Second
		c.Retry.JitterFactor = 0
	})

	for range 20 {
		assert.InDelta(t, float64(100*time.Millisecond), float64(client.backoff(0)), float64(25*time.Millisecond)+1)
	}
}

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "fake net error" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"network timeout", fakeNetError{timeout: true}, true},
		{"other net error", fakeNetError{}, false},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"status error", &StatusError{Code: 502}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestStatusCode(t *testing.T) {
	assert.Zero(t, StatusCode(nil))
	assert.Zero(t, StatusCode(ErrCircuitOpen))
	assert.Equal(t, 504, StatusCode(&StatusError{Code: 504}))
	assert.EqualError(t, &StatusError{Code: 502}, "server error: 502 Bad Gateway")
}
