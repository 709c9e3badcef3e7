package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foodshare/apiserver/config"
	"github.com/foodshare/apiserver/internal/live"
	"github.com/foodshare/apiserver/internal/mq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig() config.Config {
	return config.Config{
		Env:          "test",
		StoreBackend: config.StoreBackendMemory,
		CORSOrigins:  []string{"http://localhost:3000"},
		Auth: config.AuthConfig{
			JWTSecret:      "test-secret",
			TokenTTL:       time.Hour,
			LoginRateLimit: 100,
			LoginBurst:     100,
		},
		Events: config.EventsConfig{Channel: "test.posts"},
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth.JWTSecret = ""
	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestServerRoutes(t *testing.T) {
	srv, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/posts")
	require.NoError(t, err)
	var posts []any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&posts))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, posts)

	form := map[string]any{
		"account_type":      "Canteen",
		"email":             "kitchen@campus.edu",
		"password":          "pw",
		"contact_person":    "Asha",
		"phone":             "+91-100",
		"address":           "1 College Road",
		"city":              "Bengaluru",
		"state":             "KA",
		"country":           "India",
		"canteen_name":      "North Block Canteen",
		"surplus_capacity":  30,
		"operational_hours": "08:00-20:00",
	}
	body, err := json.Marshal(form)
	require.NoError(t, err)
	resp, err = http.Post(ts.URL+"/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// photo storage is not configured for this server
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/posts/any/photo", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	// CORS preflight from an allowed origin
	req, err = http.NewRequest(http.MethodOptions, ts.URL+"/posts", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv, err := New(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, srv.Shutdown(ctx))
}

// countingBroker counts subscriptions and blocks them until ctx ends.
type countingBroker struct {
	subscribed atomic.Int32
}

func (b *countingBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return "m", nil
}

func (b *countingBroker) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	b.subscribed.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (b *countingBroker) Close() error { return nil }

func TestEventPublisher(t *testing.T) {
	hub := live.NewHub()

	s := &Server{log: zap.NewNop()}
	assert.Same(t, hub, s.eventPublisher(nil, "posts", hub, options{}))

	broker := &countingBroker{}
	publishOnly := &Server{log: zap.NewNop()}
	_, isRelay := publishOnly.eventPublisher(mq.New(broker), "posts", hub, options{publishOnly: true}).(*live.Relay)
	assert.True(t, isRelay)
	publishOnly.closeAll()
	assert.Zero(t, broker.subscribed.Load())

	consuming := &Server{log: zap.NewNop()}
	consuming.eventPublisher(mq.New(broker), "posts", hub, options{})
	assert.Eventually(t, func() bool { return broker.subscribed.Load() == 1 }, time.Second, 10*time.Millisecond)
	consuming.closeAll()
}
