package looker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newLookerServer(t *testing.T, logins *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/4.0/login" && r.Method == http.MethodPost:
			r.ParseForm()
			if r.PostForm.Get("client_id") != "id" || r.PostForm.Get("client_secret") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			atomic.AddInt32(logins, 1)
			json.NewEncoder(w).Encode(accessToken{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 3600})
		case r.Header.Get("Authorization") != "token tok":
			w.WriteHeader(http.StatusUnauthorized)
		case r.URL.Path == "/api/4.0/looks/11/run/json":
			json.NewEncoder(w).Encode([]map[string]any{{"churn.rate": 0.042}})
		case r.URL.Path == "/api/4.0/looks/12/run/json":
			json.NewEncoder(w).Encode([]map[string]any{
				{"month": "2025-01", "revenue_churn": 1200},
				{"month": "2025-02", "revenue_churn": 900},
			})
		default:
			http.Error(w, `{"message":"Not found"}`, http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientRunLook(t *testing.T) {
	var logins int32
	server := newLookerServer(t, &logins)
	c := NewClient(server.URL+"/", "id", "secret", 5*time.Second)

	rows, err := c.RunLook(context.Background(), "11")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"churn.rate": 0.042}}, rows)

	_, err = c.RunLook(context.Background(), "12")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&logins), "token is reused")

	_, err = c.RunLook(context.Background(), "404")
	assert.ErrorContains(t, err, "Looker API error 404")
}

func TestClientBadCredentials(t *testing.T) {
	var logins int32
	server := newLookerServer(t, &logins)
	c := NewClient(server.URL, "id", "wrong", 5*time.Second)

	_, err := c.RunLook(context.Background(), "11")
	assert.ErrorContains(t, err, "Looker login failed 401")
}

func TestSnapshot(t *testing.T) {
	var logins int32
	server := newLookerServer(t, &logins)
	client := NewClient(server.URL, "id", "secret", 5*time.Second)
	src := NewSource(client, map[string]string{
		"monthly_churn_rate": "11",
		"revenue_churn":      "12",
		"active_customers":   "404",
		"support_tickets":    "",
	}, zaptest.NewLogger(t))

	snapshot, err := src.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0.042, snapshot["monthly_churn_rate"])
	series, ok := snapshot["revenue_churn"].([]any)
	require.True(t, ok)
	assert.Len(t, series, 2)
	assert.Contains(t, snapshot, "active_customers")
	assert.Nil(t, snapshot["active_customers"])
	assert.Contains(t, snapshot, "support_tickets")
	assert.Nil(t, snapshot["support_tickets"])
}

func TestSnapshotCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewSource(stubRunner{}, map[string]string{"a": "1"}, zaptest.NewLogger(t))

	_, err := src.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, 7, summarize([]map[string]any{{"x": 7}}))
	assert.Equal(t, []any{}, summarize(nil))
	assert.Len(t, summarize([]map[string]any{{"a": 1, "b": 2}}), 1)
}

type stubRunner struct{}

func (stubRunner) RunLook(ctx context.Context, _ string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []map[string]any{{"v": 1.0}}, nil
}

type countingSource struct {
	calls    int
	snapshot map[string]any
	err      error
}

func (s *countingSource) Snapshot(context.Context) (map[string]any, error) {
	s.calls++
	return s.snapshot, s.err
}

func TestCachedSourceRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	next := &countingSource{snapshot: map[string]any{"monthly_churn_rate": 0.05}}
	c := NewCachedSource(next, client, time.Minute, zaptest.NewLogger(t))

	snapshot, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.05, snapshot["monthly_churn_rate"])
	assert.Equal(t, 1, next.calls)

	next.err = errors.New("looker down")
	_, err = c.Snapshot(context.Background())
	assert.EqualError(t, err, "looker down")
}

// TestCachedSourceLive needs a Redis at CHURN_REDIS_TEST_ADDR.
func TestCachedSourceLive(t *testing.T) {
	addr := os.Getenv("CHURN_REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("CHURN_REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()
	require.NoError(t, client.Del(ctx, snapshotKey()).Err())

	next := &countingSource{snapshot: map[string]any{"active_customers": 812.0, "revenue_churn": nil}}
	c := NewCachedSource(next, client, time.Minute, zaptest.NewLogger(t))

	first, err := c.Snapshot(ctx)
	require.NoError(t, err)
	second, err := c.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)
}
