package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberos/kernel/internal/infrastructure/config"
	"github.com/emberos/kernel/internal/kernel"
)

func testServer(t *testing.T, rps int) *Server {
	t.Helper()
	k := kernel.New(kernel.Config{Frames: 64}, nil)
	return New(k, config.DebugConfig{
		Host:           "127.0.0.1",
		Port:           "0",
		RateLimitRPS:   rps,
		RateLimitBurst: rps,
	}, nil)
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.http.Handler.ServeHTTP(w, req)
	return w
}

func TestEndpoints(t *testing.T) {
	s := testServer(t, 100)

	t.Run("health", func(t *testing.T) {
		w := get(s, "/health")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
	})

	t.Run("processes includes pid 1", func(t *testing.T) {
		w := get(s, "/processes")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"name":"kernel"`)
	})

	t.Run("memory", func(t *testing.T) {
		w := get(s, "/memory")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total_frames":64`)
	})

	t.Run("servers empty at boot", func(t *testing.T) {
		w := get(s, "/servers")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"servers":[]`)
	})
}

func TestRateLimit(t *testing.T) {
	s := testServer(t, 2)

	limited := false
	for i := 0; i < 10; i++ {
		if get(s, "/health").Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "burst should exhaust the limiter")
}
