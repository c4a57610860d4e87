package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kbflow/kbflow/config"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		HTTPPort:        0, // 随机端口
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func TestManagerStartAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	m := NewManager(handler, testServerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManagerDoubleStart(t *testing.T) {
	m := NewManager(http.NewServeMux(), testServerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	err := m.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManagerShutdownIdempotent(t *testing.T) {
	m := NewManager(http.NewServeMux(), testServerConfig(), zap.NewNop())
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManagerStartAfterShutdown(t *testing.T) {
	m := NewManager(http.NewServeMux(), testServerConfig(), zap.NewNop())
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	err := m.Start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
