package serve

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.GracefulTimeout)
	assert.NotNil(t, cfg.Logger)
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	for _, opt := range []Option{
		WithAddr("127.0.0.1:9999"),
		WithTimeouts(time.Second, 2*time.Second),
		WithGracefulShutdown(5 * time.Second),
		WithTLS("server.crt", "server.key"),
		WithLogger(quietLogger()),
	} {
		opt(cfg)
	}
	assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
	assert.Equal(t, time.Second, cfg.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.GracefulTimeout)
	assert.Equal(t, "server.crt", cfg.TLSCertFile)
	assert.Equal(t, "server.key", cfg.TLSKeyFile)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	srv, err := NewServer(handler, WithAddr("127.0.0.1:0"), WithLogger(quietLogger()), WithGracefulShutdown(time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + srv.Addr() + "/")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err = http.Get("http://" + srv.Addr() + "/")
	assert.Error(t, err)
}

func TestNewServer_ListenError(t *testing.T) {
	srv, err := NewServer(http.NotFoundHandler(), WithAddr("127.0.0.1:0"), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer srv.GracefulStop()

	_, err = NewServer(http.NotFoundHandler(), WithAddr(srv.Addr()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen on")
}
