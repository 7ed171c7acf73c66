package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPServer_FromConfig(t *testing.T) {
	dir := testEnv(t)
	viper.Set("db_path", filepath.Join(dir, "serve.db"))
	viper.Set("port", 5055)
	viper.Set("auth.mode", "stub")
	t.Setenv("GEMINI_API_KEY", "")
	t.Cleanup(resetStore)

	srv, err := newHTTPServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ":5055", srv.Addr)
	require.NotNil(t, srv.Handler)
}

func TestNewHTTPServer_BadAuthMode(t *testing.T) {
	dir := testEnv(t)
	viper.Set("db_path", filepath.Join(dir, "serve.db"))
	viper.Set("auth.mode", "bogus")
	t.Cleanup(resetStore)

	_, err := newHTTPServer(context.Background())
	assert.Error(t, err)
}

func TestServeUntilDone_GracefulShutdown(t *testing.T) {
	testEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, srv, ln, time.Second) }()

	url := fmt.Sprintf("http://%s/", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusTeapot
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
