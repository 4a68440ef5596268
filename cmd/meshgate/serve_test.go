package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeStartsAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	path := writeFile(t, t.TempDir(), defaultConfigFile, `
server:
  listen: "`+addr+`"
  shutdown_timeout_ms: 2000
registry:
  enabled: false
services:
  - name: lab
    url: http://127.0.0.1:1
logging:
  level: error
  format: json
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- serve(ctx, path) }()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 25*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeBadConfig(t *testing.T) {
	t.Parallel()

	err := serve(context.Background(), writeFile(t, t.TempDir(), defaultConfigFile, "server: [broken"))
	require.Error(t, err)
}
