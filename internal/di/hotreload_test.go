package di_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/di"
)

// TestHotReloadFromFile verifies that rewriting the config file updates the
// live config and the services listening for reloads.
func TestHotReloadFromFile(t *testing.T) {
	t.Parallel()

	path := createTempConfigFile(t)
	container, err := di.NewContainer(path)
	require.NoError(t, err)
	t.Cleanup(func() { shutdownContainer(t, container) })

	cfgSvc := di.MustInvoke[*di.ConfigService](container)
	require.True(t, cfgSvc.HasWatcher())
	concurrency := di.MustInvoke[*di.ConcurrencyService](container)
	registrySvc := di.MustInvoke[*di.RegistryService](container)
	require.Equal(t, int64(10), concurrency.Limiter.GetLimit())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfgSvc.StartWatching(ctx)
	// Give fsnotify time to register the directory watch.
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(validConfig, "max_concurrent: 10", "max_concurrent: 25", 1) + `
  - name: medication
    url: http://127.0.0.1:3002
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		return cfgSvc.Get().Server.MaxConcurrent == 25
	}, 3*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		return concurrency.Limiter.GetLimit() == 25
	}, 3*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, ok := registrySvc.Registry.GetStatus()["medication"]
		return ok
	}, 3*time.Second, 20*time.Millisecond)
}

// TestHotReloadInvalidConfigKeepsCurrent verifies a broken file is rejected.
func TestHotReloadInvalidConfigKeepsCurrent(t *testing.T) {
	t.Parallel()

	path := createTempConfigFile(t)
	container, err := di.NewContainer(path)
	require.NoError(t, err)
	t.Cleanup(func() { shutdownContainer(t, container) })

	cfgSvc := di.MustInvoke[*di.ConfigService](container)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfgSvc.StartWatching(ctx)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	time.Sleep(400 * time.Millisecond)

	assert.Equal(t, "127.0.0.1:8080", cfgSvc.Get().Server.Listen)
	assert.Equal(t, 10, cfgSvc.Get().Server.MaxConcurrent)
}

func TestConcurrencyApplyConfig(t *testing.T) {
	t.Parallel()

	container, err := di.NewContainer(createTempConfigFile(t))
	require.NoError(t, err)
	t.Cleanup(func() { shutdownContainer(t, container) })

	svc := di.MustInvoke[*di.ConcurrencyService](container)

	require.NoError(t, svc.ApplyConcurrency(&config.Config{Server: config.ServerConfig{MaxConcurrent: 3}}))
	assert.Equal(t, int64(3), svc.Limiter.GetLimit())

	require.NoError(t, svc.ApplyConcurrency(nil))
	assert.Equal(t, int64(3), svc.Limiter.GetLimit())
}
