package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/healthmesh/meshgate/internal/di"
	"github.com/healthmesh/meshgate/internal/signals"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the meshgate gateway",
	Long: `Start the gateway: register the configured services, run background health
checks, watch the config file for changes and serve /api and /health.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	return serve(cmd.Context(), resolveConfigPath())
}

// serve runs the gateway until SIGINT/SIGTERM, ctx cancellation or a server
// error, then shuts the container down.
func serve(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	container, err := di.NewContainer(configPath)
	if err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("failed to load config")
		return err
	}

	loggerSvc, err := di.Invoke[*di.LoggerService](container)
	if err != nil {
		shutdownContainer(container)
		return err
	}
	log.Logger = *loggerSvc.Logger
	zerolog.DefaultContextLogger = loggerSvc.Logger

	serverSvc, err := di.Invoke[*di.ServerService](container)
	if err != nil {
		log.Error().Err(err).Msg("failed to build gateway")
		shutdownContainer(container)
		return err
	}
	cfgSvc := di.MustInvoke[*di.ConfigService](container)
	registrySvc := di.MustInvoke[*di.RegistryService](container)

	registrySvc.Start(cfgSvc.Get())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cfgSvc.StartWatching(runCtx)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("listen", serverSvc.Server.Addr()).
			Int("services", registrySvc.Registry.GetServiceCount()).
			Msg("starting meshgate")
		serveErr <- serverSvc.Server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	go func() {
		if sig, err := signals.Wait(runCtx); err == nil {
			sigs <- sig
		}
	}()

	var result error
	select {
	case sig := <-sigs:
		log.Info().Str("signal", sig.String()).Msg("shutting down...")
	case <-ctx.Done():
		log.Info().Msg("shutting down...")
	case result = <-serveErr:
		if result != nil {
			log.Error().Err(result).Msg("server error")
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfgSvc.Get().Server.GetShutdownTimeout())
	defer stop()
	if err := container.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	log.Info().Msg("server stopped")
	return result
}

func shutdownContainer(container *di.Container) {
	if err := container.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("container shutdown")
	}
}
