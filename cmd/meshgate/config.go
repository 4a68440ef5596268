package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/healthmesh/meshgate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file without starting the server.
Checks syntax, service URLs, versioning, breaker and rate limit settings.`,
	RunE: runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a starter config file",
	Long:  `Write a starter meshgate configuration to ~/.config/meshgate/meshgate.yaml or --output.`,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().StringP("output", "o", "", "output path (default: ~/.config/meshgate/meshgate.yaml)")
	configInitCmd.Flags().Bool("force", false, "overwrite existing config file")

	configCmd.AddCommand(configValidateCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	return validateConfigFile(cmd, resolveConfigPath())
}

func validateConfigFile(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(out, "✗ Config validation failed: %s\n", err)
		return err
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "✗ Config validation failed:")
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, msg := range verr.Errors {
				fmt.Fprintf(out, "  - %s\n", msg)
			}
		} else {
			fmt.Fprintf(out, "  - %s\n", err)
		}
		return err
	}

	fmt.Fprintf(out, "✓ %s is valid (%d services, resolver %s)\n",
		path, len(cfg.Services), cfg.Gateway.GetResolver())
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return fmt.Errorf("failed to get force flag: %w", err)
	}

	if output == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		output = filepath.Join(home, ".config", appName, defaultConfigFile)
	}

	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", output)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(output, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Config file created at %s\n", output)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Point services[].url at your deployments")
	fmt.Fprintln(out, "  2. Validate with: meshgate config validate --config "+output)
	fmt.Fprintln(out, "  3. Start the gateway: meshgate serve --config "+output)
	return nil
}

const starterConfig = `# meshgate configuration
server:
  listen: "127.0.0.1:8080"
  timeout_ms: 30000
  shutdown_timeout_ms: 10000
  max_concurrent: 0
  max_body_bytes: 10485760

services:
  - name: auth
    url: http://localhost:3000
    required: true
  - name: lab
    url: http://localhost:3001
    required: true
  - name: medication
    url: http://localhost:3002
  - name: billing
    url: http://localhost:3003

gateway:
  resolver: registry
  supported_versions: [v1, v2, v3]
  default_version: v1
  vendor_prefix: application/vnd.healthmesh
  remove_fields: [internalId, _internal, debugInfo]
  routes:
    orders: lab
    results: lab
    prescriptions: medication
    invoices: billing

registry:
  health_path: /health
  interval_ms: 30000
  timeout_ms: 5000
  max_failures: 3

circuit_breaker:
  defaults:
    timeout_ms: 3000
    error_threshold_percentage: 50
    reset_timeout_ms: 30000

auth:
  enabled: false
  service: auth
  cache_ttl_ms: 30000
  public_paths: [/api/v1/public]

rate_limit:
  enabled: false
  requests_per_minute: 600
  burst: 50

cache:
  mode: single

logging:
  level: info
  format: auto
`
