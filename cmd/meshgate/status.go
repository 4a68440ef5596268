package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/healthmesh/meshgate/internal/auth"
	"github.com/healthmesh/meshgate/internal/config"
	"github.com/healthmesh/meshgate/internal/proxy"
)

const statusTimeout = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running gateway",
	Long: `Query a running gateway's /health/services endpoint and print the registry
and circuit breaker status. The listen address and admin key come from the
config file.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := &http.Client{Timeout: statusTimeout}
	return printStatus(cmd, client, statusURL(cfg.Server.GetListen()), cfg.Auth.AdminKey)
}

// statusURL turns a listen address into a URL reachable from this host.
func statusURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/health/services"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health/services"
}

func printStatus(cmd *cobra.Command, client *http.Client, url, adminKey string) error {
	out := cmd.OutOrStdout()

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	if adminKey != "" {
		req.Header.Set(auth.HeaderAdminKey, adminKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(out, "✗ meshgate is not running (%s)\n", url)
		return fmt.Errorf("server not reachable: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Logger.Warn().Err(closeErr).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(out, "✗ meshgate returned unexpected status: %d\n", resp.StatusCode)
		return fmt.Errorf("status check failed with status %d", resp.StatusCode)
	}

	var report proxy.ServicesReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	writeReport(out, &report)
	if report.Status != proxy.StatusOK {
		return fmt.Errorf("gateway is %s", report.Status)
	}
	return nil
}

func writeReport(out io.Writer, report *proxy.ServicesReport) {
	mark := "✓"
	if report.Status != proxy.StatusOK {
		mark = "✗"
	}
	fmt.Fprintf(out, "%s meshgate is %s\n", mark, report.Status)

	names := lo.Keys(report.Services)
	sort.Strings(names)

	if len(names) > 0 {
		fmt.Fprintln(out, "\nServices:")
	}
	for _, name := range names {
		s := report.Services[name]
		state := "healthy"
		switch {
		case s.Stale:
			state = "stale"
		case !s.Healthy:
			state = "unhealthy"
		}
		line := fmt.Sprintf("  %-20s %-10s %s", name, state, s.URL)
		if s.Required {
			line += " (required)"
		}
		if s.LastError != "" {
			line += " - " + s.LastError
		}
		fmt.Fprintln(out, line)
	}

	breakers := lo.Keys(report.Breakers)
	sort.Strings(breakers)

	if len(breakers) > 0 {
		fmt.Fprintln(out, "\nCircuit breakers:")
	}
	for _, name := range breakers {
		fmt.Fprintf(out, "  %-20s %s\n", name, report.Breakers[name])
	}
}
