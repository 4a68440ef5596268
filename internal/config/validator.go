package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/healthmesh/meshgate/internal/health"
)

var (
	serviceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)
	versionPattern     = regexp.MustCompile(`^v[1-9][0-9]*$`)
)

// Valid logging levels.
var validLogLevels = map[string]bool{
	"":      true, // Empty defaults to info
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid logging formats.
var validLogFormats = map[string]bool{
	"":        true, // Empty defaults to json
	"json":    true,
	"console": true,
	"text":    true, // Alias for console
	"pretty":  true,
	"auto":    true,
}

var validResolvers = map[string]bool{
	"":                   true,
	ResolverRegistry:     true,
	ResolverRegistrySync: true,
	ResolverStatic:       true,
}

// Validate checks the configuration for errors.
// It validates all required fields, valid values, and cross-field constraints.
// Returns a ValidationError containing all errors found, or nil if valid.
func (c *Config) Validate() error {
	errs := &ValidationError{}

	validateServer(c, errs)
	validateServices(c, errs)
	validateGateway(c, errs)
	validateRegistry(c, errs)
	validateCircuitBreaker(c, errs)
	validateAuth(c, errs)
	validateRateLimit(c, errs)
	validateLogging(c, errs)

	if err := c.Cache.Validate(); err != nil {
		errs.Addf("cache: %v", err)
	}

	return errs.ToError()
}

func validateServer(c *Config, errs *ValidationError) {
	if c.Server.Listen != "" {
		validateListenAddress(c.Server.Listen, errs)
	}
	if c.Server.TimeoutMS < 0 {
		errs.Add("server.timeout_ms must be >= 0")
	}
	if c.Server.ShutdownTimeoutMS < 0 {
		errs.Add("server.shutdown_timeout_ms must be >= 0")
	}
	if c.Server.MaxConcurrent < 0 {
		errs.Add("server.max_concurrent must be >= 0")
	}
	if c.Server.MaxBodyBytes < 0 {
		errs.Add("server.max_body_bytes must be >= 0")
	}
}

// validateListenAddress validates a listen address in host:port format.
func validateListenAddress(addr string, errs *ValidationError) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		errs.Addf("server.listen must be in host:port format (got %q)", addr)
		return
	}
	if host != "" && net.ParseIP(host) == nil && strings.ContainsAny(host, " \t\n") {
		errs.Add("server.listen host contains invalid characters")
	}
	if port == "" {
		errs.Add("server.listen port is required")
	}
}

func validateServices(c *Config, errs *ValidationError) {
	seen := make(map[string]bool, len(c.Services))

	for i := range c.Services {
		svc := &c.Services[i]

		err := validation.ValidateStruct(svc,
			validation.Field(&svc.Name, validation.Required, validation.Match(serviceNamePattern)),
			validation.Field(&svc.URL, validation.Required, is.RequestURL, validation.By(httpScheme)),
		)
		if err != nil {
			errs.Addf("services[%d]: %v", i, flattenOzzo(err))
		}

		if svc.Name == "" {
			continue
		}
		if seen[svc.Name] {
			errs.Addf("duplicate service name: %s", svc.Name)
		}
		seen[svc.Name] = true
	}
}

func httpScheme(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http or https URL with a host")
	}
	return nil
}

// flattenOzzo renders ozzo field errors as "field: message; field: message".
func flattenOzzo(err error) string {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	return strings.TrimSuffix(fieldErrs.Error(), ".")
}

func validateGateway(c *Config, errs *ValidationError) {
	g := &c.Gateway

	if !validResolvers[g.Resolver] {
		errs.Addf("gateway.resolver is invalid (got %q, valid: registry, registry_sync, static)", g.Resolver)
	}

	for _, v := range g.SupportedVersions {
		if !versionPattern.MatchString(v) {
			errs.Addf("gateway.supported_versions contains invalid version %q", v)
		}
	}
	if g.DefaultVersion != "" && !g.IsSupported(g.DefaultVersion) {
		errs.Addf("gateway.default_version %q is not in supported_versions", g.DefaultVersion)
	}
	for v := range g.Deprecated {
		if !g.IsSupported(v) {
			errs.Addf("gateway.deprecated version %q is not in supported_versions", v)
		}
	}

	for segment, service := range g.Routes {
		if segment == "" || strings.Contains(segment, "/") {
			errs.Addf("gateway.routes has invalid segment %q", segment)
		}
		if service == "" {
			errs.Addf("gateway.routes[%s] must name a service", segment)
		}
	}

	for _, field := range g.RemoveFields {
		if strings.TrimSpace(field) == "" {
			errs.Add("gateway.remove_fields must not contain empty names")
			break
		}
	}

	if g.GetResolver() == ResolverStatic && len(c.Services) == 0 {
		errs.Add("gateway.resolver static requires at least one entry in services")
	}
}

func validateRegistry(c *Config, errs *ValidationError) {
	r := &c.Registry
	if r.IntervalMS < 0 {
		errs.Add("registry.interval_ms must be >= 0")
	}
	if r.TimeoutMS < 0 {
		errs.Add("registry.timeout_ms must be >= 0")
	}
	if r.MaxFailures < 0 {
		errs.Add("registry.max_failures must be >= 0")
	}
	if r.JitterMS < 0 {
		errs.Add("registry.jitter_ms must be >= 0")
	}
	if r.ProbeCacheTTLMS < 0 {
		errs.Add("registry.probe_cache_ttl_ms must be >= 0")
	}
	if r.HealthPath != "" && !strings.HasPrefix(r.HealthPath, "/") {
		errs.Addf("registry.health_path must start with / (got %q)", r.HealthPath)
	}
}

func validateCircuitBreaker(c *Config, errs *ValidationError) {
	validateBreaker("circuit_breaker.defaults", &c.CircuitBreaker.Defaults, errs)
	for name := range c.CircuitBreaker.Services {
		override := c.CircuitBreaker.Services[name]
		validateBreaker(fmt.Sprintf("circuit_breaker.services[%s]", name), &override, errs)
	}
}

func validateBreaker(prefix string, b *health.BreakerConfig, errs *ValidationError) {
	if b.TimeoutMS < 0 {
		errs.Addf("%s.timeout_ms must be >= 0", prefix)
	}
	if b.ErrorThresholdPercentage < 0 || b.ErrorThresholdPercentage > 100 {
		errs.Addf("%s.error_threshold_percentage must be 0-100 (got %d)", prefix, b.ErrorThresholdPercentage)
	}
	if b.ResetTimeoutMS < 0 {
		errs.Addf("%s.reset_timeout_ms must be >= 0", prefix)
	}
	if b.VolumeThreshold < 0 {
		errs.Addf("%s.volume_threshold must be >= 0", prefix)
	}
	if b.RollingWindowMS < 0 || b.RollingBuckets < 0 {
		errs.Addf("%s rolling window settings must be >= 0", prefix)
	}
}

func validateAuth(c *Config, errs *ValidationError) {
	for _, p := range c.Auth.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			errs.Addf("auth.public_paths entry %q must start with /", p)
		}
	}
}

func validateRateLimit(c *Config, errs *ValidationError) {
	rl := &c.RateLimit
	if rl.RequestsPerMinute < 0 {
		errs.Add("rate_limit.requests_per_minute must be >= 0")
	}
	if rl.Burst < 0 {
		errs.Add("rate_limit.burst must be >= 0")
	}
	if rl.MaxClients < 0 {
		errs.Add("rate_limit.max_clients must be >= 0")
	}
}

func validateLogging(c *Config, errs *ValidationError) {
	if !validLogLevels[c.Logging.Level] {
		errs.Addf("logging.level is invalid (got %q, valid: debug, info, warn, error)",
			c.Logging.Level)
	}
	if !validLogFormats[c.Logging.Format] {
		errs.Addf("logging.format is invalid (got %q, valid: json, console, text, pretty, auto)",
			c.Logging.Format)
	}
	if c.Logging.DebugOptions.MaxBodyLogSize < 0 {
		errs.Add("logging.debug_options.max_body_log_size must be >= 0")
	}
}
