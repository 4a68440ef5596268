package registry

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/healthmesh/meshgate/internal/cache"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ServiceEntry is a point-in-time copy of one registered service.
type ServiceEntry struct {
	LastCheck           mo.Option[time.Time]
	RegisteredAt        time.Time
	Name                string
	BaseURL             string
	LastError           string
	ConsecutiveFailures int
	Healthy             bool
	Stale               bool
	Required            bool
}

// Service is one desired registration, as read from configuration.
type Service struct {
	Name     string
	URL      string
	Required bool
}

// entry is the mutable record behind a ServiceEntry. Identity fields are
// immutable after creation; health fields are written only by applyProbe.
type entry struct {
	lastCheck    time.Time
	registeredAt time.Time
	name         string
	baseURL      string
	probeKey     string
	lastError    string
	failures     int
	mu           sync.Mutex
	healthy      bool
	required     bool
}

// Registry holds the known services and runs their health checks.
type Registry struct {
	prober  Prober
	probes  cache.Cache
	now     func() time.Time
	cancel  context.CancelFunc
	entries map[string]*entry
	done    chan struct{}
	logger  zerolog.Logger
	group   singleflight.Group
	cfg     Config
	gen     uint64
	mu      sync.RWMutex
	loopMu  sync.Mutex
}

// Probe outcomes stored in the probe cache.
const (
	probeOK     = "ok"
	probeFailed = "fail"
)

// New creates a Registry. probeCache may be nil; it is only used when the
// configured probe cache TTL is positive.
func New(cfg Config, prober Prober, probeCache cache.Cache, logger zerolog.Logger) *Registry {
	if prober == nil {
		prober = NewHTTPProber(cfg.GetHealthPath(), nil)
	}
	if probeCache == nil || cfg.GetProbeCacheTTL() == 0 {
		probeCache = cache.NewNoop()
	}
	return &Registry{
		prober:  prober,
		probes:  cache.NewNamespace(probeCache, "probe"),
		now:     time.Now,
		entries: make(map[string]*entry),
		logger:  logger.With().Str("component", "registry").Logger(),
		cfg:     cfg,
	}
}

// Register inserts or replaces the entry for name. The new entry starts healthy.
func (r *Registry) Register(name, baseURL string) {
	r.register(Service{Name: name, URL: baseURL})
}

// RegisterRequired registers a statically required dependency.
func (r *Registry) RegisterRequired(name, baseURL string) {
	r.register(Service{Name: name, URL: baseURL, Required: true})
}

func (r *Registry) register(svc Service) {
	e := &entry{
		name:         svc.Name,
		baseURL:      svc.URL,
		required:     svc.Required,
		registeredAt: r.now(),
		healthy:      true,
	}

	r.mu.Lock()
	r.gen++
	// Probes of a replaced entry keep their own key, so they can neither be
	// joined nor seed the cache for this one.
	e.probeKey = svc.Name + "#" + strconv.FormatUint(r.gen, 10)
	old := r.entries[svc.Name]
	r.entries[svc.Name] = e
	r.mu.Unlock()

	if old != nil {
		_ = r.probes.Delete(context.Background(), old.probeKey)
	}

	r.logger.Debug().
		Str("service", svc.Name).
		Str("url", svc.URL).
		Msg("service registered")
}

// Unregister removes name and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	e, existed := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if existed {
		_ = r.probes.Delete(context.Background(), e.probeKey)
		r.logger.Debug().Str("service", name).Msg("service unregistered")
	}
	return existed
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	removed := lo.Values(r.entries)
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range removed {
		_ = r.probes.Delete(context.Background(), e.probeKey)
	}
}

// Sync reconciles the registry with services: new or re-addressed services are
// (re)registered, services no longer listed are removed. Health state of
// unchanged services is kept.
func (r *Registry) Sync(services []Service) {
	wanted := lo.SliceToMap(services, func(s Service) (string, Service) { return s.Name, s })

	r.mu.RLock()
	current := lo.MapValues(r.entries, func(e *entry, _ string) Service {
		return Service{Name: e.name, URL: e.baseURL, Required: e.required}
	})
	r.mu.RUnlock()

	for name, svc := range wanted {
		if cur, ok := current[name]; !ok || cur != svc {
			r.register(svc)
		}
	}
	for name := range current {
		if _, ok := wanted[name]; !ok {
			r.Unregister(name)
		}
	}
}

// VerifyRequired returns a *ConfigurationError naming every service in names
// that is not registered.
func (r *Registry) VerifyRequired(names []string) error {
	r.mu.RLock()
	missing := lo.Filter(names, func(name string, _ int) bool {
		_, ok := r.entries[name]
		return !ok
	})
	r.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &ConfigurationError{Missing: missing}
}

func (r *Registry) lookup(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}

// GetServiceURL probes name (or reuses a probe outcome within the cache TTL)
// and returns its base URL only if that probe succeeded. The consecutive
// failure count still decides the recorded health used by GetServiceURLSync.
func (r *Registry) GetServiceURL(ctx context.Context, name string) mo.Option[string] {
	e := r.lookup(name)
	if e == nil {
		return mo.None[string]()
	}

	ok, cached := r.cachedProbe(ctx, e)
	if !cached {
		ok = r.probe(ctx, e) == nil
	}
	if !ok {
		return mo.None[string]()
	}
	return mo.Some(e.baseURL)
}

// GetServiceURLSync returns name's base URL from recorded health state without probing.
func (r *Registry) GetServiceURLSync(name string) mo.Option[string] {
	return r.resolve(name)
}

func (r *Registry) resolve(name string) mo.Option[string] {
	e := r.lookup(name)
	if e == nil {
		return mo.None[string]()
	}
	snap := r.snapshot(e)
	if !snap.Healthy || snap.Stale {
		return mo.None[string]()
	}
	return mo.Some(snap.BaseURL)
}

// cachedProbe returns the last probe outcome for e if it is still cached.
func (r *Registry) cachedProbe(ctx context.Context, e *entry) (ok, found bool) {
	verdict, err := r.probes.Get(ctx, e.probeKey)
	if err != nil {
		return false, false
	}
	return string(verdict) == probeOK, true
}

// CheckHealth probes name once and records the outcome. Concurrent checks of
// the same service share one probe. Returns the resulting health verdict;
// unknown services report false.
func (r *Registry) CheckHealth(ctx context.Context, name string) bool {
	e := r.lookup(name)
	if e == nil {
		return false
	}

	if err := r.probe(ctx, e); err != nil && ctx.Err() != nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

// probe runs one shared probe of e, records it and returns its error.
// A canceled caller stops waiting; the probe itself finishes and is recorded.
func (r *Registry) probe(ctx context.Context, e *entry) error {
	ch := r.group.DoChan(e.probeKey, func() (any, error) {
		detached := context.WithoutCancel(ctx)
		probeCtx, cancel := context.WithTimeout(detached, r.cfg.GetTimeout())
		defer cancel()

		err := r.prober.Probe(probeCtx, e.baseURL)
		r.applyProbe(e, err)

		verdict := probeOK
		if err != nil {
			verdict = probeFailed
		}
		_ = r.probes.SetWithTTL(detached, e.probeKey, []byte(verdict), r.cfg.GetProbeCacheTTL())
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) applyProbe(e *entry, probeErr error) {
	e.mu.Lock()
	wasHealthy := e.healthy
	e.lastCheck = r.now()
	if probeErr == nil {
		e.failures = 0
		e.lastError = ""
		e.healthy = true
	} else {
		e.failures++
		e.lastError = probeErr.Error()
		if e.failures >= r.cfg.GetMaxFailures() {
			e.healthy = false
		}
	}
	healthy, failures := e.healthy, e.failures
	e.mu.Unlock()

	switch {
	case wasHealthy && !healthy:
		r.logger.Warn().
			Str("service", e.name).
			Int("consecutive_failures", failures).
			AnErr("last_error", probeErr).
			Msg("service marked unhealthy")
	case !wasHealthy && healthy:
		r.logger.Info().
			Str("service", e.name).
			Msg("service recovered")
	case probeErr != nil:
		r.logger.Debug().
			Str("service", e.name).
			Int("consecutive_failures", failures).
			Err(probeErr).
			Msg("health check failed")
	}
}

// CheckAllServices probes every registered service concurrently and returns
// the verdict per service.
func (r *Registry) CheckAllServices(ctx context.Context) map[string]bool {
	r.mu.RLock()
	names := lo.Keys(r.entries)
	r.mu.RUnlock()

	results := make(map[string]bool, len(names))
	var resultsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.GetConcurrency())
	for _, name := range names {
		g.Go(func() error {
			healthy := r.CheckHealth(gctx, name)
			resultsMu.Lock()
			results[name] = healthy
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// StartHealthChecks launches the background checker. Calling it while the
// checker runs has no effect.
func (r *Registry) StartHealthChecks() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	interval := r.cfg.GetInterval()
	jitter := cryptoRandDuration(r.cfg.GetJitter())

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval + jitter)
		defer ticker.Stop()

		r.logger.Info().
			Dur("interval", interval).
			Dur("jitter", jitter).
			Msg("health checks started")

		r.CheckAllServices(ctx)
		for {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("health checks stopped")
				return
			case <-ticker.C:
				r.CheckAllServices(ctx)
			}
		}
	}()
}

// StopHealthChecks stops the background checker and waits for it to exit.
// Calling it when no checker runs has no effect.
func (r *Registry) StopHealthChecks() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
}

// Running reports whether the background checker is active.
func (r *Registry) Running() bool {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	return r.cancel != nil
}

// Shutdown stops background checks. It implements do.Shutdowner.
func (r *Registry) Shutdown() error {
	r.StopHealthChecks()
	return nil
}

func (r *Registry) snapshot(e *entry) ServiceEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	last := mo.None[time.Time]()
	since := e.registeredAt
	if !e.lastCheck.IsZero() {
		last = mo.Some(e.lastCheck)
		since = e.lastCheck
	}

	return ServiceEntry{
		Name:                e.name,
		BaseURL:             e.baseURL,
		Healthy:             e.healthy,
		LastCheck:           last,
		RegisteredAt:        e.registeredAt,
		ConsecutiveFailures: e.failures,
		LastError:           e.lastError,
		Stale:               r.now().Sub(since) > r.cfg.StalenessLimit(),
		Required:            e.required,
	}
}

// GetStatus returns a snapshot of every entry keyed by name.
func (r *Registry) GetStatus() map[string]ServiceEntry {
	r.mu.RLock()
	all := lo.Values(r.entries)
	r.mu.RUnlock()

	out := make(map[string]ServiceEntry, len(all))
	for _, e := range all {
		out[e.name] = r.snapshot(e)
	}
	return out
}

// Get returns the snapshot for name.
func (r *Registry) Get(name string) mo.Option[ServiceEntry] {
	e := r.lookup(name)
	if e == nil {
		return mo.None[ServiceEntry]()
	}
	return mo.Some(r.snapshot(e))
}

// GetHealthyServices returns the sorted names of services that currently resolve.
func (r *Registry) GetHealthyServices() []string {
	return r.namesWhere(func(s ServiceEntry) bool { return s.Healthy && !s.Stale })
}

// GetUnhealthyServices returns the sorted names of services that do not resolve.
func (r *Registry) GetUnhealthyServices() []string {
	return r.namesWhere(func(s ServiceEntry) bool { return !s.Healthy || s.Stale })
}

func (r *Registry) namesWhere(keep func(ServiceEntry) bool) []string {
	names := make([]string, 0)
	for name, snap := range r.GetStatus() {
		if keep(snap) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsHealthy reports whether name is registered, healthy and not stale.
func (r *Registry) IsHealthy(name string) bool {
	return r.resolve(name).IsPresent()
}

// GetServiceCount returns the number of registered services.
func (r *Registry) GetServiceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
