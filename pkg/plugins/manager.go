package plugins

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/pdalplugins/pkg/observability"
)

// Manager is the plugin context: registry, loaded libraries and exit hooks
// behind one mutex.
//
// The mutex is held only while those collections are read or mutated.
// Scans, library opens, plugin init code, stage factories and exit hooks all
// run with it released, so init code may call Register (directly or from a
// goroutine it waits on) while LoadByPath is still on the stack.
//
// cycle separates load cycles. Loads, stage creation and destruction hold
// its read side; Shutdown holds the write side from the first exit hook until
// the last library is closed, so nothing is opened, initialized or created
// while the previous cycle is torn down. Init code and exit hooks must
// therefore not call CreateObject, Destroy or the Load methods.
type Manager struct {
	mu         sync.Mutex
	cycle      sync.RWMutex
	version    Version
	registry   *Registry
	libraries  *LibraryLoader
	lifecycle  *Lifecycle
	discoverer *Discoverer
	guesses    singleflight.Group
	metrics    *observability.PluginMetrics
	tracer     trace.Tracer
	log        *logrus.Logger
}

type options struct {
	opener      Opener
	log         *logrus.Logger
	metrics     *observability.PluginMetrics
	tracer      trace.Tracer
	searchPaths []string
	getenv      func(string) string
	reader      DirReader
	index       *GuessIndex
	version     Version
}

// Option configures a Manager.
type Option func(*options)

// WithOpener sets the shared-library primitive.
func WithOpener(o Opener) Option {
	return func(opts *options) { opts.opener = o }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(opts *options) { opts.log = log }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *observability.PluginMetrics) Option {
	return func(opts *options) { opts.metrics = m }
}

// WithTracer sets the tracer used for spans. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(opts *options) { opts.tracer = t }
}

// WithSearchPaths replaces environment and default search path resolution.
func WithSearchPaths(paths ...string) Option {
	return func(opts *options) { opts.searchPaths = paths }
}

// WithGetenv sets the environment lookup used for PDAL_DRIVER_PATH.
func WithGetenv(getenv func(string) string) Option {
	return func(opts *options) { opts.getenv = getenv }
}

// WithDirReader sets the directory provider used by discovery.
func WithDirReader(r DirReader) Option {
	return func(opts *options) { opts.reader = r }
}

// WithGuessIndex caches directory listings for best-guess lookups.
func WithGuessIndex(index *GuessIndex) Option {
	return func(opts *options) { opts.index = index }
}

// WithVersion overrides the host API version.
func WithVersion(v Version) Option {
	return func(opts *options) { opts.version = v }
}

// NewManager creates a plugin manager.
func NewManager(opts ...Option) *Manager {
	o := &options{version: HostVersion}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logrus.New()
	}
	if o.tracer == nil {
		o.tracer = observability.Tracer()
	}

	m := &Manager{
		version: o.version,
		metrics: o.metrics,
		tracer:  o.tracer,
		log:     o.log,
	}
	m.registry = NewRegistry(o.version)
	m.libraries = NewLibraryLoader(o.opener, &m.mu, o.log)
	m.lifecycle = NewLifecycle(&m.mu, o.log)
	m.discoverer = NewDiscoverer(o.getenv, o.reader, o.log)
	if o.searchPaths != nil {
		m.discoverer.SetSearchPaths(o.searchPaths)
	}
	m.discoverer.SetIndex(o.index)

	return m
}

// Version returns the host API version.
func (m *Manager) Version() Version {
	return m.version
}

// Discoverer returns the manager's discoverer.
func (m *Manager) Discoverer() *Discoverer {
	return m.discoverer
}

// SearchPaths returns the directories scanned by discovery.
func (m *Manager) SearchPaths() []string {
	return m.discoverer.SearchPaths()
}

// Register stores a stage factory pair. It returns false without changing
// anything when params is incomplete, built for another major version, or
// key is already registered.
func (m *Manager) Register(key string, params RegisterParams) bool {
	m.mu.Lock()
	ok := m.registry.Register(key, params)
	m.mu.Unlock()

	m.metrics.RecordRegistration(ok)
	if ok {
		m.log.Debugf("Registered stage: %s (api %s)", key, params.Version)
		m.updateInventory()
	} else {
		m.log.Debugf("Rejected stage registration: %s", key)
	}
	return ok
}

func (m *Manager) lookup(key string) (RegisterParams, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Lookup(key)
}

// CreateObject instantiates the stage registered under key. When key is not
// registered it guesses the plugin file from the key and loads it first. It
// returns 0 when no plugin provides key. The caller owns the handle and must
// release it with Destroy.
func (m *Manager) CreateObject(ctx context.Context, key string) Handle {
	ctx, span := m.tracer.Start(ctx, "plugins.CreateObject",
		trace.WithAttributes(attribute.String("stage", key)))
	defer span.End()

	h, found := m.create(key)
	if !found {
		// A concurrent guess may have loaded the stage even when ours lost.
		m.GuessLoadByPath(ctx, key)
		h, found = m.create(key)
	}
	if !found {
		m.metrics.RecordCreate(false)
		m.log.Debugf("Stage not found: %s", key)
		return 0
	}
	m.metrics.RecordCreate(h != 0)
	return h
}

// create runs the factory registered under key inside the current cycle.
// found is false when key is not registered.
func (m *Manager) create(key string) (h Handle, found bool) {
	m.cycle.RLock()
	defer m.cycle.RUnlock()

	params, ok := m.lookup(key)
	if !ok {
		return 0, false
	}
	h, err := callCreate(params.CreateFunc)
	if err != nil {
		m.log.Warnf("Stage factory for %s failed: %v", key, err)
		return 0, true
	}
	return h, true
}

func callCreate(create CreateFunc) (h Handle, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = observability.MustRecover(rec)
		}
	}()
	return create(), nil
}

// Destroy releases h with the destroy function registered under key.
func (m *Manager) Destroy(key string, h Handle) bool {
	m.cycle.RLock()
	defer m.cycle.RUnlock()

	params, ok := m.lookup(key)
	if !ok {
		return false
	}

	destroyed := true
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				m.log.Warnf("Stage destructor for %s panicked: %v", key, rec)
				destroyed = false
			}
		}()
		params.DestroyFunc(h)
	}()
	return destroyed
}

// LoadByPath loads and initializes the plugin library at path if its name
// implies type t and it is not loaded yet.
func (m *Manager) LoadByPath(ctx context.Context, path string, t PluginType) bool {
	err := m.loadByPath(ctx, path, t)
	switch {
	case err == nil:
		m.metrics.RecordLoad(t.String(), observability.ResultLoaded)
		m.log.Infof("Loaded plugin: %s (type: %s)", path, t)
		return true
	case errors.Is(err, ErrAlreadyLoaded), errors.Is(err, ErrTypeMismatch):
		m.metrics.RecordLoad(t.String(), observability.ResultSkipped)
		m.log.Debugf("Skipping plugin %s: %v", path, err)
	default:
		m.metrics.RecordLoad(t.String(), observability.ResultFailed)
		observability.WithTraceContext(ctx, m.log).Warnf("Failed to load plugin %s: %v", path, err)
	}
	return false
}

func (m *Manager) loadByPath(ctx context.Context, path string, t PluginType) error {
	if !MatchesType(path, t) {
		return fmt.Errorf("%s: %w", path, ErrTypeMismatch)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	canonical, err := Canonicalize(path)
	if err != nil {
		return err
	}

	m.cycle.RLock()
	defer m.cycle.RUnlock()

	lib, err := m.libraries.load(canonical)
	if err != nil {
		return err
	}
	m.updateInventory()

	// A library without the entry point stays mapped but inert.
	init, err := lib.InitFunc(EntrySymbol)
	if err == nil && init == nil {
		err = ErrSymbolNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: %w", canonical, err)
	}

	ok := m.lifecycle.Initialize(init, m)
	m.metrics.RecordInit(ok)
	if !ok {
		return fmt.Errorf("%s: %w", canonical, ErrInitFailed)
	}
	return nil
}

// LoadAll loads every plugin of type t found on the search path. Individual
// failures are logged and skipped. It returns the number of plugins initialized.
func (m *Manager) LoadAll(ctx context.Context, t PluginType) int {
	ctx, span := m.tracer.Start(ctx, "plugins.LoadAll",
		trace.WithAttributes(attribute.String("type", t.String())))
	defer span.End()

	start := time.Now()
	loaded := 0
	for _, path := range m.discoverer.Candidates(ctx) {
		if ctx.Err() != nil {
			break
		}
		if m.LoadByPath(ctx, path, t) {
			loaded++
		}
	}
	m.metrics.ObserveDiscovery(observability.StrategyLoadAll, time.Since(start))

	span.SetAttributes(attribute.Int("loaded", loaded))
	return loaded
}

// GuessLoadByPath finds and loads the plugin file for a dotted stage name
// such as "readers.las": the first library on the search path whose stem
// ends in "_las" and loads successfully wins. Concurrent guesses for the
// same name share one scan; a caller whose shared scan was cut short by the
// leading caller's cancellation scans again with its own context.
func (m *Manager) GuessLoadByPath(ctx context.Context, driverName string) bool {
	for {
		v, _, _ := m.guesses.Do(driverName, func() (interface{}, error) {
			ok := m.guessLoadByPath(ctx, driverName)
			return guessResult{loaded: ok, cancelled: !ok && ctx.Err() != nil}, nil
		})
		res := v.(guessResult)
		if !res.cancelled || ctx.Err() != nil {
			return res.loaded
		}
	}
}

type guessResult struct {
	loaded    bool
	cancelled bool
}

func (m *Manager) guessLoadByPath(ctx context.Context, driverName string) bool {
	ctx, span := m.tracer.Start(ctx, "plugins.GuessLoadByPath",
		trace.WithAttributes(attribute.String("driver", driverName)))
	defer span.End()

	category, name, ok := splitDriverName(driverName)
	if !ok {
		m.log.Debugf("Cannot guess plugin for malformed stage name: %q", driverName)
		return false
	}
	t := categoryType(category)

	start := time.Now()
	defer func() {
		m.metrics.ObserveDiscovery(observability.StrategyGuess, time.Since(start))
	}()

	for _, dir := range m.discoverer.SearchPaths() {
		for _, path := range m.discoverer.guessDir(dir, name) {
			if ctx.Err() != nil {
				return false
			}
			if m.LoadByPath(ctx, path, t) {
				span.SetAttributes(attribute.String("path", path))
				return true
			}
		}
	}
	return false
}

// RegistrationMap returns a copy of the current registrations.
func (m *Manager) RegistrationMap() RegistrationMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Snapshot()
}

// LoadedLibraries returns the canonical paths of loaded libraries, sorted.
func (m *Manager) LoadedLibraries() []string {
	return m.libraries.Paths()
}

// ExitHooks returns the number of recorded exit hooks.
func (m *Manager) ExitHooks() int {
	return m.lifecycle.Len()
}

// Shutdown runs every recorded exit hook in registration order, then
// unloads all libraries and clears the registry. It returns false if any hook
// returned nonzero or panicked; cleanup completes either way. Loads and stage
// creation wait until it returns and then start a new cycle.
func (m *Manager) Shutdown(ctx context.Context) bool {
	_, span := m.tracer.Start(ctx, "plugins.Shutdown")
	defer span.End()

	m.cycle.Lock()
	hooks := m.lifecycle.Drain()
	ok := m.lifecycle.RunHooks(hooks)

	libraries := m.libraries.Len()
	if err := m.libraries.CloseAll(); err != nil {
		m.log.Warnf("Errors while unloading plugin libraries: %v", err)
	}
	m.mu.Lock()
	m.registry.Reset()
	m.mu.Unlock()
	if index := m.discoverer.Index(); index != nil {
		index.Purge()
	}
	m.cycle.Unlock()

	m.metrics.RecordShutdown(ok)
	m.updateInventory()
	if ok {
		m.log.Debugf("Plugin manager shut down (%d hooks, %d libraries)", len(hooks), libraries)
	} else {
		m.log.Errorf("Plugin manager shut down with errors (%d hooks, %d libraries)", len(hooks), libraries)
	}
	span.SetAttributes(attribute.Bool("success", ok))
	return ok
}

func (m *Manager) updateInventory() {
	if m.metrics == nil {
		return
	}
	m.mu.Lock()
	libraries, stages := m.libraries.loadedLocked(), m.registry.Len()
	m.mu.Unlock()
	m.metrics.SetInventory(libraries, stages)
}
