package plugins_test

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/platinummonkey/pdalplugins/pkg/observability"
	"github.com/platinummonkey/pdalplugins/pkg/plugins"
	"github.com/platinummonkey/pdalplugins/pkg/plugins/plugintest"
)

type fixture struct {
	dir    string
	opener *plugintest.Opener
	reader *plugintest.CountingDirReader
	mgr    *plugins.Manager
}

func newFixture(t *testing.T, opts ...plugins.Option) *fixture {
	t.Helper()
	f := &fixture{
		dir:    t.TempDir(),
		opener: plugintest.NewOpener(),
		reader: &plugintest.CountingDirReader{},
	}
	base := []plugins.Option{
		plugins.WithOpener(f.opener),
		plugins.WithLogger(discardLogger()),
		plugins.WithSearchPaths(f.dir),
		plugins.WithDirReader(f.reader),
	}
	f.mgr = plugins.NewManager(append(base, opts...)...)
	t.Cleanup(func() { f.mgr.Shutdown(context.Background()) })
	return f
}

// plugin writes a library file and makes its fake available.
func (f *fixture) plugin(t *testing.T, pt plugins.PluginType, name string, init plugins.InitFunc) (string, *plugintest.Library) {
	t.Helper()
	file := plugintest.LibraryName(pt, name)
	lib := f.opener.Add(file, &plugintest.Library{Init: init})
	return plugintest.WriteLibraryFile(t, f.dir, file), lib
}

func canonical(t *testing.T, path string) string {
	t.Helper()
	c, err := plugins.Canonicalize(path)
	require.NoError(t, err)
	return c
}

func TestManager_Register(t *testing.T) {
	f := newFixture(t)
	m := f.mgr

	assert.True(t, m.Register("readers.las", plugintest.Stage(1, nil)))
	assert.False(t, m.Register("readers.las", plugintest.Stage(2, nil)))

	mismatched := plugintest.Stage(3, nil)
	mismatched.Version = plugins.Version{Major: 2}
	assert.False(t, m.Register("writers.las", mismatched))
	assert.False(t, m.Register("filters.broken", plugins.RegisterParams{Version: plugins.HostVersion}))

	regs := m.RegistrationMap()
	require.Len(t, regs, 1)
	assert.Equal(t, plugins.Handle(1), regs["readers.las"].CreateFunc())

	delete(regs, "readers.las")
	assert.Len(t, m.RegistrationMap(), 1)
	assert.Equal(t, plugins.HostVersion, m.Version())
}

func TestManager_LoadByPath(t *testing.T) {
	f := newFixture(t)
	path, _ := f.plugin(t, plugins.PluginTypeReader, "las", plugintest.StageInit(0, "readers.las", "readers.laz"))
	ctx := context.Background()

	assert.True(t, f.mgr.LoadByPath(ctx, path, plugins.PluginTypeReader))
	assert.False(t, f.mgr.LoadByPath(ctx, path, plugins.PluginTypeReader))

	assert.Equal(t, []string{canonical(t, path)}, f.mgr.LoadedLibraries())
	assert.Len(t, f.mgr.RegistrationMap(), 2)
	assert.Equal(t, 1, f.mgr.ExitHooks())
	assert.Equal(t, 1, f.opener.TotalOpens())
}

func TestManager_LoadByPathTypeMismatch(t *testing.T) {
	f := newFixture(t)
	path, _ := f.plugin(t, plugins.PluginTypeReader, "las", plugintest.StageInit(0, "readers.las"))

	assert.False(t, f.mgr.LoadByPath(context.Background(), path, plugins.PluginTypeWriter))
	assert.Equal(t, 0, f.opener.TotalOpens())
	assert.Empty(t, f.mgr.LoadedLibraries())
}

func TestManager_LoadByPathMissingEntryPoint(t *testing.T) {
	f := newFixture(t)
	path, _ := f.plugin(t, plugins.PluginTypeFilter, "inert", nil)
	ctx := context.Background()

	assert.False(t, f.mgr.LoadByPath(ctx, path, plugins.PluginTypeFilter))
	assert.Equal(t, []string{canonical(t, path)}, f.mgr.LoadedLibraries())

	assert.False(t, f.mgr.LoadByPath(ctx, path, plugins.PluginTypeFilter))
	assert.Equal(t, 1, f.opener.TotalOpens())
	assert.Equal(t, 0, f.mgr.ExitHooks())
}

func TestManager_LoadByPathInitFailure(t *testing.T) {
	f := newFixture(t)
	path, _ := f.plugin(t, plugins.PluginTypeReader, "bad", func(plugins.Registrar) plugins.ExitFunc { return nil })

	assert.False(t, f.mgr.LoadByPath(context.Background(), path, plugins.PluginTypeReader))
	assert.Equal(t, 0, f.mgr.ExitHooks())
}

func TestManager_LoadByPathOpenFailure(t *testing.T) {
	f := newFixture(t)
	path := plugintest.WriteLibraryFile(t, f.dir, plugintest.LibraryName(plugins.PluginTypeReader, "corrupt"))

	assert.False(t, f.mgr.LoadByPath(context.Background(), path, plugins.PluginTypeReader))
	assert.Empty(t, f.mgr.LoadedLibraries())
}

func TestManager_LoadAll(t *testing.T) {
	f := newFixture(t)
	f.plugin(t, plugins.PluginTypeReader, "a", plugintest.StageInit(0, "readers.a"))
	f.plugin(t, plugins.PluginTypeReader, "b", plugintest.StageInit(0, "readers.b"))
	f.plugin(t, plugins.PluginTypeFilter, "c", plugintest.StageInit(0, "filters.c"))
	plugintest.WriteLibraryFile(t, f.dir, "notes.txt")
	ctx := context.Background()

	assert.Equal(t, 2, f.mgr.LoadAll(ctx, plugins.PluginTypeReader))
	assert.Equal(t, 0, f.opener.Opens(plugintest.LibraryName(plugins.PluginTypeFilter, "c")))
	assert.Equal(t, 0, f.mgr.LoadAll(ctx, plugins.PluginTypeReader))

	assert.Equal(t, 1, f.mgr.LoadAll(ctx, plugins.PluginTypeFilter))
	assert.Len(t, f.mgr.RegistrationMap(), 3)
}

func TestManager_CreateObjectRegistered(t *testing.T) {
	f := newFixture(t)
	var destroyed []plugins.Handle
	require.True(t, f.mgr.Register("filters.noop", plugintest.Stage(7, &destroyed)))

	h := f.mgr.CreateObject(context.Background(), "filters.noop")
	assert.Equal(t, plugins.Handle(7), h)

	assert.True(t, f.mgr.Destroy("filters.noop", h))
	assert.Equal(t, []plugins.Handle{7}, destroyed)
	assert.False(t, f.mgr.Destroy("filters.unknown", h))
	assert.Equal(t, 0, f.reader.TotalReads())
}

func TestManager_CreateObjectGuessLoads(t *testing.T) {
	f := newFixture(t)
	f.plugin(t, plugins.PluginTypeReader, "las", plugintest.StageInit(0, "readers.las"))
	ctx := context.Background()

	assert.NotZero(t, f.mgr.CreateObject(ctx, "readers.las"))
	reads := f.reader.TotalReads()

	assert.NotZero(t, f.mgr.CreateObject(ctx, "readers.las"))
	assert.Equal(t, reads, f.reader.TotalReads())
	assert.Equal(t, 1, f.opener.TotalOpens())
}

func TestManager_CreateObjectNotFound(t *testing.T) {
	f := newFixture(t)
	f.plugin(t, plugins.PluginTypeReader, "las", plugintest.StageInit(0, "readers.las"))
	ctx := context.Background()

	assert.Zero(t, f.mgr.CreateObject(ctx, "readers.e57"))
	assert.Zero(t, f.mgr.CreateObject(ctx, "filters.las"))
	assert.Equal(t, 0, f.opener.TotalOpens())

	reads := f.reader.TotalReads()
	assert.Zero(t, f.mgr.CreateObject(ctx, "readers"))
	assert.Equal(t, reads, f.reader.TotalReads())
}

func TestManager_CreateObjectFactoryPanics(t *testing.T) {
	f := newFixture(t)
	params := plugintest.Stage(1, nil)
	params.CreateFunc = func() plugins.Handle { panic("factory") }
	require.True(t, f.mgr.Register("readers.panicky", params))

	assert.Zero(t, f.mgr.CreateObject(context.Background(), "readers.panicky"))
}

func TestManager_GuessSkipsUnloadableCandidates(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	opener := plugintest.NewOpener()
	m := plugins.NewManager(
		plugins.WithOpener(opener),
		plugins.WithLogger(discardLogger()),
		plugins.WithSearchPaths(first, second),
	)
	defer m.Shutdown(context.Background())

	file := plugintest.LibraryName(plugins.PluginTypeReader, "las")
	plugintest.WriteLibraryFile(t, first, plugintest.LibraryName(plugins.PluginTypeReader, "broken_las"))
	plugintest.WriteLibraryFile(t, second, file)
	opener.Add(file, &plugintest.Library{Init: plugintest.StageInit(0, "readers.las")})

	assert.True(t, m.GuessLoadByPath(context.Background(), "readers.las"))
	assert.Equal(t, []string{canonical(t, filepath.Join(second, file))}, m.LoadedLibraries())
	assert.False(t, m.GuessLoadByPath(context.Background(), "readers.las"))
}

func TestManager_ReentrantRegistration(t *testing.T) {
	f := newFixture(t)
	m := f.mgr
	path, _ := f.plugin(t, plugins.PluginTypeReader, "async", func(r plugins.Registrar) plugins.ExitFunc {
		// Same goroutine, then a helper goroutine the entry point waits on.
		r.Register("readers.sync", plugintest.Stage(1, nil))
		_ = m.RegistrationMap()

		done := make(chan struct{})
		go func() {
			defer close(done)
			r.Register("readers.async", plugintest.Stage(2, nil))
		}()
		<-done
		return func() int { return 0 }
	})

	loaded := make(chan bool, 1)
	go func() { loaded <- m.LoadByPath(context.Background(), path, plugins.PluginTypeReader) }()

	select {
	case ok := <-loaded:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("LoadByPath deadlocked on reentrant registration")
	}

	regs := m.RegistrationMap()
	assert.Contains(t, regs, "readers.sync")
	assert.Contains(t, regs, "readers.async")
}

func TestManager_ConcurrentLoadByPath(t *testing.T) {
	f := newFixture(t)
	path, _ := f.plugin(t, plugins.PluginTypeReader, "las", plugintest.StageInit(0, "readers.las"))
	f.opener.OnOpen = func(string) { time.Sleep(10 * time.Millisecond) }

	var wg sync.WaitGroup
	results := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.mgr.LoadByPath(context.Background(), path, plugins.PluginTypeReader)
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for ok := range results {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, f.opener.TotalOpens())
	assert.Equal(t, 1, f.mgr.ExitHooks())
}

func TestManager_ConcurrentCreateObject(t *testing.T) {
	f := newFixture(t)
	f.plugin(t, plugins.PluginTypeReader, "las", plugintest.StageInit(0, "readers.las"))
	f.opener.OnOpen = func(string) { time.Sleep(10 * time.Millisecond) }

	var wg sync.WaitGroup
	handles := make(chan plugins.Handle, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles <- f.mgr.CreateObject(context.Background(), "readers.las")
		}()
	}
	wg.Wait()
	close(handles)

	for h := range handles {
		assert.NotZero(t, h)
	}
	assert.Equal(t, 1, f.opener.TotalOpens())
}

func TestManager_Shutdown(t *testing.T) {
	f := newFixture(t)
	var order []string
	var mu sync.Mutex
	hook := func(name string, code int) plugins.InitFunc {
		return func(r plugins.Registrar) plugins.ExitFunc {
			r.Register("readers."+name, plugintest.Stage(1, nil))
			return func() int {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return code
			}
		}
	}
	_, libA := f.plugin(t, plugins.PluginTypeReader, "a", hook("a", 0))
	_, libB := f.plugin(t, plugins.PluginTypeReader, "b", hook("b", 3))
	_, libC := f.plugin(t, plugins.PluginTypeReader, "c", hook("c", 0))
	ctx := context.Background()
	require.Equal(t, 3, f.mgr.LoadAll(ctx, plugins.PluginTypeReader))

	assert.False(t, f.mgr.Shutdown(ctx))
	assert.Equal(t, []string{"a", "b", "c"}, order)
	for _, lib := range []*plugintest.Library{libA, libB, libC} {
		assert.Equal(t, 1, lib.Closed())
	}
	assert.Empty(t, f.mgr.RegistrationMap())
	assert.Empty(t, f.mgr.LoadedLibraries())
	assert.Equal(t, 0, f.mgr.ExitHooks())

	assert.True(t, f.mgr.Shutdown(ctx))

	assert.Equal(t, 3, f.mgr.LoadAll(ctx, plugins.PluginTypeReader))
	assert.Equal(t, 6, f.opener.TotalOpens())
}

func TestManager_ShutdownBlocksConcurrentCreate(t *testing.T) {
	f := newFixture(t)
	entered, release := make(chan struct{}), make(chan struct{})
	var events []string
	var mu sync.Mutex
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	var once sync.Once
	f.plugin(t, plugins.PluginTypeReader, "las", func(r plugins.Registrar) plugins.ExitFunc {
		record("init")
		r.Register("readers.las", plugintest.Stage(1, nil))
		return func() int {
			record("exit")
			once.Do(func() {
				close(entered)
				<-release
			})
			return 0
		}
	})
	ctx := context.Background()
	require.NotZero(t, f.mgr.CreateObject(ctx, "readers.las"))

	shutdown := make(chan bool, 1)
	go func() { shutdown <- f.mgr.Shutdown(ctx) }()
	<-entered

	created := make(chan plugins.Handle, 1)
	go func() { created <- f.mgr.CreateObject(ctx, "readers.las") }()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.opener.TotalOpens())
	select {
	case <-created:
		t.Fatal("CreateObject ran while exit hooks were running")
	default:
	}

	close(release)
	assert.True(t, <-shutdown)
	assert.NotZero(t, <-created)
	assert.Equal(t, 2, f.opener.TotalOpens())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"init", "exit", "init"}, events)
}

func TestManager_GuessSurvivesCancelledPeer(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	opener := plugintest.NewOpener()
	m := plugins.NewManager(
		plugins.WithOpener(opener),
		plugins.WithLogger(discardLogger()),
		plugins.WithSearchPaths(first, second),
	)
	defer m.Shutdown(context.Background())

	broken := plugintest.LibraryName(plugins.PluginTypeReader, "broken_las")
	file := plugintest.LibraryName(plugins.PluginTypeReader, "las")
	plugintest.WriteLibraryFile(t, first, broken)
	plugintest.WriteLibraryFile(t, second, file)
	opener.Add(file, &plugintest.Library{Init: plugintest.StageInit(0, "readers.las")})

	entered, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	opener.OnOpen = func(path string) {
		if filepath.Base(path) != broken {
			return
		}
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan bool, 1)
	go func() { leader <- m.GuessLoadByPath(leaderCtx, "readers.las") }()
	<-entered

	follower := make(chan bool, 1)
	go func() { follower <- m.GuessLoadByPath(context.Background(), "readers.las") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)

	assert.False(t, <-leader)
	assert.True(t, <-follower)
	assert.Contains(t, m.RegistrationMap(), "readers.las")
}

func TestManager_ShutdownPanickingHook(t *testing.T) {
	f := newFixture(t)
	ran := false
	f.plugin(t, plugins.PluginTypeWriter, "a", func(plugins.Registrar) plugins.ExitFunc {
		return func() int { panic("exit") }
	})
	f.plugin(t, plugins.PluginTypeWriter, "b", func(plugins.Registrar) plugins.ExitFunc {
		return func() int { ran = true; return 0 }
	})
	ctx := context.Background()
	require.Equal(t, 2, f.mgr.LoadAll(ctx, plugins.PluginTypeWriter))

	assert.False(t, f.mgr.Shutdown(ctx))
	assert.True(t, ran)
}

func TestManager_SearchPathsFromEnv(t *testing.T) {
	m := plugins.NewManager(
		plugins.WithLogger(discardLogger()),
		plugins.WithGetenv(func(key string) string {
			if key == plugins.EnvDriverPath {
				return "/opt/a:/opt/b"
			}
			return ""
		}),
	)
	assert.Equal(t, []string{"/opt/a", "/opt/b"}, m.SearchPaths())
}

// listingReader records listed directories and reports each one missing.
type listingReader struct {
	plugins.OSDirReader

	mu   sync.Mutex
	dirs []string
}

func (r *listingReader) ReadDir(name string) ([]fs.DirEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dirs = append(r.dirs, name)
	return nil, fs.ErrNotExist
}

func TestManager_LoadAllDefaultSearchPaths(t *testing.T) {
	reader := &listingReader{}
	m := plugins.NewManager(
		plugins.WithOpener(plugintest.NewOpener()),
		plugins.WithLogger(discardLogger()),
		plugins.WithDirReader(reader),
		plugins.WithGetenv(func(string) string { return "" }),
	)

	assert.Zero(t, m.LoadAll(context.Background(), plugins.PluginTypeReader))
	assert.Equal(t, plugins.DefaultSearchPaths(), reader.dirs)
}

func TestManager_GuessIndexAvoidsRescans(t *testing.T) {
	index, err := plugins.NewGuessIndex(4)
	require.NoError(t, err)
	f := newFixture(t, plugins.WithGuessIndex(index))
	ctx := context.Background()

	assert.Zero(t, f.mgr.CreateObject(ctx, "readers.a"))
	assert.Zero(t, f.mgr.CreateObject(ctx, "readers.b"))
	assert.Equal(t, 1, f.reader.Reads(f.dir))
}

func TestManager_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewPluginMetrics(reg)
	f := newFixture(t, plugins.WithMetrics(metrics))
	path, _ := f.plugin(t, plugins.PluginTypeReader, "las", plugintest.StageInit(0, "readers.las", "readers.laz"))
	ctx := context.Background()

	require.True(t, f.mgr.LoadByPath(ctx, path, plugins.PluginTypeReader))
	f.mgr.LoadByPath(ctx, path, plugins.PluginTypeReader)
	f.mgr.CreateObject(ctx, "readers.las")
	f.mgr.CreateObject(ctx, "readers.missing")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LibraryLoadsTotal.WithLabelValues("reader", observability.ResultLoaded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LibraryLoadsTotal.WithLabelValues("reader", observability.ResultSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RegistrationsTotal.WithLabelValues(observability.ResultAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CreateTotal.WithLabelValues(observability.ResultCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CreateTotal.WithLabelValues(observability.ResultNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LibrariesLoaded))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StagesRegistered))

	require.True(t, f.mgr.Shutdown(ctx))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.LibrariesLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ShutdownsTotal.WithLabelValues(observability.ResultSuccess)))
}

func TestManager_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	f := newFixture(t, plugins.WithTracer(tp.Tracer("test")))
	f.plugin(t, plugins.PluginTypeReader, "las", plugintest.StageInit(0, "readers.las"))

	require.NotZero(t, f.mgr.CreateObject(context.Background(), "readers.las"))

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "plugins.CreateObject")
	assert.Contains(t, names, "plugins.GuessLoadByPath")
}
