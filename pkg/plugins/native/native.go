//go:build (darwin || linux) && (amd64 || arm64)

package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"

	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

// cRegisterParams mirrors PF_RegisterParams on 64-bit targets.
type cRegisterParams struct {
	major   int32
	minor   int32
	create  uintptr
	destroy uintptr
}

// binding routes C registration callbacks to the Registrar of the init call
// in progress.
type binding struct {
	registrar plugins.Registrar
}

var (
	initMu sync.Mutex
	active atomic.Pointer[binding]
	cbOnce sync.Once
	cbAddr uintptr
)

func registerCallback() uintptr {
	cbOnce.Do(func() {
		cbAddr = purego.NewCallback(registerObject)
	})
	return cbAddr
}

// registerObject implements PF_RegisterFunc.
func registerObject(name, params uintptr) uintptr {
	b := active.Load()
	if b == nil || name == 0 || params == 0 {
		return 0
	}

	key := unix.BytePtrToString((*byte)(unsafe.Pointer(name)))
	c := (*cRegisterParams)(unsafe.Pointer(params))
	if b.registrar.Register(key, convertParams(*c)) {
		return 1
	}
	return 0
}

func convertParams(c cRegisterParams) plugins.RegisterParams {
	p := plugins.RegisterParams{
		Version: plugins.Version{Major: c.major, Minor: c.minor},
	}
	if create := c.create; create != 0 {
		p.CreateFunc = func() plugins.Handle {
			r, _, _ := purego.SyscallN(create)
			return plugins.Handle(r)
		}
	}
	if destroy := c.destroy; destroy != 0 {
		p.DestroyFunc = func(h plugins.Handle) {
			purego.SyscallN(destroy, uintptr(h))
		}
	}
	return p
}

// Opener opens shared libraries with dlopen(RTLD_NOW|RTLD_LOCAL).
type Opener struct{}

// Open loads the library at path.
func (Opener) Open(path string) (plugins.Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}
	return &Library{path: path, handle: handle}, nil
}

// Library is a dlopen'ed plugin.
type Library struct {
	path   string
	handle uintptr
	once   sync.Once
}

// InitFunc resolves symbol and adapts it to plugins.InitFunc. A library
// without the symbol yields plugins.ErrSymbolNotFound.
func (l *Library) InitFunc(symbol string) (plugins.InitFunc, error) {
	initAddr, err := purego.Dlsym(l.handle, symbol)
	if err != nil || initAddr == 0 {
		return nil, fmt.Errorf("%s in %s: %w", symbol, l.path, plugins.ErrSymbolNotFound)
	}

	var slot uintptr
	if addr, err := purego.Dlsym(l.handle, RegisterSymbol); err == nil {
		slot = addr
	}

	return func(r plugins.Registrar) plugins.ExitFunc {
		initMu.Lock()
		defer initMu.Unlock()

		active.Store(&binding{registrar: r})
		defer active.Store(nil)

		if slot != 0 {
			*(*uintptr)(unsafe.Pointer(slot)) = registerCallback()
		}

		exitAddr, _, _ := purego.SyscallN(initAddr)
		if exitAddr == 0 {
			return nil
		}
		return func() int {
			rc, _, _ := purego.SyscallN(exitAddr)
			return int(int32(rc))
		}
	}, nil
}

// Close unloads the library. Code obtained from it must not run afterwards.
func (l *Library) Close() error {
	var err error
	l.once.Do(func() {
		err = purego.Dlclose(l.handle)
	})
	if err != nil {
		return fmt.Errorf("dlclose %s: %w", l.path, err)
	}
	return nil
}
