package plugins

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pdalplugins/pkg/observability"
)

// Lifecycle records the exit hooks returned by successful plugin
// initialization and runs them at shutdown.
type Lifecycle struct {
	mu    *sync.Mutex
	hooks []ExitFunc
	log   *logrus.Logger
}

// NewLifecycle creates a lifecycle manager. mu guards the hook list; nil
// allocates a private lock.
func NewLifecycle(mu *sync.Mutex, log *logrus.Logger) *Lifecycle {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &Lifecycle{mu: mu, log: log}
}

// Initialize calls init with r and records the returned exit hook. It
// returns false when init returns nil or panics. The lock is not held while
// init runs, so init may register stages through r.
func (lc *Lifecycle) Initialize(init InitFunc, r Registrar) bool {
	if init == nil {
		return false
	}

	exit, err := callInit(init, r)
	if err != nil {
		lc.log.Warnf("Plugin init panicked: %v", err)
		return false
	}
	if exit == nil {
		return false
	}

	lc.mu.Lock()
	lc.hooks = append(lc.hooks, exit)
	lc.mu.Unlock()
	return true
}

func callInit(init InitFunc, r Registrar) (exit ExitFunc, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			exit = nil
			err = observability.MustRecover(rec)
		}
	}()
	return init(r), nil
}

// Len returns the number of recorded hooks.
func (lc *Lifecycle) Len() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return len(lc.hooks)
}

// detach hands the recorded hooks over, in arrival order. The caller must hold lc.mu.
func (lc *Lifecycle) detach() []ExitFunc {
	hooks := lc.hooks
	lc.hooks = nil
	return hooks
}

// Drain removes and returns the recorded hooks in arrival order.
func (lc *Lifecycle) Drain() []ExitFunc {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.detach()
}

// RunHooks invokes every hook in order. A hook returning nonzero or
// panicking marks the result failed; the remaining hooks still run.
//
// Hooks run in registration order, not reverse order.
func (lc *Lifecycle) RunHooks(hooks []ExitFunc) bool {
	success := true
	for i, hook := range hooks {
		code, err := callExit(hook)
		if err != nil {
			lc.log.Warnf("Exit hook %d panicked: %v", i, err)
			success = false
			continue
		}
		if code != 0 {
			lc.log.Warnf("Exit hook %d returned %d", i, code)
			success = false
		}
	}
	return success
}

func callExit(hook ExitFunc) (code int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = observability.MustRecover(rec)
		}
	}()
	if hook == nil {
		return 0, nil
	}
	return hook(), nil
}
