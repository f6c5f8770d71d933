package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// PanicError is a panic recovered from plugin or background code.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverPanic logs a panic of the calling goroutine and swallows it. It
// must be deferred directly:
//
//	defer observability.RecoverPanic(logger, "plugin-watcher")
func RecoverPanic(logger *logrus.Logger, task string) {
	r := recover()
	if r == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"panic": r,
		"task":  task,
		"stack": string(debug.Stack()),
	}).Error("PANIC recovered")
}

// MustRecover turns a value returned by recover into a *PanicError carrying
// the current stack. Nil yields nil.
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = observability.MustRecover(r)
//	    }
//	}()
func MustRecover(r any) error {
	if r == nil {
		return nil
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}
