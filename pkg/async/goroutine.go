package async

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pdalplugins/pkg/observability"
)

// Go runs fn in a goroutine with panic recovery and error logging. The
// returned channel is closed when fn has returned.
//
// Use this instead of bare `go func()` for long-lived background loops.
//
// Example:
//
//	done := async.Go(ctx, log, "plugin watcher", func(ctx context.Context) error {
//	    return w.Run(ctx)
//	})
//	<-done
func Go(ctx context.Context, log *logrus.Logger, taskName string, fn func(context.Context) error) <-chan struct{} {
	if log == nil {
		log = logrus.StandardLogger()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		defer observability.RecoverPanic(log, taskName)

		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.WithField("task", taskName).WithError(err).Error("Background task failed")
		}
	}()
	return done
}

// Wait blocks until every channel returned by Go is closed or ctx is done.
func Wait(ctx context.Context, done ...<-chan struct{}) error {
	for _, ch := range done {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
