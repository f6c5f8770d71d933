// Package async runs background loops with panic recovery.
//
//	done := async.Go(ctx, log, "plugin watcher", func(ctx context.Context) error {
//		return watcher.Run(ctx)
//	})
//	defer async.Wait(context.Background(), done)
//
// A panic is logged with its stack trace and ends the task; an error is
// logged unless ctx was cancelled.
package async
