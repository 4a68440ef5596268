// Package signals turns OS shutdown signals into reactive streams.
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/ro"
)

// ShutdownSignals are the OS signals that trigger graceful shutdown.
var ShutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

// Shutdown returns an Observable that emits the first shutdown signal and
// completes. Each subscription installs its own signal handler and removes it
// on teardown. Cancelling the subscriber context ends the stream with its error.
func Shutdown() ro.Observable[os.Signal] {
	return Notify(ShutdownSignals...)
}

// Notify is Shutdown for an explicit signal set.
func Notify(sigs ...os.Signal) ro.Observable[os.Signal] {
	return ro.NewObservableWithContext(func(ctx context.Context, observer ro.Observer[os.Signal]) ro.Teardown {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, sigs...)

		go func() {
			select {
			case sig := <-ch:
				observer.NextWithContext(ctx, sig)
				observer.CompleteWithContext(ctx)
			case <-ctx.Done():
				observer.ErrorWithContext(ctx, ctx.Err())
			}
		}()

		return func() {
			signal.Stop(ch)
		}
	})
}

// Wait blocks until a shutdown signal arrives or ctx is done.
func Wait(ctx context.Context) (os.Signal, error) {
	results, _, err := ro.CollectWithContext(ctx, Shutdown())
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ctx.Err()
	}
	return results[0], nil
}

// OnShutdown runs callback once when a shutdown signal arrives.
// Unsubscribe to remove the handler before that.
func OnShutdown(ctx context.Context, callback func(os.Signal)) ro.Subscription {
	return Shutdown().SubscribeWithContext(ctx, ro.OnNextWithContext(func(_ context.Context, sig os.Signal) {
		callback(sig)
	}))
}
