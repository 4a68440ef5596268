package signals

import (
	"context"
	"os"
	"sync/atomic"

	"github.com/samber/ro"
)

func roObserver(out chan<- os.Signal, completed *atomic.Bool) ro.Observer[os.Signal] {
	return ro.NewObserverWithContext(
		func(_ context.Context, sig os.Signal) { out <- sig },
		func(context.Context, error) {},
		func(context.Context) { completed.Store(true) },
	)
}
