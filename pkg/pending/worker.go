package pending

import (
	"context"
	"time"
)

// RunWorker ticks every interval and calls Sweep, handing every action it
// produces to emit. It stops when ctx is cancelled, which is how the
// router's shutdown signal (the shim closing its connection) reaches the
// timer goroutine.
func RunWorker(ctx context.Context, l *List, interval time.Duration, emit func(Action)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, a := range l.Sweep(now) {
				select {
				case <-ctx.Done():
					return
				default:
				}
				emit(a)
			}
		}
	}
}
