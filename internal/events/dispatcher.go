package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// emitTimeout bounds a single asynchronous emit.
const emitTimeout = 5 * time.Second

// Dispatcher emits events off the request path. Drain waits for in-flight emits on shutdown.
type Dispatcher struct {
	emitter Emitter
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher returns a Dispatcher over emitter. A nil emitter discards events.
func NewDispatcher(emitter Emitter, logger *zap.Logger) *Dispatcher {
	if emitter == nil {
		emitter = Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{emitter: emitter, logger: logger, timeout: emitTimeout}
}

// Publish emits ev in a goroutine with its own timeout so request cancellation does not abort it.
func (d *Dispatcher) Publish(ev Event) {
	if d == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.emitter.Emit(ctx, ev); err != nil {
			d.logger.Warn("membership event emit failed",
				zap.String("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
	}()
}

// Drain blocks until every published event finished or ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
