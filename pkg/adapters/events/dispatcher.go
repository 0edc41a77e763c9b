package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wadjakorntonsri/geo-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/geo-shortener/pkg/ports"
)

var (
	ErrQueueFull = errors.New("event queue is full")
	ErrStopped   = errors.New("dispatcher is stopped")
)

// Handler consumes one event. Handlers own their failures, nothing is returned.
type Handler func(ctx context.Context, event domain.VisitOccurred)

// Dispatcher delivers VisitOccurred events to subscribers on a pool of
// workers. Dispatch never blocks the caller: when the buffer is full the
// event is rejected with ErrQueueFull.
type Dispatcher struct {
	queue    chan domain.VisitOccurred
	workers  int
	logger   zerolog.Logger
	handlers []Handler

	mu      sync.RWMutex
	stopped bool
	group   *errgroup.Group
}

func NewDispatcher(workers, queueSize int, logger zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	return &Dispatcher{
		queue:   make(chan domain.VisitOccurred, queueSize),
		workers: workers,
		logger:  logger,
	}
}

var _ ports.EventDispatcher = (*Dispatcher)(nil)

// Subscribe registers a handler. It has to be called before Start.
func (d *Dispatcher) Subscribe(h Handler) {
	d.handlers = append(d.handlers, h)
}

func (d *Dispatcher) Dispatch(_ context.Context, event domain.VisitOccurred) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queue <- event:
		return nil
	default:
		return fmt.Errorf("%w: dropping visit %s", ErrQueueFull, event.VisitID)
	}
}

// Start runs the workers until Shutdown is called. Events are handled with
// ctx, not with the context of the request that dispatched them.
func (d *Dispatcher) Start(ctx context.Context) {
	g := &errgroup.Group{}
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for event := range d.queue {
				d.handle(ctx, event)
			}
			return nil
		})
	}

	d.mu.Lock()
	d.group = g
	d.mu.Unlock()
}

// Shutdown stops accepting events and waits for the queued ones to be handled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	g := d.group
	d.mu.Unlock()

	if g == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) handle(ctx context.Context, event domain.VisitOccurred) {
	for _, h := range d.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error().Interface("panic", r).Str("visit_id", event.VisitID).Msg("event handler panicked")
				}
			}()
			h(ctx, event)
		}()
	}
}
