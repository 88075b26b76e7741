// Package event routes decoded packets to handlers. Thread-safe packets run
// on a bounded worker pool, everything else is queued for the main loop in
// wire order.
package event

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Versifine/mcwire/internal/protocol"
)

var ErrClosed = errors.New("dispatcher closed")

// Packet is one decoded packet, or a lifecycle event, on its way to handlers.
type Packet struct {
	Name        string
	State       protocol.State
	Value       any
	ThreadSafe  bool
	LowPriority bool
}

type HandlerFunc func(p Packet)

type Options struct {
	// Workers bounds concurrent thread-safe handlers. Defaults to NumCPU.
	Workers int
	// LowPriorityWorkers bounds low-priority handlers. Defaults to half of
	// Workers, at least one.
	LowPriorityWorkers int
	// QueueSize is the main queue capacity. The reader blocks when it is full.
	QueueSize int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.LowPriorityWorkers <= 0 {
		o.LowPriorityWorkers = max(1, o.Workers/2)
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	return o
}

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc

	pool    errgroup.Group
	lowPool errgroup.Group
	main    chan Packet

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		handlers: make(map[string][]HandlerFunc),
		main:     make(chan Packet, opts.QueueSize),
		done:     make(chan struct{}),
	}
	d.pool.SetLimit(opts.Workers)
	d.lowPool.SetLimit(opts.LowPriorityWorkers)
	return d
}

func (d *Dispatcher) Subscribe(name string, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], handler)
}

func (d *Dispatcher) snapshot(name string) []HandlerFunc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	handlers := make([]HandlerFunc, len(d.handlers[name]))
	copy(handlers, d.handlers[name])
	return handlers
}

// Dispatch hands p to its handlers. Packets without handlers are dropped
// here. It blocks while the target pool or the main queue is full.
func (d *Dispatcher) Dispatch(ctx context.Context, p Packet) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	handlers := d.snapshot(p.Name)
	if len(handlers) == 0 {
		return nil
	}

	if p.ThreadSafe {
		pool := &d.pool
		if p.LowPriority {
			pool = &d.lowPool
		}
		pool.Go(func() error {
			run(handlers, p)
			return nil
		})
		return nil
	}

	select {
	case d.main <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrClosed
	}
}

// RunMain drains the main queue on the calling goroutine until ctx ends or
// the dispatcher is closed. Packets already queued at Close still run.
func (d *Dispatcher) RunMain(ctx context.Context) error {
	for {
		select {
		case p := <-d.main:
			run(d.snapshot(p.Name), p)
		case <-ctx.Done():
			return ctx.Err()
		case <-d.done:
			for {
				select {
				case p := <-d.main:
					run(d.snapshot(p.Name), p)
				default:
					return nil
				}
			}
		}
	}
}

// Close stops accepting packets and waits for running pool handlers.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	_ = d.pool.Wait()
	_ = d.lowPool.Wait()
}

func run(handlers []HandlerFunc, p Packet) {
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Packet handler panicked", "packet", p.Name, "state", p.State, "panic", r)
				}
			}()
			h(p)
		}()
	}
}
