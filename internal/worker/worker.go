package worker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/log"
)

// Consumer delivers broker messages to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler amqp.Handler) error
}

type Options struct {
	// Concurrency is the number of consumers running side by side.
	Concurrency int
	// Caches are cleaned every CleanInterval while the worker runs.
	Caches        *cache.Manager
	CleanInterval time.Duration
}

type Worker struct {
	consumer   Consumer
	dispatcher *Dispatcher
	opts       Options
	logger     *log.Logger
}

func New(consumer Consumer, dispatcher *Dispatcher, opts Options, logger *log.Logger) *Worker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.CleanInterval <= 0 {
		opts.CleanInterval = time.Minute
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Worker{
		consumer:   consumer,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes until ctx is cancelled or a consumer fails. Cancellation is a
// clean stop and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.opts.Caches != nil {
		g.Go(func() error {
			w.opts.Caches.Run(ctx, w.opts.CleanInterval)
			return nil
		})
	}
	for i := 0; i < w.opts.Concurrency; i++ {
		g.Go(func() error {
			return w.consumer.Consume(ctx, w.dispatcher.Handle)
		})
	}

	w.logger.Info("Worker started", "consumers", w.opts.Concurrency)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		w.logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
		return nil
	}
	return err
}
