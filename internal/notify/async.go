package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lalithlochan/quorum/internal/metrics"
)

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("publisher closed")

// AsyncPublisher runs each event on its own goroutine, at most limit at a
// time. Handlers get a context detached from the publisher's caller, so a
// finished HTTP request does not cancel its notifications.
type AsyncPublisher struct {
	handler EventHandler
	sem     chan struct{}
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncPublisher(handler EventHandler, limit int, logger *zap.Logger) *AsyncPublisher {
	if limit < 1 {
		limit = 1
	}
	return &AsyncPublisher{
		handler: handler,
		sem:     make(chan struct{}, limit),
		logger:  logger,
	}
}

// Publish schedules ev and returns immediately
func (p *AsyncPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPublisherClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer p.wg.Done()

		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		p.run(detached, ev)
	}()
	return nil
}

func (p *AsyncPublisher) run(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordFanout(string(ev.Kind), "error")
			p.logger.Error("fan-out handler panicked",
				zap.String("kind", string(ev.Kind)),
				zap.String("project_id", ev.ProjectID.String()),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if err := p.handler.HandleEvent(ctx, ev); err != nil {
		metrics.RecordFanout(string(ev.Kind), "error")
		p.logger.Error("fan-out failed",
			zap.Error(err),
			zap.String("kind", string(ev.Kind)),
			zap.String("project_id", ev.ProjectID.String()),
		)
		return
	}
	metrics.RecordFanout(string(ev.Kind), "ok")
}

// Close stops accepting events and waits for in-flight ones until ctx ends
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain fan-out: %w", ctx.Err())
	}
}
