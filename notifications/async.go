package notifications

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

// Async delivers events on a background goroutine so callers return as soon as the
// write has committed. Delivery runs on a context detached from the caller's
// cancellation; request values such as the request id still flow through.
// Failures are logged since nobody is left to receive them.
type Async struct {
	next   Notifier
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewAsync(next Notifier, logger *slog.Logger) *Async {
	return &Async{next: next, logger: logger}
}

func (a *Async) NotifyTransition(ctx context.Context, event models.TransitionEvent) error {
	a.dispatch(ctx, "status_transition", func(ctx context.Context) error {
		return a.next.NotifyTransition(ctx, event)
	})
	return nil
}

func (a *Async) NotifyParticipation(ctx context.Context, event models.ParticipationEvent) error {
	a.dispatch(ctx, "participation", func(ctx context.Context) error {
		return a.next.NotifyParticipation(ctx, event)
	})
	return nil
}

func (a *Async) dispatch(ctx context.Context, kind string, deliver func(context.Context) error) {
	detached := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := deliver(detached); err != nil {
			a.logger.Error("Notification delivery failed", slog.String("event", kind), slog.Any("error", err))
		}
	}()
}

// Wait blocks until every delivery started so far has finished. Call it on shutdown
// before closing the sinks.
func (a *Async) Wait() {
	a.wg.Wait()
}
