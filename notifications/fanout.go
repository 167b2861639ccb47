// Package notifications delivers competition events to email, message broker and realtime sinks.
package notifications

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type Notifier interface {
	NotifyTransition(ctx context.Context, event models.TransitionEvent) error
	NotifyParticipation(ctx context.Context, event models.ParticipationEvent) error
}

// Fanout hands every event to all of its notifiers concurrently and joins their errors.
// One failing notifier does not keep the others from being called.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout skips nil notifiers so optional sinks can be passed unconditionally.
func NewFanout(notifiers ...Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

func (f *Fanout) Len() int { return len(f.notifiers) }

func (f *Fanout) NotifyTransition(ctx context.Context, event models.TransitionEvent) error {
	return f.each(func(n Notifier) error { return n.NotifyTransition(ctx, event) })
}

func (f *Fanout) NotifyParticipation(ctx context.Context, event models.ParticipationEvent) error {
	return f.each(func(n Notifier) error { return n.NotifyParticipation(ctx, event) })
}

func (f *Fanout) each(call func(Notifier) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, n := range f.notifiers {
		n := n
		g.Go(func() error {
			if err := call(n); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
