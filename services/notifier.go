package services

import (
	"context"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

// Notifier receives events after they were persisted. Its errors are logged and
// never change the outcome of the operation that produced the event.
type Notifier interface {
	NotifyTransition(ctx context.Context, event models.TransitionEvent) error
	NotifyParticipation(ctx context.Context, event models.ParticipationEvent) error
}

type nopNotifier struct{}

func (nopNotifier) NotifyTransition(context.Context, models.TransitionEvent) error { return nil }

func (nopNotifier) NotifyParticipation(context.Context, models.ParticipationEvent) error { return nil }
