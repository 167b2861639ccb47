package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type recordingNotifier struct {
	mu          sync.Mutex
	transitions []models.TransitionEvent
	err         error
}

func (r *recordingNotifier) NotifyTransition(_ context.Context, event models.TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, event)
	return r.err
}

func (r *recordingNotifier) NotifyParticipation(context.Context, models.ParticipationEvent) error {
	return r.err
}

func transitionEvent() models.TransitionEvent {
	return models.TransitionEvent{
		Transition: models.StatusTransition{
			ID:            uuid.New(),
			CompetitionID: uuid.New(),
			OldStatus:     models.StatusOpen,
			NewStatus:     models.StatusInProgress,
			Timestamp:     time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
			Source:        models.TransitionSourceSweep,
		},
		CompetitionName: "Spring Cup",
		OrganizerEmail:  "org@example.com",
	}
}

func TestFanoutCallsEveryNotifierAndJoinsErrors(t *testing.T) {
	errA := errors.New("smtp down")
	errB := errors.New("broker down")
	a := &recordingNotifier{err: errA}
	b := &recordingNotifier{}
	c := &recordingNotifier{err: errB}

	f := NewFanout(a, nil, b, c)
	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}

	err := f.NotifyTransition(context.Background(), transitionEvent())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both errors joined, got %v", err)
	}
	for i, n := range []*recordingNotifier{a, b, c} {
		if len(n.transitions) != 1 {
			t.Errorf("notifier %d got %d events, want 1", i, len(n.transitions))
		}
	}
}

func TestFanoutWithoutNotifiers(t *testing.T) {
	if err := NewFanout().NotifyTransition(context.Background(), transitionEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	sent []sentMail
}

func (f *fakeSender) Send(_ context.Context, recipient, subject, body string) error {
	f.sent = append(f.sent, sentMail{recipient, subject, body})
	return nil
}

func TestEmailNotifierTransition(t *testing.T) {
	sender := &fakeSender{}
	n := NewEmailNotifier(sender)

	if err := n.NotifyTransition(context.Background(), transitionEvent()); err != nil {
		t.Fatalf("NotifyTransition: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(sender.sent))
	}
	mail := sender.sent[0]
	if mail.to != "org@example.com" {
		t.Errorf("recipient = %q", mail.to)
	}
	if !strings.Contains(mail.subject, "in progress") {
		t.Errorf("subject %q does not mention the new status", mail.subject)
	}
	if !strings.Contains(mail.body, "according to its schedule") {
		t.Errorf("body %q does not mention the schedule", mail.body)
	}

	noRecipient := transitionEvent()
	noRecipient.OrganizerEmail = ""
	if err := n.NotifyTransition(context.Background(), noRecipient); err != nil {
		t.Fatalf("NotifyTransition: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("event without recipient was mailed")
	}
}

func TestEmailNotifierOnlyMailsReviews(t *testing.T) {
	sender := &fakeSender{}
	n := NewEmailNotifier(sender)
	event := models.ParticipationEvent{
		Type:            models.ParticipationCreated,
		Status:          models.ParticipationPending,
		CompetitionName: "Spring Cup",
		UserEmail:       "player@example.com",
	}
	if err := n.NotifyParticipation(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("created event should not be mailed")
	}

	event.Type = models.ParticipationReviewed
	event.Status = models.ParticipationApproved
	if err := n.NotifyParticipation(context.Background(), event); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || sender.sent[0].to != "player@example.com" {
		t.Fatalf("unexpected mails: %+v", sender.sent)
	}
	if !strings.Contains(sender.sent[0].subject, "approved") {
		t.Errorf("subject %q", sender.sent[0].subject)
	}
}

func TestNewPublishing(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	event := transitionEvent()

	msg, err := newPublishing(routingKeyTransition, event, now)
	if err != nil {
		t.Fatalf("newPublishing: %v", err)
	}
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Errorf("unexpected headers: %+v", msg)
	}
	if msg.Type != routingKeyTransition || !msg.Timestamp.Equal(now) || msg.MessageId == "" {
		t.Errorf("unexpected metadata: type=%q ts=%v id=%q", msg.Type, msg.Timestamp, msg.MessageId)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if _, ok := decoded["transition"]; !ok {
		t.Errorf("body lacks transition: %s", msg.Body)
	}
	if strings.Contains(string(msg.Body), "org@example.com") {
		t.Errorf("organizer email leaked into the message body")
	}
}

type gatedNotifier struct {
	release chan struct{}
	ctxErr  chan error
}

func (g *gatedNotifier) NotifyTransition(ctx context.Context, _ models.TransitionEvent) error {
	<-g.release
	g.ctxErr <- ctx.Err()
	return errors.New("sink down")
}

func (g *gatedNotifier) NotifyParticipation(context.Context, models.ParticipationEvent) error {
	return nil
}

func TestAsyncReturnsBeforeDeliveryAndOutlivesCaller(t *testing.T) {
	gated := &gatedNotifier{release: make(chan struct{}), ctxErr: make(chan error, 1)}
	async := NewAsync(gated, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan error, 1)
	go func() { returned <- async.NotifyTransition(ctx, transitionEvent()) }()

	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("NotifyTransition: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("NotifyTransition waited for the sink")
	}

	cancel()
	close(gated.release)
	async.Wait()

	if err := <-gated.ctxErr; err != nil {
		t.Fatalf("delivery context cancelled with the caller: %v", err)
	}
}
