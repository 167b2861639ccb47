package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

// EmailSender delivers a plain-text email to one recipient.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
}

func (c SESConfig) Enabled() bool {
	return c.Region != "" || c.AccessKeyID != "" || c.SecretAccessKey != "" || c.Sender != ""
}

// SESSender sends email through AWS SESv2.
type SESSender struct {
	client *sesv2.Client
	sender string
}

func NewSESSender(ctx context.Context, cfg SESConfig) (*SESSender, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Region == "" {
		return nil, fmt.Errorf("ses credentials and region are required")
	}
	if cfg.Sender == "" {
		return nil, fmt.Errorf("ses sender is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SESSender{client: sesv2.NewFromConfig(awsCfg), sender: cfg.Sender}, nil
}

func (s *SESSender) Send(ctx context.Context, recipient, subject, body string) error {
	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{ToAddresses: []string{recipient}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body:    &types.Body{Text: &types.Content{Data: aws.String(body)}},
			},
		},
		FromEmailAddress: aws.String(s.sender),
	}
	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("send ses email to %s: %w", recipient, err)
	}
	return nil
}

// EmailNotifier mails organizers about status changes and participants about review decisions.
// Events without a known recipient are skipped.
type EmailNotifier struct {
	sender EmailSender
}

func NewEmailNotifier(sender EmailSender) *EmailNotifier {
	return &EmailNotifier{sender: sender}
}

func (n *EmailNotifier) NotifyTransition(ctx context.Context, event models.TransitionEvent) error {
	if event.OrganizerEmail == "" {
		return nil
	}
	t := event.Transition
	subject := fmt.Sprintf("%s is now %s", competitionLabel(event.CompetitionName), humanStatus(string(t.NewStatus)))

	var body strings.Builder
	fmt.Fprintf(&body, "The status of %s changed from %s to %s",
		competitionLabel(event.CompetitionName), humanStatus(string(t.OldStatus)), humanStatus(string(t.NewStatus)))
	if t.Source == models.TransitionSourceSweep {
		body.WriteString(" according to its schedule")
	}
	fmt.Fprintf(&body, " on %s.\n", t.Timestamp.UTC().Format("2006-01-02 15:04 MST"))

	return n.sender.Send(ctx, event.OrganizerEmail, subject, body.String())
}

func (n *EmailNotifier) NotifyParticipation(ctx context.Context, event models.ParticipationEvent) error {
	if event.Type != models.ParticipationReviewed || event.UserEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("Your registration for %s was %s", competitionLabel(event.CompetitionName), event.Status)
	body := fmt.Sprintf("The organizer of %s marked your registration as %s.\n",
		competitionLabel(event.CompetitionName), event.Status)
	return n.sender.Send(ctx, event.UserEmail, subject, body)
}

func competitionLabel(name string) string {
	if name == "" {
		return "your competition"
	}
	return fmt.Sprintf("%q", name)
}

func humanStatus(status string) string {
	return strings.ToLower(strings.ReplaceAll(status, "_", " "))
}
