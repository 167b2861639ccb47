package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/lifecycle"
	"github.com/starkspartacus/ecompetition-sub002/metrics"
	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/repositories"
)

const (
	joinCodeLength   = 8
	joinCodeAttempts = 5
	overrideAttempts = 3

	// SweepMetricKey is the aggregator key under which sweep runs are recorded.
	SweepMetricKey = "sweep"
)

type CompetitionService interface {
	CreateCompetition(ctx context.Context, actor models.Actor, input CreateCompetitionInput) (*models.Competition, error)
	GetCompetition(ctx context.Context, id uuid.UUID) (*models.Competition, error)
	GetByJoinCode(ctx context.Context, joinCode string) (*models.Competition, error)
	ListCompetitions(ctx context.Context, filter models.CompetitionFilter) ([]*models.Competition, error)
	UpdateCompetition(ctx context.Context, actor models.Actor, id uuid.UUID, input UpdateCompetitionInput) (*models.Competition, error)
	UpdateRules(ctx context.Context, actor models.Actor, id uuid.UUID, rules json.RawMessage) (*models.Competition, error)
	DeleteCompetition(ctx context.Context, actor models.Actor, id uuid.UUID) error

	Publish(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Competition, error)
	Cancel(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Competition, error)
	OverrideStatus(ctx context.Context, actor models.Actor, id uuid.UUID, status models.CompetitionStatus) (*models.Competition, error)
	ListTransitions(ctx context.Context, id uuid.UUID) ([]*models.StatusTransition, error)

	// SweepStatuses applies the time rules at now to every candidate competition.
	// Per-competition failures end up in the result; only a failed candidate load is an error.
	SweepStatuses(ctx context.Context, now time.Time) (*SweepResult, error)
	RunSweep(ctx context.Context, actor models.Actor) (*SweepResult, error)
}

type CreateCompetitionInput struct {
	Name                 string          `json:"name"`
	Category             string          `json:"category"`
	Description          *string         `json:"description,omitempty"`
	Location             *string         `json:"location,omitempty"`
	MaxParticipants      int             `json:"maxParticipants"`
	RegistrationDeadline *time.Time      `json:"registrationDeadline,omitempty"`
	StartTime            *time.Time      `json:"startTime"`
	EndTime              *time.Time      `json:"endTime"`
	Rules                json.RawMessage `json:"rules,omitempty"`
}

// UpdateCompetitionInput carries the editable fields; nil means unchanged.
type UpdateCompetitionInput struct {
	Name                 *string    `json:"name,omitempty"`
	Category             *string    `json:"category,omitempty"`
	Description          *string    `json:"description,omitempty"`
	Location             *string    `json:"location,omitempty"`
	MaxParticipants      *int       `json:"maxParticipants,omitempty"`
	RegistrationDeadline *time.Time `json:"registrationDeadline,omitempty"`
	StartTime            *time.Time `json:"startTime,omitempty"`
	EndTime              *time.Time `json:"endTime,omitempty"`
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Applied []models.StatusTransition `json:"applied"`
	Skipped []lifecycle.Transition    `json:"skipped"`
	Failed  []SweepFailure            `json:"failed"`
}

type SweepFailure struct {
	Transition lifecycle.Transition `json:"transition"`
	Error      string               `json:"error"`
}

type competitionService struct {
	store    repositories.Store
	notifier Notifier
	metrics  *metrics.Aggregator
	logger   *slog.Logger
	now      func() time.Time
}

func NewCompetitionService(
	store repositories.Store,
	notifier Notifier,
	aggregator *metrics.Aggregator,
	logger *slog.Logger,
) CompetitionService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &competitionService{
		store:    store,
		notifier: notifier,
		metrics:  aggregator,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *competitionService) CreateCompetition(ctx context.Context, actor models.Actor, input CreateCompetitionInput) (*models.Competition, error) {
	if !hasRole(actor, models.RoleOrganizer, models.RoleAdmin) {
		return nil, ErrRoleRequired
	}

	name := strings.TrimSpace(input.Name)
	category := strings.TrimSpace(input.Category)
	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if category == "" {
		missing = append(missing, "category")
	}
	if input.StartTime == nil {
		missing = append(missing, "startTime")
	}
	if input.EndTime == nil {
		missing = append(missing, "endTime")
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}

	competition := &models.Competition{
		Name:                 name,
		OrganizerID:          actor.UserID,
		Category:             category,
		Description:          input.Description,
		Location:             input.Location,
		MaxParticipants:      input.MaxParticipants,
		RegistrationDeadline: utcPtr(input.RegistrationDeadline),
		StartTime:            input.StartTime.UTC(),
		EndTime:              input.EndTime.UTC(),
		Status:               models.StatusDraft,
		Rules:                input.Rules,
	}
	if err := validateSchedule(competition); err != nil {
		return nil, err
	}
	if len(competition.Rules) > 0 && !json.Valid(competition.Rules) {
		return nil, ErrInvalidRules
	}

	for attempt := 1; ; attempt++ {
		competition.ID = uuid.Nil
		competition.JoinCode = newJoinCode()
		err := s.store.Competitions().Create(ctx, competition)
		if err == nil {
			break
		}
		if errors.Is(err, repositories.ErrJoinCodeConflict) && attempt < joinCodeAttempts {
			s.logger.WarnContext(ctx, "Join code collision, retrying", slog.Int("attempt", attempt))
			continue
		}
		if errors.Is(err, repositories.ErrInvalidReference) {
			return nil, ErrUserNotFound
		}
		return nil, persistenceError("create competition", err)
	}

	s.logger.InfoContext(ctx, "Competition created",
		slog.String("competition_id", competition.ID.String()),
		slog.String("organizer_id", competition.OrganizerID.String()),
	)
	return competition, nil
}

func (s *competitionService) GetCompetition(ctx context.Context, id uuid.UUID) (*models.Competition, error) {
	c, err := loadCompetition(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	stats := statsFor(ctx, s.store, id)
	c.Stats = &stats
	return c, nil
}

func (s *competitionService) GetByJoinCode(ctx context.Context, joinCode string) (*models.Competition, error) {
	c, err := s.store.Competitions().GetByJoinCode(ctx, strings.ToUpper(strings.TrimSpace(joinCode)))
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, persistenceError("get competition by join code", err)
	}
	return c, nil
}

func (s *competitionService) ListCompetitions(ctx context.Context, filter models.CompetitionFilter) ([]*models.Competition, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrValidation)
	}
	competitions, err := s.store.Competitions().List(ctx, filter)
	if err != nil {
		return nil, persistenceError("list competitions", err)
	}
	return competitions, nil
}

func (s *competitionService) UpdateCompetition(ctx context.Context, actor models.Actor, id uuid.UUID, input UpdateCompetitionInput) (*models.Competition, error) {
	c, err := loadCompetition(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if !canManageCompetition(actor, c) {
		return nil, ErrNotOrganizer
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, &MissingFieldsError{Fields: []string{"name"}}
		}
		c.Name = strings.TrimSpace(*input.Name)
	}
	if input.Category != nil {
		if strings.TrimSpace(*input.Category) == "" {
			return nil, &MissingFieldsError{Fields: []string{"category"}}
		}
		c.Category = strings.TrimSpace(*input.Category)
	}
	if input.Description != nil {
		c.Description = input.Description
	}
	if input.Location != nil {
		c.Location = input.Location
	}
	if input.MaxParticipants != nil {
		c.MaxParticipants = *input.MaxParticipants
	}
	if input.RegistrationDeadline != nil {
		c.RegistrationDeadline = utcPtr(input.RegistrationDeadline)
	}
	if input.StartTime != nil {
		c.StartTime = input.StartTime.UTC()
	}
	if input.EndTime != nil {
		c.EndTime = input.EndTime.UTC()
	}
	if err := validateSchedule(c); err != nil {
		return nil, err
	}

	if err := s.store.Competitions().Update(ctx, c); err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, persistenceError("update competition", err)
	}
	return c, nil
}

func (s *competitionService) UpdateRules(ctx context.Context, actor models.Actor, id uuid.UUID, rules json.RawMessage) (*models.Competition, error) {
	if len(rules) > 0 && !json.Valid(rules) {
		return nil, ErrInvalidRules
	}
	c, err := loadCompetition(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if !canManageCompetition(actor, c) {
		return nil, ErrNotOrganizer
	}

	c.Rules = rules
	if err := s.store.Competitions().Update(ctx, c); err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, persistenceError("update competition rules", err)
	}
	return c, nil
}

func (s *competitionService) DeleteCompetition(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	c, err := loadCompetition(ctx, s.store, id)
	if err != nil {
		return err
	}
	if !canManageCompetition(actor, c) {
		return ErrNotOrganizer
	}
	if c.Status != models.StatusDraft && c.Status != models.StatusCancelled {
		return ErrCompetitionNotDeletable
	}

	if err := s.store.Competitions().Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return ErrCompetitionNotFound
		}
		return persistenceError("delete competition", err)
	}
	s.logger.InfoContext(ctx, "Competition deleted", slog.String("competition_id", id.String()))
	return nil
}

func (s *competitionService) Publish(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Competition, error) {
	return s.override(ctx, actor, id, models.StatusOpen, func(from models.CompetitionStatus) bool {
		return from == models.StatusDraft
	})
}

func (s *competitionService) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Competition, error) {
	return s.override(ctx, actor, id, models.StatusCancelled, nil)
}

func (s *competitionService) OverrideStatus(ctx context.Context, actor models.Actor, id uuid.UUID, status models.CompetitionStatus) (*models.Competition, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.override(ctx, actor, id, status, nil)
}

// override sets the status directly, ignoring the time rules. A concurrent change of the
// stored status makes it reload and try again, so the last writer wins.
func (s *competitionService) override(
	ctx context.Context,
	actor models.Actor,
	id uuid.UUID,
	to models.CompetitionStatus,
	allowedFrom func(models.CompetitionStatus) bool,
) (*models.Competition, error) {
	for attempt := 1; ; attempt++ {
		c, err := loadCompetition(ctx, s.store, id)
		if err != nil {
			return nil, err
		}
		if !canManageCompetition(actor, c) {
			return nil, ErrNotOrganizer
		}
		if !lifecycle.CanOverride(c.Status, to) || (allowedFrom != nil && !allowedFrom(c.Status)) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, c.Status, to)
		}

		actorID := actor.UserID
		record := models.StatusTransition{
			CompetitionID: c.ID,
			OldStatus:     c.Status,
			NewStatus:     to,
			Timestamp:     s.now(),
			Source:        models.TransitionSourceManual,
			ActorID:       &actorID,
		}
		err = s.applyTransition(ctx, &record)
		if errors.Is(err, repositories.ErrStatusConflict) && attempt < overrideAttempts {
			continue
		}
		if errors.Is(err, repositories.ErrStatusConflict) {
			return nil, persistenceError("override competition status", err)
		}
		if err != nil {
			return nil, err
		}

		c.Status = to
		s.logger.InfoContext(ctx, "Competition status overridden",
			slog.String("competition_id", c.ID.String()),
			slog.String("old_status", string(record.OldStatus)),
			slog.String("new_status", string(to)),
			slog.String("actor_id", actorID.String()),
		)
		s.notifyTransition(ctx, c, record)
		return c, nil
	}
}

func (s *competitionService) ListTransitions(ctx context.Context, id uuid.UUID) ([]*models.StatusTransition, error) {
	if _, err := loadCompetition(ctx, s.store, id); err != nil {
		return nil, err
	}
	transitions, err := s.store.Transitions().ListByCompetition(ctx, id)
	if err != nil {
		return nil, persistenceError("list status transitions", err)
	}
	return transitions, nil
}

func (s *competitionService) RunSweep(ctx context.Context, actor models.Actor) (*SweepResult, error) {
	if !hasRole(actor, models.RoleAdmin, models.RoleOrganizer) {
		return nil, ErrRoleRequired
	}
	return s.SweepStatuses(ctx, s.now())
}

func (s *competitionService) SweepStatuses(ctx context.Context, now time.Time) (result *SweepResult, err error) {
	if s.metrics != nil {
		done := s.metrics.Track(SweepMetricKey)
		defer func() { done(err != nil || (result != nil && len(result.Failed) > 0)) }()
	}

	candidates, err := s.store.Competitions().ListForStatusSweep(ctx, now)
	if err != nil {
		return nil, persistenceError("load sweep candidates", err)
	}
	byID := make(map[uuid.UUID]*models.Competition, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	result = &SweepResult{
		Applied: []models.StatusTransition{},
		Skipped: []lifecycle.Transition{},
		Failed:  []SweepFailure{},
	}
	for _, t := range lifecycle.ComputeStatuses(now, candidates) {
		record := models.StatusTransition{
			CompetitionID: t.CompetitionID,
			OldStatus:     t.OldStatus,
			NewStatus:     t.NewStatus,
			Timestamp:     now,
			Source:        models.TransitionSourceSweep,
		}
		switch err := s.applyTransition(ctx, &record); {
		case err == nil:
			result.Applied = append(result.Applied, record)
			s.notifyTransition(ctx, byID[t.CompetitionID], record)
		case errors.Is(err, repositories.ErrStatusConflict):
			result.Skipped = append(result.Skipped, t)
		default:
			s.logger.ErrorContext(ctx, "Failed to apply status transition",
				slog.String("competition_id", t.CompetitionID.String()),
				slog.String("old_status", string(t.OldStatus)),
				slog.String("new_status", string(t.NewStatus)),
				slog.Any("error", err),
			)
			result.Failed = append(result.Failed, SweepFailure{Transition: t, Error: err.Error()})
		}
	}

	if len(result.Applied) > 0 || len(result.Failed) > 0 {
		s.logger.InfoContext(ctx, "Status sweep finished",
			slog.Int("applied", len(result.Applied)),
			slog.Int("skipped", len(result.Skipped)),
			slog.Int("failed", len(result.Failed)),
		)
	}
	return result, nil
}

// applyTransition stores the new status with a compare-and-set on the old one and
// records the transition. Without transactions a failed record reverts the status.
// ErrStatusConflict is returned unwrapped so callers can tell a lost race from a failure.
func (s *competitionService) applyTransition(ctx context.Context, record *models.StatusTransition) error {
	return writeSteps(ctx, s.store, s.logger, func(ctx context.Context, tx repositories.Store, undo *undoLog) error {
		if err := tx.Competitions().UpdateStatus(ctx, record.CompetitionID, record.OldStatus, record.NewStatus); err != nil {
			if errors.Is(err, repositories.ErrStatusConflict) {
				return err
			}
			return persistenceError("update competition status", err)
		}
		undo.push("revert competition status", func(ctx context.Context) error {
			return tx.Competitions().UpdateStatus(ctx, record.CompetitionID, record.NewStatus, record.OldStatus)
		})

		if err := tx.Transitions().Create(ctx, record); err != nil {
			return persistenceError("record status transition", err)
		}
		return nil
	})
}

func (s *competitionService) notifyTransition(ctx context.Context, c *models.Competition, record models.StatusTransition) {
	event := models.TransitionEvent{Transition: record}
	if c != nil {
		event.CompetitionName = c.Name
		event.OrganizerEmail = userEmail(ctx, s.store, c.OrganizerID)
	}
	if err := s.notifier.NotifyTransition(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to notify status transition",
			slog.String("competition_id", record.CompetitionID.String()),
			slog.Any("error", err),
		)
	}
}

func validateSchedule(c *models.Competition) error {
	if !c.EndTime.After(c.StartTime) {
		return ErrInvalidDateRange
	}
	if c.RegistrationDeadline != nil && c.RegistrationDeadline.After(c.StartTime) {
		return ErrInvalidDeadline
	}
	if c.MaxParticipants < 0 {
		return ErrInvalidCapacity
	}
	return nil
}

// newJoinCode returns 8 uppercase hexadecimal characters taken from a random UUID.
func newJoinCode() string {
	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(code[:joinCodeLength])
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
