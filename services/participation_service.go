package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/repositories"
)

type ParticipationService interface {
	// CreateParticipation registers the actor. A non-rejected participation for the same
	// competition and user makes it fail with ErrDuplicateParticipation.
	CreateParticipation(ctx context.Context, actor models.Actor, competitionID uuid.UUID, teamData json.RawMessage) (*models.Participation, error)
	// CheckParticipation reports whether userID holds a non-rejected participation.
	// Malformed identifiers and storage errors yield false.
	CheckParticipation(ctx context.Context, competitionID, userID string) bool
	// GetCompetitionStats never fails; malformed identifiers and storage errors yield the zero value.
	GetCompetitionStats(ctx context.Context, competitionID string) models.CompetitionStats

	GetParticipation(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Participation, error)
	ListCompetitionParticipations(ctx context.Context, actor models.Actor, competitionID uuid.UUID, status *models.ParticipationStatus) ([]*models.Participation, error)
	ListMyParticipations(ctx context.Context, actor models.Actor) ([]*models.Participation, error)
	ReviewParticipation(ctx context.Context, actor models.Actor, id uuid.UUID, status models.ParticipationStatus) (*models.Participation, error)
	WithdrawParticipation(ctx context.Context, actor models.Actor, id uuid.UUID) error
}

type participationService struct {
	store    repositories.Store
	notifier Notifier
	logger   *slog.Logger
}

func NewParticipationService(store repositories.Store, notifier Notifier, logger *slog.Logger) ParticipationService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &participationService{store: store, notifier: notifier, logger: logger}
}

func (s *participationService) CreateParticipation(ctx context.Context, actor models.Actor, competitionID uuid.UUID, teamData json.RawMessage) (*models.Participation, error) {
	team, err := parseTeamData(teamData)
	if err != nil {
		return nil, err
	}

	competition, err := loadCompetition(ctx, s.store, competitionID)
	if err != nil {
		return nil, err
	}
	if competition.Status != models.StatusOpen {
		return nil, ErrRegistrationNotOpen
	}
	if competition.MaxParticipants > 0 {
		counts, err := s.store.Participations().CountByStatus(ctx, competitionID)
		if err != nil {
			return nil, persistenceError("count participations", err)
		}
		if counts[models.ParticipationPending]+counts[models.ParticipationApproved] >= competition.MaxParticipants {
			return nil, ErrCompetitionFull
		}
	}

	participation := &models.Participation{
		CompetitionID: competitionID,
		UserID:        actor.UserID,
		Status:        models.ParticipationPending,
		TeamData:      teamData,
	}

	err = writeSteps(ctx, s.store, s.logger, func(ctx context.Context, tx repositories.Store, undo *undoLog) error {
		if err := tx.Participations().Create(ctx, participation); err != nil {
			return mapParticipationError("create participation", err)
		}
		undo.push("delete participation", func(ctx context.Context) error {
			return tx.Participations().Delete(ctx, participation.ID)
		})

		if team == nil {
			return nil
		}

		created := &models.Team{CompetitionID: competitionID, Name: team.Name, CaptainID: actor.UserID}
		if err := tx.Teams().Create(ctx, created); err != nil {
			return mapParticipationError("create team", err)
		}
		undo.push("delete team", func(ctx context.Context) error {
			if err := tx.Players().DeleteByTeam(ctx, created.ID); err != nil {
				return err
			}
			return tx.Teams().Delete(ctx, created.ID)
		})

		for _, input := range team.Players {
			player := newPlayer(created.ID, input)
			if err := tx.Players().Create(ctx, player); err != nil {
				return persistenceError("create player", err)
			}
			created.Players = append(created.Players, *player)
		}

		participation.TeamID = &created.ID
		if err := tx.Participations().Update(ctx, participation); err != nil {
			return mapParticipationError("link team to participation", err)
		}
		participation.Team = created
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicate) {
			s.logger.ErrorContext(ctx, "Failed to create participation",
				slog.String("competition_id", competitionID.String()),
				slog.String("user_id", actor.UserID.String()),
				slog.Any("error", err),
			)
		}
		participation.TeamID = nil
		return nil, err
	}

	s.notifyParticipation(ctx, models.ParticipationCreated, participation, competition)
	return participation, nil
}

func (s *participationService) CheckParticipation(ctx context.Context, competitionID, userID string) bool {
	cid, ok := parseID(competitionID)
	if !ok {
		return false
	}
	uid, ok := parseID(userID)
	if !ok {
		return false
	}
	_, err := s.store.Participations().FindActive(ctx, cid, uid)
	if err != nil && !errors.Is(err, repositories.ErrParticipationNotFound) {
		s.logger.WarnContext(ctx, "Participation check failed", slog.Any("error", err))
	}
	return err == nil
}

func (s *participationService) GetCompetitionStats(ctx context.Context, competitionID string) models.CompetitionStats {
	id, ok := parseID(competitionID)
	if !ok {
		return models.CompetitionStats{}
	}
	return statsFor(ctx, s.store, id)
}

func (s *participationService) GetParticipation(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Participation, error) {
	p, competition, err := s.loadParticipation(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != actor.UserID && !canManageCompetition(actor, competition) {
		return nil, ErrParticipationNotFound
	}
	if p.TeamID != nil {
		team, err := loadTeamWithPlayers(ctx, s.store, *p.TeamID)
		if err != nil && !errors.Is(err, ErrTeamNotFound) {
			return nil, err
		}
		p.Team = team
	}
	return p, nil
}

func (s *participationService) ListCompetitionParticipations(ctx context.Context, actor models.Actor, competitionID uuid.UUID, status *models.ParticipationStatus) ([]*models.Participation, error) {
	if status != nil && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	competition, err := loadCompetition(ctx, s.store, competitionID)
	if err != nil {
		return nil, err
	}
	if !canManageCompetition(actor, competition) {
		return nil, ErrNotOrganizer
	}
	participations, err := s.store.Participations().ListByCompetition(ctx, competitionID, status)
	if err != nil {
		return nil, persistenceError("list competition participations", err)
	}
	return participations, nil
}

func (s *participationService) ListMyParticipations(ctx context.Context, actor models.Actor) ([]*models.Participation, error) {
	participations, err := s.store.Participations().ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, persistenceError("list user participations", err)
	}
	return participations, nil
}

func (s *participationService) ReviewParticipation(ctx context.Context, actor models.Actor, id uuid.UUID, status models.ParticipationStatus) (*models.Participation, error) {
	if status != models.ParticipationApproved && status != models.ParticipationRejected {
		return nil, fmt.Errorf("%w: review status must be approved or rejected", ErrValidation)
	}
	p, competition, err := s.loadParticipation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManageCompetition(actor, competition) {
		if p.UserID == actor.UserID {
			return nil, ErrNotOrganizer
		}
		return nil, ErrParticipationNotFound
	}
	if p.Status == status {
		return p, nil
	}

	p.Status = status
	if err := s.store.Participations().Update(ctx, p); err != nil {
		return nil, mapParticipationError("review participation", err)
	}

	s.logger.InfoContext(ctx, "Participation reviewed",
		slog.String("participation_id", p.ID.String()),
		slog.String("status", string(status)),
		slog.String("actor_id", actor.UserID.String()),
	)
	s.notifyParticipation(ctx, models.ParticipationReviewed, p, competition)
	return p, nil
}

func (s *participationService) WithdrawParticipation(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	p, competition, err := s.loadParticipation(ctx, id)
	if err != nil {
		return err
	}
	if p.UserID != actor.UserID {
		return ErrParticipationNotFound
	}
	if !p.Status.Active() {
		return ErrNotWithdrawable
	}

	err = writeSteps(ctx, s.store, s.logger, func(ctx context.Context, tx repositories.Store, _ *undoLog) error {
		if err := tx.Participations().Delete(ctx, p.ID); err != nil {
			return mapParticipationError("delete participation", err)
		}
		if p.TeamID == nil {
			return nil
		}
		// Remaining steps only clean up; rerunning them after a partial failure is harmless.
		if err := tx.Players().DeleteByTeam(ctx, *p.TeamID); err != nil {
			return persistenceError("delete team players", err)
		}
		if err := tx.Teams().Delete(ctx, *p.TeamID); err != nil && !errors.Is(err, repositories.ErrTeamNotFound) {
			return persistenceError("delete team", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyParticipation(ctx, models.ParticipationWithdrawn, p, competition)
	return nil
}

func (s *participationService) loadParticipation(ctx context.Context, id uuid.UUID) (*models.Participation, *models.Competition, error) {
	p, err := s.store.Participations().GetByID(ctx, id)
	if err != nil {
		return nil, nil, mapParticipationError("get participation", err)
	}
	competition, err := loadCompetition(ctx, s.store, p.CompetitionID)
	if err != nil {
		return nil, nil, err
	}
	return p, competition, nil
}

func (s *participationService) notifyParticipation(ctx context.Context, typ models.ParticipationEventType, p *models.Participation, competition *models.Competition) {
	event := models.ParticipationEvent{
		Type:            typ,
		ParticipationID: p.ID,
		CompetitionID:   p.CompetitionID,
		UserID:          p.UserID,
		Status:          p.Status,
		Timestamp:       p.UpdatedAt,
		CompetitionName: competition.Name,
		UserEmail:       userEmail(ctx, s.store, p.UserID),
	}
	if err := s.notifier.NotifyParticipation(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to notify participation event",
			slog.String("participation_id", p.ID.String()),
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
	}
}

func statsFor(ctx context.Context, store repositories.Store, competitionID uuid.UUID) models.CompetitionStats {
	counts, err := store.Participations().CountByStatus(ctx, competitionID)
	if err != nil {
		return models.CompetitionStats{}
	}
	return models.CompetitionStats{
		ParticipantCount: counts[models.ParticipationApproved],
		PendingCount:     counts[models.ParticipationPending],
	}
}

// parseTeamData returns the team to register, or nil when the payload carries no team.
// A payload without a team name and players is kept on the participation as is.
func parseTeamData(raw json.RawMessage) (*models.TeamData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var team models.TeamData
	if err := json.Unmarshal(trimmed, &team); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTeamData, err)
	}
	team.Name = strings.TrimSpace(team.Name)
	if team.Name == "" && len(team.Players) == 0 {
		return nil, nil
	}
	if team.Name == "" {
		return nil, fmt.Errorf("%w: team name is required", ErrInvalidTeamData)
	}
	for i, p := range team.Players {
		if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
			return nil, fmt.Errorf("%w: player %d needs a first and last name", ErrInvalidTeamData, i+1)
		}
	}
	return &team, nil
}

func mapParticipationError(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrParticipationConflict):
		return ErrDuplicateParticipation
	case errors.Is(err, repositories.ErrParticipationNotFound):
		return ErrParticipationNotFound
	case errors.Is(err, repositories.ErrCompetitionNotFound):
		return ErrCompetitionNotFound
	case errors.Is(err, repositories.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrTeamNotFound):
		return ErrTeamNotFound
	}
	return persistenceError(op, err)
}
