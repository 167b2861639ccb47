package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/repositories"
)

// RosterService manages team rosters. Writes are gated by captaincy only: no global
// role, ADMIN included, may change another captain's roster.
type RosterService interface {
	GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error)
	ListTeamPlayers(ctx context.Context, teamID uuid.UUID) ([]*models.Player, error)
	AddPlayer(ctx context.Context, actor models.Actor, teamID uuid.UUID, input models.PlayerInput) (*models.Player, error)
	UpdatePlayer(ctx context.Context, actor models.Actor, playerID uuid.UUID, input UpdatePlayerInput) (*models.Player, error)
	DeletePlayer(ctx context.Context, actor models.Actor, playerID uuid.UUID) error
}

// UpdatePlayerInput carries the editable player fields; nil means unchanged.
type UpdatePlayerInput struct {
	FirstName    *string    `json:"firstName,omitempty"`
	LastName     *string    `json:"lastName,omitempty"`
	Position     *string    `json:"position,omitempty"`
	JerseyNumber *int       `json:"jerseyNumber,omitempty"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
}

type rosterService struct {
	store  repositories.Store
	logger *slog.Logger
}

func NewRosterService(store repositories.Store, logger *slog.Logger) RosterService {
	return &rosterService{store: store, logger: logger}
}

func (s *rosterService) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	return loadTeamWithPlayers(ctx, s.store, teamID)
}

func (s *rosterService) ListTeamPlayers(ctx context.Context, teamID uuid.UUID) ([]*models.Player, error) {
	if _, err := s.loadTeam(ctx, teamID); err != nil {
		return nil, err
	}
	players, err := s.store.Players().ListByTeam(ctx, teamID)
	if err != nil {
		return nil, persistenceError("list team players", err)
	}
	return players, nil
}

func (s *rosterService) AddPlayer(ctx context.Context, actor models.Actor, teamID uuid.UUID, input models.PlayerInput) (*models.Player, error) {
	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.CaptainID != actor.UserID {
		return nil, ErrNotCaptain
	}
	if missing := missingPlayerNames(input.FirstName, input.LastName); len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}

	player := newPlayer(team.ID, input)
	if err := s.store.Players().Create(ctx, player); err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, persistenceError("create player", err)
	}
	s.logger.InfoContext(ctx, "Player added",
		slog.String("team_id", team.ID.String()),
		slog.String("player_id", player.ID.String()),
	)
	return player, nil
}

func (s *rosterService) UpdatePlayer(ctx context.Context, actor models.Actor, playerID uuid.UUID, input UpdatePlayerInput) (*models.Player, error) {
	player, err := s.authorizePlayer(ctx, actor, playerID)
	if err != nil {
		return nil, err
	}

	if input.FirstName != nil {
		player.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		player.LastName = strings.TrimSpace(*input.LastName)
	}
	if missing := missingPlayerNames(player.FirstName, player.LastName); len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}
	if input.Position != nil {
		player.Position = input.Position
	}
	if input.JerseyNumber != nil {
		player.JerseyNumber = input.JerseyNumber
	}
	if input.BirthDate != nil {
		player.BirthDate = input.BirthDate
	}

	if err := s.store.Players().Update(ctx, player); err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, persistenceError("update player", err)
	}
	return player, nil
}

func (s *rosterService) DeletePlayer(ctx context.Context, actor models.Actor, playerID uuid.UUID) error {
	player, err := s.authorizePlayer(ctx, actor, playerID)
	if err != nil {
		return err
	}
	if err := s.store.Players().Delete(ctx, player.ID); err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return ErrPlayerNotFound
		}
		return persistenceError("delete player", err)
	}
	s.logger.InfoContext(ctx, "Player removed",
		slog.String("team_id", player.TeamID.String()),
		slog.String("player_id", player.ID.String()),
	)
	return nil
}

// authorizePlayer resolves player, then team, then captain, and compares the captain to the actor.
func (s *rosterService) authorizePlayer(ctx context.Context, actor models.Actor, playerID uuid.UUID) (*models.Player, error) {
	player, err := s.store.Players().GetByID(ctx, playerID)
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, persistenceError("get player", err)
	}
	team, err := s.loadTeam(ctx, player.TeamID)
	if err != nil {
		return nil, err
	}
	if team.CaptainID != actor.UserID {
		return nil, ErrNotCaptain
	}
	return player, nil
}

func (s *rosterService) loadTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	return loadTeam(ctx, s.store, id)
}

func loadTeam(ctx context.Context, store repositories.Store, id uuid.UUID) (*models.Team, error) {
	team, err := store.Teams().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, persistenceError("get team", err)
	}
	return team, nil
}

func loadTeamWithPlayers(ctx context.Context, store repositories.Store, id uuid.UUID) (*models.Team, error) {
	team, err := loadTeam(ctx, store, id)
	if err != nil {
		return nil, err
	}
	players, err := store.Players().ListByTeam(ctx, id)
	if err != nil {
		return nil, persistenceError("list team players", err)
	}
	team.Players = make([]models.Player, 0, len(players))
	for _, p := range players {
		team.Players = append(team.Players, *p)
	}
	return team, nil
}

func newPlayer(teamID uuid.UUID, input models.PlayerInput) *models.Player {
	return &models.Player{
		TeamID:       teamID,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Position:     input.Position,
		JerseyNumber: input.JerseyNumber,
		BirthDate:    input.BirthDate,
	}
}

func missingPlayerNames(first, last string) []string {
	var missing []string
	if strings.TrimSpace(first) == "" {
		missing = append(missing, "firstName")
	}
	if strings.TrimSpace(last) == "" {
		missing = append(missing, "lastName")
	}
	return missing
}
