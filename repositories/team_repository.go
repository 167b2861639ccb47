package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type TeamRepository interface {
	Create(ctx context.Context, team *models.Team) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error)
	ListByCompetition(ctx context.Context, competitionID uuid.UUID) ([]*models.Team, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var teamConstraintErrors = map[string]error{
	"teams_competition_id_fkey": ErrCompetitionNotFound,
	"teams_captain_id_fkey":     ErrUserNotFound,
}

type postgresTeamRepository struct {
	exec SQLExecutor
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{exec: db}
}

func (r *postgresTeamRepository) Create(ctx context.Context, team *models.Team) error {
	if team.ID == uuid.Nil {
		team.ID = uuid.New()
	}
	team.CreatedAt = time.Now().UTC()

	query := `INSERT INTO teams (id, competition_id, name, captain_id, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.exec.ExecContext(ctx, query, team.ID, team.CompetitionID, team.Name, team.CaptainID, team.CreatedAt)
	if err != nil {
		if mapped := constraintError(err, teamConstraintErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	query := `SELECT id, competition_id, name, captain_id, created_at FROM teams WHERE id = $1`
	var team models.Team
	err := r.exec.QueryRowContext(ctx, query, id).Scan(&team.ID, &team.CompetitionID, &team.Name, &team.CaptainID, &team.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team by id %s: %w", id, err)
	}
	return &team, nil
}

func (r *postgresTeamRepository) ListByCompetition(ctx context.Context, competitionID uuid.UUID) ([]*models.Team, error) {
	query := `
		SELECT id, competition_id, name, captain_id, created_at
		FROM teams WHERE competition_id = $1 ORDER BY name ASC`
	rows, err := r.exec.QueryContext(ctx, query, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for competition %s: %w", competitionID, err)
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		var team models.Team
		if err := rows.Scan(&team.ID, &team.CompetitionID, &team.Name, &team.CaptainID, &team.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, &team)
	}
	return teams, rows.Err()
}

// Delete removes the team; its players go with it (ON DELETE CASCADE).
func (r *postgresTeamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.exec.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}
