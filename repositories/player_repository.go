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

type PlayerRepository interface {
	Create(ctx context.Context, player *models.Player) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListByTeam(ctx context.Context, teamID uuid.UUID) ([]*models.Player, error)
	Update(ctx context.Context, player *models.Player) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByTeam(ctx context.Context, teamID uuid.UUID) error
}

var playerConstraintErrors = map[string]error{
	"players_team_id_fkey": ErrTeamNotFound,
}

const playerColumns = `id, team_id, first_name, last_name, position, jersey_number, birth_date, created_at, updated_at`

type postgresPlayerRepository struct {
	exec SQLExecutor
}

func NewPostgresPlayerRepository(db *sql.DB) PlayerRepository {
	return &postgresPlayerRepository{exec: db}
}

func (r *postgresPlayerRepository) Create(ctx context.Context, p *models.Player) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	query := `INSERT INTO players (` + playerColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.exec.ExecContext(ctx, query,
		p.ID, p.TeamID, p.FirstName, p.LastName, p.Position, p.JerseyNumber, p.BirthDate, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if mapped := constraintError(err, playerConstraintErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (r *postgresPlayerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`
	return scanPlayer(r.exec.QueryRowContext(ctx, query, id))
}

func (r *postgresPlayerRepository) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE team_id = $1 ORDER BY last_name, first_name`
	rows, err := r.exec.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players for team %s: %w", teamID, err)
	}
	defer rows.Close()

	players := make([]*models.Player, 0)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *postgresPlayerRepository) Update(ctx context.Context, p *models.Player) error {
	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE players SET first_name = $1, last_name = $2, position = $3, jersey_number = $4,
			birth_date = $5, updated_at = $6
		WHERE id = $7`
	result, err := r.exec.ExecContext(ctx, query,
		p.FirstName, p.LastName, p.Position, p.JerseyNumber, p.BirthDate, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}
	return checkAffectedRows(result, ErrPlayerNotFound)
}

func (r *postgresPlayerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.exec.ExecContext(ctx, `DELETE FROM players WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	return checkAffectedRows(result, ErrPlayerNotFound)
}

func (r *postgresPlayerRepository) DeleteByTeam(ctx context.Context, teamID uuid.UUID) error {
	if _, err := r.exec.ExecContext(ctx, `DELETE FROM players WHERE team_id = $1`, teamID); err != nil {
		return fmt.Errorf("failed to delete players of team %s: %w", teamID, err)
	}
	return nil
}

func scanPlayer(row rowScanner) (*models.Player, error) {
	var (
		p        models.Player
		position sql.NullString
		jersey   sql.NullInt64
		birth    sql.NullTime
	)
	err := row.Scan(&p.ID, &p.TeamID, &p.FirstName, &p.LastName, &position, &jersey, &birth, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to scan player: %w", err)
	}
	if position.Valid {
		p.Position = &position.String
	}
	if jersey.Valid {
		n := int(jersey.Int64)
		p.JerseyNumber = &n
	}
	if birth.Valid {
		p.BirthDate = &birth.Time
	}
	return &p, nil
}
