package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type ParticipationRepository interface {
	// Create fails with ErrParticipationConflict while another non-rejected
	// participation exists for the same (competition, user) pair.
	Create(ctx context.Context, participation *models.Participation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participation, error)
	FindActive(ctx context.Context, competitionID, userID uuid.UUID) (*models.Participation, error)
	ListByCompetition(ctx context.Context, competitionID uuid.UUID, status *models.ParticipationStatus) ([]*models.Participation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Participation, error)
	Update(ctx context.Context, participation *models.Participation) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context, competitionID uuid.UUID) (map[models.ParticipationStatus]int, error)
}

var participationConstraintErrors = map[string]error{
	"participations_active_unique":       ErrParticipationConflict,
	"participations_competition_id_fkey": ErrCompetitionNotFound,
	"participations_user_id_fkey":        ErrUserNotFound,
	"participations_team_id_fkey":        ErrTeamNotFound,
}

const participationColumns = `id, competition_id, user_id, status, team_data, team_id, created_at, updated_at`

type postgresParticipationRepository struct {
	exec SQLExecutor
}

func NewPostgresParticipationRepository(db *sql.DB) ParticipationRepository {
	return &postgresParticipationRepository{exec: db}
}

func (r *postgresParticipationRepository) Create(ctx context.Context, p *models.Participation) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	query := `
		INSERT INTO participations (` + participationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec.ExecContext(ctx, query,
		p.ID, p.CompetitionID, p.UserID, p.Status, jsonParam(p.TeamData), p.TeamID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if mapped := constraintError(err, participationConstraintErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create participation: %w", err)
	}
	return nil
}

func (r *postgresParticipationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations WHERE id = $1`
	return scanParticipation(r.exec.QueryRowContext(ctx, query, id))
}

func (r *postgresParticipationRepository) FindActive(ctx context.Context, competitionID, userID uuid.UUID) (*models.Participation, error) {
	query := `
		SELECT ` + participationColumns + `
		FROM participations
		WHERE competition_id = $1 AND user_id = $2 AND status <> $3`
	return scanParticipation(r.exec.QueryRowContext(ctx, query, competitionID, userID, models.ParticipationRejected))
}

func (r *postgresParticipationRepository) ListByCompetition(ctx context.Context, competitionID uuid.UUID, status *models.ParticipationStatus) ([]*models.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations WHERE competition_id = $1`
	args := []interface{}{competitionID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at ASC`
	return r.queryParticipations(ctx, query, args...)
}

func (r *postgresParticipationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Participation, error) {
	query := `SELECT ` + participationColumns + ` FROM participations WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryParticipations(ctx, query, userID)
}

func (r *postgresParticipationRepository) Update(ctx context.Context, p *models.Participation) error {
	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE participations SET status = $1, team_data = $2, team_id = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.exec.ExecContext(ctx, query, p.Status, jsonParam(p.TeamData), p.TeamID, p.UpdatedAt, p.ID)
	if err != nil {
		if mapped := constraintError(err, participationConstraintErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to update participation: %w", err)
	}
	return checkAffectedRows(result, ErrParticipationNotFound)
}

func (r *postgresParticipationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.exec.ExecContext(ctx, `DELETE FROM participations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete participation: %w", err)
	}
	return checkAffectedRows(result, ErrParticipationNotFound)
}

func (r *postgresParticipationRepository) CountByStatus(ctx context.Context, competitionID uuid.UUID) (map[models.ParticipationStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM participations WHERE competition_id = $1 GROUP BY status`
	rows, err := r.exec.QueryContext(ctx, query, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count participations: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ParticipationStatus]int)
	for rows.Next() {
		var (
			status models.ParticipationStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan participation count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *postgresParticipationRepository) queryParticipations(ctx context.Context, query string, args ...interface{}) ([]*models.Participation, error) {
	rows, err := r.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query participations: %w", err)
	}
	defer rows.Close()

	participations := make([]*models.Participation, 0)
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		participations = append(participations, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participation rows: %w", err)
	}
	return participations, nil
}

func scanParticipation(row rowScanner) (*models.Participation, error) {
	var (
		p        models.Participation
		teamData []byte
		teamID   uuid.NullUUID
	)
	err := row.Scan(&p.ID, &p.CompetitionID, &p.UserID, &p.Status, &teamData, &teamID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipationNotFound
		}
		return nil, fmt.Errorf("failed to scan participation: %w", err)
	}
	if len(teamData) > 0 {
		p.TeamData = json.RawMessage(teamData)
	}
	if teamID.Valid {
		id := teamID.UUID
		p.TeamID = &id
	}
	return &p, nil
}
