package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type CompetitionRepository interface {
	Create(ctx context.Context, competition *models.Competition) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Competition, error)
	GetByJoinCode(ctx context.Context, joinCode string) (*models.Competition, error)
	List(ctx context.Context, filter models.CompetitionFilter) ([]*models.Competition, error)
	// Update rewrites the editable fields. Organizer and status are never touched.
	Update(ctx context.Context, competition *models.Competition) error
	// UpdateStatus is a compare-and-set: it only applies while the stored status is still from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.CompetitionStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListForStatusSweep(ctx context.Context, now time.Time) ([]*models.Competition, error)
}

var competitionConstraintErrors = map[string]error{
	"competitions_join_code_key":     ErrJoinCodeConflict,
	"competitions_organizer_id_fkey": ErrInvalidReference,
}

const competitionColumns = `id, name, join_code, organizer_id, category, description, location,
	max_participants, registration_deadline, start_time, end_time, status, rules, created_at, updated_at`

type postgresCompetitionRepository struct {
	exec SQLExecutor
}

func NewPostgresCompetitionRepository(db *sql.DB) CompetitionRepository {
	return &postgresCompetitionRepository{exec: db}
}

func (r *postgresCompetitionRepository) Create(ctx context.Context, c *models.Competition) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	query := `
		INSERT INTO competitions (` + competitionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.exec.ExecContext(ctx, query,
		c.ID, c.Name, c.JoinCode, c.OrganizerID, c.Category, c.Description, c.Location,
		c.MaxParticipants, c.RegistrationDeadline, c.StartTime, c.EndTime, c.Status,
		jsonParam(c.Rules), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if mapped := constraintError(err, competitionConstraintErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create competition: %w", err)
	}
	return nil
}

func (r *postgresCompetitionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Competition, error) {
	query := `SELECT ` + competitionColumns + ` FROM competitions WHERE id = $1`
	return scanCompetition(r.exec.QueryRowContext(ctx, query, id))
}

func (r *postgresCompetitionRepository) GetByJoinCode(ctx context.Context, joinCode string) (*models.Competition, error) {
	query := `SELECT ` + competitionColumns + ` FROM competitions WHERE join_code = $1`
	return scanCompetition(r.exec.QueryRowContext(ctx, query, joinCode))
}

func (r *postgresCompetitionRepository) List(ctx context.Context, filter models.CompetitionFilter) ([]*models.Competition, error) {
	var query strings.Builder
	query.WriteString(`SELECT ` + competitionColumns + ` FROM competitions WHERE 1=1`)

	args := []interface{}{}
	argID := 1

	if filter.Status != nil {
		query.WriteString(fmt.Sprintf(" AND status = $%d", argID))
		args = append(args, *filter.Status)
		argID++
	}
	if filter.Category != nil {
		query.WriteString(fmt.Sprintf(" AND category = $%d", argID))
		args = append(args, *filter.Category)
		argID++
	}
	if filter.OrganizerID != nil {
		query.WriteString(fmt.Sprintf(" AND organizer_id = $%d", argID))
		args = append(args, *filter.OrganizerID)
		argID++
	}

	query.WriteString(" ORDER BY start_time DESC, created_at DESC")

	if filter.Limit > 0 {
		query.WriteString(fmt.Sprintf(" LIMIT $%d", argID))
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query.WriteString(fmt.Sprintf(" OFFSET $%d", argID))
		args = append(args, filter.Offset)
	}

	return r.queryCompetitions(ctx, query.String(), args...)
}

func (r *postgresCompetitionRepository) Update(ctx context.Context, c *models.Competition) error {
	c.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE competitions SET
			name = $1,
			category = $2,
			description = $3,
			location = $4,
			max_participants = $5,
			registration_deadline = $6,
			start_time = $7,
			end_time = $8,
			rules = $9,
			updated_at = $10
		WHERE id = $11`

	result, err := r.exec.ExecContext(ctx, query,
		c.Name, c.Category, c.Description, c.Location, c.MaxParticipants,
		c.RegistrationDeadline, c.StartTime, c.EndTime, jsonParam(c.Rules), c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update competition: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

func (r *postgresCompetitionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.CompetitionStatus) error {
	query := `UPDATE competitions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	result, err := r.exec.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update competition status: %w", err)
	}
	return checkAffectedRows(result, ErrStatusConflict)
}

func (r *postgresCompetitionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.exec.ExecContext(ctx, `DELETE FROM competitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete competition: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

// ListForStatusSweep returns competitions for which at least one time rule may fire at now.
// The lifecycle rules make the final decision.
func (r *postgresCompetitionRepository) ListForStatusSweep(ctx context.Context, now time.Time) ([]*models.Competition, error) {
	query := `
		SELECT ` + competitionColumns + `
		FROM competitions
		WHERE (status = $1 AND (start_time <= $4 OR registration_deadline <= $4))
		   OR (status = $2 AND start_time <= $4)
		   OR (status = $3 AND end_time <= $4)
		ORDER BY start_time ASC`

	return r.queryCompetitions(ctx, query,
		models.StatusOpen,       // $1
		models.StatusClosed,     // $2
		models.StatusInProgress, // $3
		now,                     // $4
	)
}

func (r *postgresCompetitionRepository) queryCompetitions(ctx context.Context, query string, args ...interface{}) ([]*models.Competition, error) {
	rows, err := r.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query competitions: %w", err)
	}
	defer rows.Close()

	competitions := make([]*models.Competition, 0)
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, err
		}
		competitions = append(competitions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating competition rows: %w", err)
	}
	return competitions, nil
}

func scanCompetition(row rowScanner) (*models.Competition, error) {
	var (
		c        models.Competition
		deadline sql.NullTime
		rules    []byte
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.JoinCode, &c.OrganizerID, &c.Category, &c.Description, &c.Location,
		&c.MaxParticipants, &deadline, &c.StartTime, &c.EndTime, &c.Status, &rules,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("failed to scan competition: %w", err)
	}
	if deadline.Valid {
		t := deadline.Time
		c.RegistrationDeadline = &t
	}
	if len(rules) > 0 {
		c.Rules = json.RawMessage(rules)
	}
	return &c, nil
}

// jsonParam passes JSON to a jsonb column as text; empty payloads are stored as NULL.
func jsonParam(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
