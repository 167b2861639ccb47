package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type TransitionRepository interface {
	Create(ctx context.Context, transition *models.StatusTransition) error
	ListByCompetition(ctx context.Context, competitionID uuid.UUID) ([]*models.StatusTransition, error)
}

type postgresTransitionRepository struct {
	exec SQLExecutor
}

func NewPostgresTransitionRepository(db *sql.DB) TransitionRepository {
	return &postgresTransitionRepository{exec: db}
}

func (r *postgresTransitionRepository) Create(ctx context.Context, t *models.StatusTransition) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO status_transitions (id, competition_id, old_status, new_status, timestamp, source, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.exec.ExecContext(ctx, query,
		t.ID, t.CompetitionID, t.OldStatus, t.NewStatus, t.Timestamp, t.Source, t.ActorID,
	)
	if err != nil {
		if mapped := constraintError(err, map[string]error{
			"status_transitions_competition_id_fkey": ErrCompetitionNotFound,
		}); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create status transition: %w", err)
	}
	return nil
}

func (r *postgresTransitionRepository) ListByCompetition(ctx context.Context, competitionID uuid.UUID) ([]*models.StatusTransition, error) {
	query := `
		SELECT id, competition_id, old_status, new_status, timestamp, source, actor_id
		FROM status_transitions WHERE competition_id = $1 ORDER BY timestamp ASC`
	rows, err := r.exec.QueryContext(ctx, query, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status transitions: %w", err)
	}
	defer rows.Close()

	transitions := make([]*models.StatusTransition, 0)
	for rows.Next() {
		var (
			t     models.StatusTransition
			actor uuid.NullUUID
		)
		if err := rows.Scan(&t.ID, &t.CompetitionID, &t.OldStatus, &t.NewStatus, &t.Timestamp, &t.Source, &actor); err != nil {
			return nil, fmt.Errorf("failed to scan status transition: %w", err)
		}
		if actor.Valid {
			id := actor.UUID
			t.ActorID = &id
		}
		transitions = append(transitions, &t)
	}
	return transitions, rows.Err()
}
