package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/repositories"
)

func parseID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func canManageCompetition(actor models.Actor, c *models.Competition) bool {
	return actor.IsAdmin() || (actor.UserID != uuid.Nil && actor.UserID == c.OrganizerID)
}

func hasRole(actor models.Actor, roles ...models.UserRole) bool {
	for _, role := range roles {
		if actor.Role == role {
			return true
		}
	}
	return false
}

// undoLog collects compensating steps for multi-step writes on stores without
// transactions. A nil log ignores pushes, which is what the transactional path uses.
type undoLog struct {
	steps []undoStep
}

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

func (u *undoLog) push(name string, fn func(ctx context.Context) error) {
	if u == nil {
		return
	}
	u.steps = append(u.steps, undoStep{name: name, fn: fn})
}

// run applies the steps newest first. Already-removed entities count as undone.
func (u *undoLog) run(ctx context.Context, logger *slog.Logger) {
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.fn(ctx); err != nil && !isRepoNotFound(err) {
			logger.ErrorContext(ctx, "Compensation step failed", slog.String("step", step.name), slog.Any("error", err))
		}
	}
}

// writeSteps runs fn atomically when the store supports transactions. Otherwise fn runs
// step by step against the store and the compensations it registered are applied on failure.
func writeSteps(ctx context.Context, store repositories.Store, logger *slog.Logger,
	fn func(ctx context.Context, tx repositories.Store, undo *undoLog) error,
) error {
	if store.SupportsTransactions() {
		return store.WithinTx(ctx, func(ctx context.Context, tx repositories.Store) error {
			return fn(ctx, tx, nil)
		})
	}
	undo := &undoLog{}
	if err := fn(ctx, store, undo); err != nil {
		undo.run(context.WithoutCancel(ctx), logger)
		return err
	}
	return nil
}

func isRepoNotFound(err error) bool {
	return errors.Is(err, repositories.ErrUserNotFound) ||
		errors.Is(err, repositories.ErrCompetitionNotFound) ||
		errors.Is(err, repositories.ErrParticipationNotFound) ||
		errors.Is(err, repositories.ErrTeamNotFound) ||
		errors.Is(err, repositories.ErrPlayerNotFound)
}

func loadCompetition(ctx context.Context, store repositories.Store, id uuid.UUID) (*models.Competition, error) {
	c, err := store.Competitions().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, persistenceError("get competition", err)
	}
	return c, nil
}

func userEmail(ctx context.Context, store repositories.Store, id uuid.UUID) string {
	u, err := store.Users().GetByID(ctx, id)
	if err != nil {
		return ""
	}
	return u.Email
}
