package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

type postgresStore struct {
	db   *sql.DB
	exec SQLExecutor
}

// NewPostgresStore returns a Store whose WithinTx runs in a database transaction.
func NewPostgresStore(db *sql.DB) Store {
	return &postgresStore{db: db, exec: db}
}

func (s *postgresStore) Users() UserRepository { return &postgresUserRepository{exec: s.exec} }

func (s *postgresStore) Competitions() CompetitionRepository {
	return &postgresCompetitionRepository{exec: s.exec}
}

func (s *postgresStore) Participations() ParticipationRepository {
	return &postgresParticipationRepository{exec: s.exec}
}

func (s *postgresStore) Teams() TeamRepository { return &postgresTeamRepository{exec: s.exec} }

func (s *postgresStore) Players() PlayerRepository { return &postgresPlayerRepository{exec: s.exec} }

func (s *postgresStore) Transitions() TransitionRepository {
	return &postgresTransitionRepository{exec: s.exec}
}

func (s *postgresStore) SupportsTransactions() bool { return true }

func (s *postgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) (err error) {
	if _, inTx := s.exec.(*sql.Tx); inTx {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &postgresStore{db: s.db, exec: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to roll back: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
