package repositories

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserEmailConflict     = errors.New("user email conflict")
	ErrUserPhoneConflict     = errors.New("user phone number conflict")
	ErrCompetitionNotFound   = errors.New("competition not found")
	ErrJoinCodeConflict      = errors.New("competition join code conflict")
	ErrStatusConflict        = errors.New("competition status changed concurrently")
	ErrParticipationNotFound = errors.New("participation not found")
	ErrParticipationConflict = errors.New("participation conflict: user already registered for this competition")
	ErrTeamNotFound          = errors.New("team not found")
	ErrPlayerNotFound        = errors.New("player not found")
	ErrInvalidReference      = errors.New("referenced entity does not exist")
)

// Store groups the per-entity repositories of one storage backend.
//
// SupportsTransactions reports whether WithinTx is atomic. Backends without
// multi-document transactions run fn directly against themselves; callers doing
// multi-step writes must then compensate on failure.
type Store interface {
	Users() UserRepository
	Competitions() CompetitionRepository
	Participations() ParticipationRepository
	Teams() TeamRepository
	Players() PlayerRepository
	Transitions() TransitionRepository

	SupportsTransactions() bool
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
