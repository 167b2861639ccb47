package models

import (
	"time"

	"github.com/google/uuid"
)

// Team belongs to one competition; only its captain may change the roster.
type Team struct {
	ID            uuid.UUID `json:"id" db:"id"`
	CompetitionID uuid.UUID `json:"competitionId" db:"competition_id"`
	Name          string    `json:"name" db:"name"`
	CaptainID     uuid.UUID `json:"captainId" db:"captain_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`

	Players []Player `json:"players,omitempty" db:"-"`
}

// Player is a roster entry of a team. Players are not user accounts.
type Player struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	TeamID       uuid.UUID  `json:"teamId" db:"team_id"`
	FirstName    string     `json:"firstName" db:"first_name"`
	LastName     string     `json:"lastName" db:"last_name"`
	Position     *string    `json:"position,omitempty" db:"position"`
	JerseyNumber *int       `json:"jerseyNumber,omitempty" db:"jersey_number"`
	BirthDate    *time.Time `json:"birthDate,omitempty" db:"birth_date"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// TeamData is the optional team payload submitted with a participation.
type TeamData struct {
	Name    string        `json:"name"`
	Players []PlayerInput `json:"players"`
}

type PlayerInput struct {
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Position     *string    `json:"position,omitempty"`
	JerseyNumber *int       `json:"jerseyNumber,omitempty"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
}
