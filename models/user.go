package models

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	RoleAdmin       UserRole = "ADMIN"
	RoleOrganizer   UserRole = "ORGANIZER"
	RoleParticipant UserRole = "PARTICIPANT"
)

func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleOrganizer || r == RoleParticipant
}

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"firstName" db:"first_name"`
	LastName     string    `json:"lastName" db:"last_name"`
	PhoneNumber  *string   `json:"phoneNumber,omitempty" db:"phone_number"`
	Country      *string   `json:"country,omitempty" db:"country"`
	Address      *string   `json:"address,omitempty" db:"address"`
	City         *string   `json:"city,omitempty" db:"city"`
	Commune      *string   `json:"commune,omitempty" db:"commune"`
	Bio          *string   `json:"bio,omitempty" db:"bio"`
	Category     *string   `json:"category,omitempty" db:"category"`
	Photo        *string   `json:"photo,omitempty" db:"photo"`
	Role         UserRole  `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`

	PhotoURL *string `json:"photoUrl,omitempty" db:"-"`
}

// Actor is the identity the auth layer attaches to a request. The core trusts it as is.
type Actor struct {
	UserID uuid.UUID
	Role   UserRole
}

// SystemActor runs the automatic status sweep.
var SystemActor = Actor{Role: RoleAdmin}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
