package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CompetitionStatus is the lifecycle status of a competition.
type CompetitionStatus string

const (
	StatusDraft      CompetitionStatus = "DRAFT"
	StatusOpen       CompetitionStatus = "OPEN"
	StatusClosed     CompetitionStatus = "CLOSED"
	StatusInProgress CompetitionStatus = "IN_PROGRESS"
	StatusCompleted  CompetitionStatus = "COMPLETED"
	StatusCancelled  CompetitionStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s CompetitionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusOpen, StatusClosed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses never change again, neither by the sweep nor by an override.
func (s CompetitionStatus) Terminal() bool {
	return s == StatusCancelled
}

// Competition is an organized event with a lifecycle status and a set of participations.
type Competition struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	Name                 string            `json:"name" db:"name"`
	JoinCode             string            `json:"joinCode" db:"join_code"`
	OrganizerID          uuid.UUID         `json:"organizerId" db:"organizer_id"`
	Category             string            `json:"category" db:"category"`
	Description          *string           `json:"description,omitempty" db:"description"`
	Location             *string           `json:"location,omitempty" db:"location"`
	MaxParticipants      int               `json:"maxParticipants" db:"max_participants"`
	RegistrationDeadline *time.Time        `json:"registrationDeadline,omitempty" db:"registration_deadline"`
	StartTime            time.Time         `json:"startTime" db:"start_time"`
	EndTime              time.Time         `json:"endTime" db:"end_time"`
	Status               CompetitionStatus `json:"status" db:"status"`
	Rules                json.RawMessage   `json:"rules,omitempty" db:"rules"`
	CreatedAt            time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time         `json:"updatedAt" db:"updated_at"`

	Stats *CompetitionStats `json:"stats,omitempty" db:"-"`
}

// CompetitionFilter narrows competition listings. Nil fields are not applied.
type CompetitionFilter struct {
	Status      *CompetitionStatus
	Category    *string
	OrganizerID *uuid.UUID
	Limit       int
	Offset      int
}

// CompetitionStats feeds dashboards; the zero value is a valid answer.
type CompetitionStats struct {
	ParticipantCount int `json:"participantCount"`
	PendingCount     int `json:"pendingCount"`
}
