package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ParticipationStatus string

const (
	ParticipationPending  ParticipationStatus = "pending"
	ParticipationApproved ParticipationStatus = "approved"
	ParticipationRejected ParticipationStatus = "rejected"
)

func (s ParticipationStatus) Valid() bool {
	return s == ParticipationPending || s == ParticipationApproved || s == ParticipationRejected
}

// Active participations count against the one-per-user-per-competition rule.
func (s ParticipationStatus) Active() bool {
	return s == ParticipationPending || s == ParticipationApproved
}

// Participation is a user's (and optionally a team's) registration for a competition.
type Participation struct {
	ID            uuid.UUID           `json:"id" db:"id"`
	CompetitionID uuid.UUID           `json:"competitionId" db:"competition_id"`
	UserID        uuid.UUID           `json:"userId" db:"user_id"`
	Status        ParticipationStatus `json:"status" db:"status"`
	TeamData      json.RawMessage     `json:"teamData,omitempty" db:"team_data"`
	TeamID        *uuid.UUID          `json:"teamId,omitempty" db:"team_id"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time           `json:"updatedAt" db:"updated_at"`

	Team *Team `json:"team,omitempty" db:"-"`
}

// ParticipationEventType names what happened to a participation.
type ParticipationEventType string

const (
	ParticipationCreated   ParticipationEventType = "participation.created"
	ParticipationReviewed  ParticipationEventType = "participation.reviewed"
	ParticipationWithdrawn ParticipationEventType = "participation.withdrawn"
)

// ParticipationEvent is handed to notifiers after a participation write.
type ParticipationEvent struct {
	Type            ParticipationEventType `json:"type"`
	ParticipationID uuid.UUID              `json:"participationId"`
	CompetitionID   uuid.UUID              `json:"competitionId"`
	UserID          uuid.UUID              `json:"userId"`
	Status          ParticipationStatus    `json:"status"`
	Timestamp       time.Time              `json:"timestamp"`

	// Filled in when known; email notifiers skip events without a recipient.
	CompetitionName string `json:"competitionName,omitempty"`
	UserEmail       string `json:"-"`
}
