package models

import (
	"time"

	"github.com/google/uuid"
)

// TransitionSource tells who caused a status change.
type TransitionSource string

const (
	TransitionSourceSweep  TransitionSource = "sweep"
	TransitionSourceManual TransitionSource = "manual"
)

// StatusTransition is the persisted record of one competition status change.
type StatusTransition struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	CompetitionID uuid.UUID         `json:"competitionId" db:"competition_id"`
	OldStatus     CompetitionStatus `json:"oldStatus" db:"old_status"`
	NewStatus     CompetitionStatus `json:"newStatus" db:"new_status"`
	Timestamp     time.Time         `json:"timestamp" db:"timestamp"`
	Source        TransitionSource  `json:"source" db:"source"`
	ActorID       *uuid.UUID        `json:"actorId,omitempty" db:"actor_id"`
}

// TransitionEvent is handed to notifiers after a status change was persisted.
type TransitionEvent struct {
	Transition      StatusTransition `json:"transition"`
	CompetitionName string           `json:"competitionName"`
	OrganizerEmail  string           `json:"-"`
}
