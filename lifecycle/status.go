// Package lifecycle derives competition statuses from their schedule.
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

// Transition is one computed status change. It carries no timestamp; the caller
// stamps it when the change is persisted.
type Transition struct {
	CompetitionID uuid.UUID                `json:"competitionId"`
	OldStatus     models.CompetitionStatus `json:"oldStatus"`
	NewStatus     models.CompetitionStatus `json:"newStatus"`
}

// order is the forward direction of the automatic lifecycle. CANCELLED sits outside it.
var order = map[models.CompetitionStatus]int{
	models.StatusDraft:      0,
	models.StatusOpen:       1,
	models.StatusClosed:     2,
	models.StatusInProgress: 3,
	models.StatusCompleted:  4,
}

// Rank returns the position of s in the forward lifecycle, or -1 for CANCELLED and unknown values.
func Rank(s models.CompetitionStatus) int {
	if r, ok := order[s]; ok {
		return r
	}
	return -1
}

// Next returns the status c should have at now according to the time rules.
// Rules are chained, so a competition several steps overdue lands on the furthest
// reachable status. DRAFT, COMPLETED and CANCELLED are returned unchanged.
func Next(c *models.Competition, now time.Time) models.CompetitionStatus {
	status := c.Status
	for {
		next := step(c, status, now)
		if next == status {
			return status
		}
		status = next
	}
}

func step(c *models.Competition, status models.CompetitionStatus, now time.Time) models.CompetitionStatus {
	switch status {
	case models.StatusOpen:
		if registrationClosed(c, now) {
			return models.StatusClosed
		}
	case models.StatusClosed:
		if reached(now, c.StartTime) {
			return models.StatusInProgress
		}
	case models.StatusInProgress:
		if reached(now, c.EndTime) {
			return models.StatusCompleted
		}
	}
	return status
}

// registrationClosed falls back to the start time when no deadline is set,
// which makes CLOSED and IN_PROGRESS happen at the same instant.
func registrationClosed(c *models.Competition, now time.Time) bool {
	if c.RegistrationDeadline != nil && !c.RegistrationDeadline.IsZero() {
		return reached(now, *c.RegistrationDeadline)
	}
	return reached(now, c.StartTime)
}

// reached treats an unset instant as never reached.
func reached(now, at time.Time) bool {
	return !at.IsZero() && !now.Before(at)
}

// ComputeStatuses evaluates every competition against one snapshot time and
// returns the changes to apply, in input order. Unchanged competitions are omitted,
// so running it again after the changes are stored yields nothing.
func ComputeStatuses(now time.Time, competitions []*models.Competition) []Transition {
	transitions := make([]Transition, 0)
	for _, c := range competitions {
		if c == nil {
			continue
		}
		next := Next(c, now)
		if next == c.Status {
			continue
		}
		transitions = append(transitions, Transition{
			CompetitionID: c.ID,
			OldStatus:     c.Status,
			NewStatus:     next,
		})
	}
	return transitions
}

// CanOverride reports whether an organizer or admin may set to directly on a
// competition currently in from. Time rules do not apply; CANCELLED stays terminal.
func CanOverride(from, to models.CompetitionStatus) bool {
	if !to.Valid() || from == to {
		return false
	}
	return !from.Terminal()
}
