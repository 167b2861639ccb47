package services

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by a service wraps exactly one of them.
var (
	ErrValidation      = errors.New("validation failed")
	ErrDuplicate       = errors.New("already exists")
	ErrForbidden       = errors.New("operation not allowed for the current user")
	ErrNotFound        = errors.New("requested resource not found")
	ErrPersistence     = errors.New("storage operation failed")
	ErrUnauthenticated = errors.New("authentication failed")
)

var (
	ErrInvalidID               = fmt.Errorf("%w: malformed identifier", ErrValidation)
	ErrInvalidEmail            = fmt.Errorf("%w: invalid email address", ErrValidation)
	ErrInvalidPhone            = fmt.Errorf("%w: invalid phone number for the given country", ErrValidation)
	ErrInvalidCountry          = fmt.Errorf("%w: country must be an ISO 3166 alpha-2 code", ErrValidation)
	ErrCountryRequired         = fmt.Errorf("%w: country is required with a phone number", ErrValidation)
	ErrPasswordTooShort        = fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	ErrPasswordTooLong         = fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, maxPasswordLength)
	ErrInvalidRole             = fmt.Errorf("%w: role must be PARTICIPANT or ORGANIZER", ErrValidation)
	ErrInvalidDateRange        = fmt.Errorf("%w: end time must be after start time", ErrValidation)
	ErrInvalidDeadline         = fmt.Errorf("%w: registration deadline must not be after start time", ErrValidation)
	ErrInvalidCapacity         = fmt.Errorf("%w: max participants must not be negative", ErrValidation)
	ErrInvalidRules            = fmt.Errorf("%w: rules must be valid JSON", ErrValidation)
	ErrInvalidTeamData         = fmt.Errorf("%w: invalid team data", ErrValidation)
	ErrInvalidStatus           = fmt.Errorf("%w: invalid status", ErrValidation)
	ErrInvalidStatusTransition = fmt.Errorf("%w: status transition not allowed", ErrValidation)
	ErrRegistrationNotOpen     = fmt.Errorf("%w: registration is not open", ErrValidation)
	ErrCompetitionFull         = fmt.Errorf("%w: competition has reached its participant limit", ErrValidation)
	ErrCompetitionNotDeletable = fmt.Errorf("%w: only DRAFT or CANCELLED competitions can be deleted", ErrValidation)
	ErrNotWithdrawable         = fmt.Errorf("%w: rejected participations cannot be withdrawn", ErrValidation)
	ErrPhotoUnavailable        = fmt.Errorf("%w: photo storage is not configured", ErrValidation)
	ErrInvalidPhoto            = fmt.Errorf("%w: photo must be a JPEG, PNG or WebP image", ErrValidation)

	ErrDuplicateEmail         = fmt.Errorf("%w: email address is already in use", ErrDuplicate)
	ErrDuplicatePhone         = fmt.Errorf("%w: phone number is already in use for this country", ErrDuplicate)
	ErrDuplicateParticipation = fmt.Errorf("%w: user already has an active participation in this competition", ErrDuplicate)

	ErrNotOrganizer = fmt.Errorf("%w: only the competition organizer or an admin can do this", ErrForbidden)
	ErrNotCaptain   = fmt.Errorf("%w: only the team captain can change the roster", ErrForbidden)
	ErrRoleRequired = fmt.Errorf("%w: role not allowed", ErrForbidden)

	ErrUserNotFound          = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrCompetitionNotFound   = fmt.Errorf("%w: competition not found", ErrNotFound)
	ErrParticipationNotFound = fmt.Errorf("%w: participation not found", ErrNotFound)
	ErrTeamNotFound          = fmt.Errorf("%w: team not found", ErrNotFound)
	ErrPlayerNotFound        = fmt.Errorf("%w: player not found", ErrNotFound)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
)

// MissingFieldsError lists the required fields absent from an input, in a fixed order.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldsError) Unwrap() error { return ErrValidation }

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
