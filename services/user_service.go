package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/crypto/bcrypt"

	"github.com/starkspartacus/ecompetition-sub002/models"
	"github.com/starkspartacus/ecompetition-sub002/repositories"
	"github.com/starkspartacus/ecompetition-sub002/storage"
)

const (
	minPasswordLength = 8
	// bcrypt only hashes the first 72 bytes and rejects longer input.
	maxPasswordLength = 72
)

// updatableUserFields is the allow-list applied by UpdateUser. Other keys are dropped.
var updatableUserFields = []string{
	"firstName", "lastName", "phoneNumber", "country", "address",
	"city", "commune", "bio", "category", "photo",
}

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type UserService interface {
	RegisterUser(ctx context.Context, input RegisterUserInput) (*models.User, error)
	Login(ctx context.Context, credentials models.Credentials) (*models.User, error)
	GetUser(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.User, error)
	UpdateUser(ctx context.Context, actor models.Actor, id uuid.UUID, fields map[string]interface{}) (*models.User, error)
	UploadPhoto(ctx context.Context, actor models.Actor, id uuid.UUID, contentType string, body io.Reader) (*models.User, error)
}

type RegisterUserInput struct {
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	FirstName   string          `json:"firstName"`
	LastName    string          `json:"lastName"`
	PhoneNumber *string         `json:"phoneNumber,omitempty"`
	Country     *string         `json:"country,omitempty"`
	Address     *string         `json:"address,omitempty"`
	City        *string         `json:"city,omitempty"`
	Commune     *string         `json:"commune,omitempty"`
	Bio         *string         `json:"bio,omitempty"`
	Category    *string         `json:"category,omitempty"`
	Role        models.UserRole `json:"role,omitempty"`
}

type userService struct {
	store    repositories.Store
	uploader storage.FileUploader
	logger   *slog.Logger
}

// NewUserService creates the user service. uploader may be nil, in which case photo
// uploads are rejected.
func NewUserService(store repositories.Store, uploader storage.FileUploader, logger *slog.Logger) UserService {
	return &userService{store: store, uploader: uploader, logger: logger}
}

func (s *userService) RegisterUser(ctx context.Context, input RegisterUserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)

	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if input.Password == "" {
		missing = append(missing, "password")
	}
	if firstName == "" {
		missing = append(missing, "firstName")
	}
	if lastName == "" {
		missing = append(missing, "lastName")
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if len(input.Password) > maxPasswordLength {
		return nil, ErrPasswordTooLong
	}

	role := input.Role
	switch role {
	case "":
		role = models.RoleParticipant
	case models.RoleParticipant, models.RoleOrganizer:
	default:
		return nil, ErrInvalidRole
	}

	phone, country, err := normalizePhone(input.PhoneNumber, input.Country)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, persistenceError("hash password", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    firstName,
		LastName:     lastName,
		PhoneNumber:  phone,
		Country:      country,
		Address:      trimmedOrNil(input.Address),
		City:         trimmedOrNil(input.City),
		Commune:      trimmedOrNil(input.Commune),
		Bio:          trimmedOrNil(input.Bio),
		Category:     trimmedOrNil(input.Category),
		Role:         role,
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, mapUserError("create user", err)
	}

	s.logger.InfoContext(ctx, "User registered",
		slog.String("user_id", user.ID.String()),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

func (s *userService) Login(ctx context.Context, credentials models.Credentials) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(credentials.Email))
	if email == "" || credentials.Password == "" || len(credentials.Password) > maxPasswordLength {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, persistenceError("get user by email", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credentials.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, persistenceError("compare password hash", err)
	}
	return user, nil
}

func (s *userService) GetUser(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.User, error) {
	if actor.UserID != id && !actor.IsAdmin() {
		return nil, ErrUserNotFound
	}
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, mapUserError("get user", err)
	}
	s.withPhotoURL(user)
	return user, nil
}

func (s *userService) UpdateUser(ctx context.Context, actor models.Actor, id uuid.UUID, fields map[string]interface{}) (*models.User, error) {
	if actor.UserID != id && !actor.IsAdmin() {
		return nil, ErrUserNotFound
	}
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, mapUserError("get user", err)
	}

	for _, field := range updatableUserFields {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		value, err := optionalString(field, raw)
		if err != nil {
			return nil, err
		}
		switch field {
		case "firstName", "lastName":
			if value == nil {
				return nil, &MissingFieldsError{Fields: []string{field}}
			}
			if field == "firstName" {
				user.FirstName = *value
			} else {
				user.LastName = *value
			}
		case "phoneNumber":
			user.PhoneNumber = value
		case "country":
			user.Country = value
		case "address":
			user.Address = value
		case "city":
			user.City = value
		case "commune":
			user.Commune = value
		case "bio":
			user.Bio = value
		case "category":
			user.Category = value
		case "photo":
			user.Photo = value
		}
	}

	user.PhoneNumber, user.Country, err = normalizePhone(user.PhoneNumber, user.Country)
	if err != nil {
		return nil, err
	}

	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, mapUserError("update user", err)
	}
	s.withPhotoURL(user)
	return user, nil
}

func (s *userService) UploadPhoto(ctx context.Context, actor models.Actor, id uuid.UUID, contentType string, body io.Reader) (*models.User, error) {
	if actor.UserID != id && !actor.IsAdmin() {
		return nil, ErrUserNotFound
	}
	if s.uploader == nil {
		return nil, ErrPhotoUnavailable
	}
	ext, ok := photoExtensions[contentType]
	if !ok {
		return nil, ErrInvalidPhoto
	}

	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, mapUserError("get user", err)
	}

	key := fmt.Sprintf("users/%s/photo-%s%s", user.ID, uuid.NewString(), ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, body); err != nil {
		return nil, persistenceError("upload photo", err)
	}

	previous := user.Photo
	user.Photo = &key
	if err := s.store.Users().Update(ctx, user); err != nil {
		if delErr := s.uploader.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.WarnContext(ctx, "Failed to remove orphaned photo", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, mapUserError("update user photo", err)
	}

	if previous != nil && *previous != "" {
		if err := s.uploader.Delete(ctx, *previous); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete previous photo", slog.String("key", *previous), slog.Any("error", err))
		}
	}
	s.withPhotoURL(user)
	return user, nil
}

func (s *userService) withPhotoURL(user *models.User) {
	if s.uploader == nil || user.Photo == nil || *user.Photo == "" {
		return
	}
	if url := s.uploader.GetPublicURL(*user.Photo); url != "" {
		user.PhotoURL = &url
	}
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// normalizePhone parses the number with the country as region and returns it in E.164.
// Without a phone number the country is kept as given.
func normalizePhone(phone, country *string) (*string, *string, error) {
	country = trimmedOrNil(country)
	if country != nil {
		if len(*country) != 2 {
			return nil, nil, ErrInvalidCountry
		}
		upper := strings.ToUpper(*country)
		country = &upper
	}
	phone = trimmedOrNil(phone)
	if phone == nil {
		return nil, country, nil
	}
	if country == nil {
		return nil, nil, ErrCountryRequired
	}

	parsed, err := phonenumbers.Parse(*phone, *country)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return nil, nil, ErrInvalidPhone
	}
	formatted := phonenumbers.Format(parsed, phonenumbers.E164)
	return &formatted, country, nil
}

func optionalString(field string, raw interface{}) (*string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return trimmedOrNil(&v), nil
	default:
		return nil, fmt.Errorf("%w: %s must be a string", ErrValidation, field)
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func mapUserError(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrUserEmailConflict):
		return ErrDuplicateEmail
	case errors.Is(err, repositories.ErrUserPhoneConflict):
		return ErrDuplicatePhone
	case errors.Is(err, repositories.ErrUserNotFound):
		return ErrUserNotFound
	}
	return persistenceError(op, err)
}
