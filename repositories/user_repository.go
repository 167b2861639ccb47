package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByEmail(ctx context.Context, email string) (int, error)
}

var userConstraintErrors = map[string]error{
	"users_email_key":         ErrUserEmailConflict,
	"users_phone_country_key": ErrUserPhoneConflict,
}

const userColumns = `id, email, password_hash, first_name, last_name, phone_number, country,
	address, city, commune, bio, category, photo, role, created_at, updated_at`

type postgresUserRepository struct {
	exec SQLExecutor
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{exec: db}
}

func (r *postgresUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.exec.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.PhoneNumber, user.Country, user.Address, user.City, user.Commune,
		user.Bio, user.Category, user.Photo, user.Role, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if mapped := constraintError(err, userConstraintErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, query, id)
}

func (r *postgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(ctx, query, email)
}

// Update replaces every mutable column of the stored user.
func (r *postgresUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE users SET
			email = $1,
			password_hash = $2,
			first_name = $3,
			last_name = $4,
			phone_number = $5,
			country = $6,
			address = $7,
			city = $8,
			commune = $9,
			bio = $10,
			category = $11,
			photo = $12,
			role = $13,
			updated_at = $14
		WHERE id = $15`

	result, err := r.exec.ExecContext(ctx, query,
		user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.PhoneNumber, user.Country, user.Address, user.City, user.Commune,
		user.Bio, user.Category, user.Photo, user.Role, user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if mapped := constraintError(err, userConstraintErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.exec.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", constraintError(err, nil))
	}
	return checkAffectedRows(result, ErrUserNotFound)
}

func (r *postgresUserRepository) CountByEmail(ctx context.Context, email string) (int, error) {
	var count int
	if err := r.exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, email).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users by email: %w", err)
	}
	return count, nil
}

func (r *postgresUserRepository) scanUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user := &models.User{}
	err := r.exec.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
		&user.Country,
		&user.Address,
		&user.City,
		&user.Commune,
		&user.Bio,
		&user.Category,
		&user.Photo,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}
