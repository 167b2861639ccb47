package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	FirstName    string    `bson:"first_name"`
	LastName     string    `bson:"last_name"`
	PhoneNumber  *string   `bson:"phone_number,omitempty"`
	Country      *string   `bson:"country,omitempty"`
	Address      *string   `bson:"address,omitempty"`
	City         *string   `bson:"city,omitempty"`
	Commune      *string   `bson:"commune,omitempty"`
	Bio          *string   `bson:"bio,omitempty"`
	Category     *string   `bson:"category,omitempty"`
	Photo        *string   `bson:"photo,omitempty"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func newUserDoc(u *models.User) userDoc {
	return userDoc{
		ID: u.ID.String(), Email: u.Email, PasswordHash: u.PasswordHash,
		FirstName: u.FirstName, LastName: u.LastName,
		PhoneNumber: u.PhoneNumber, Country: u.Country, Address: u.Address, City: u.City,
		Commune: u.Commune, Bio: u.Bio, Category: u.Category, Photo: u.Photo,
		Role: string(u.Role), CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

func (d userDoc) model() *models.User {
	return &models.User{
		ID: parseDocID(d.ID), Email: d.Email, PasswordHash: d.PasswordHash,
		FirstName: d.FirstName, LastName: d.LastName,
		PhoneNumber: d.PhoneNumber, Country: d.Country, Address: d.Address, City: d.City,
		Commune: d.Commune, Bio: d.Bio, Category: d.Category, Photo: d.Photo,
		Role: models.UserRole(d.Role), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

var userIndexErrors = map[string]error{
	"users_email_key":         ErrUserEmailConflict,
	"users_phone_country_key": ErrUserPhoneConflict,
}

type mongoUserRepository struct {
	c *mongo.Collection
}

func (r *mongoUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	if _, err := r.c.InsertOne(ctx, newUserDoc(user)); err != nil {
		if mapped := duplicateKeyError(err, userIndexErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *mongoUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *mongoUserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	result, err := r.c.ReplaceOne(ctx, bson.M{"_id": user.ID.String()}, newUserDoc(user))
	if err != nil {
		if mapped := duplicateKeyError(err, userIndexErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *mongoUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.c.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *mongoUserRepository) CountByEmail(ctx context.Context, email string) (int, error) {
	n, err := r.c.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return 0, fmt.Errorf("failed to count users by email: %w", err)
	}
	return int(n), nil
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := r.c.FindOne(ctx, filter).Decode(&doc); err != nil {
		if mapped := notFound(err, ErrUserNotFound); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return doc.model(), nil
}
