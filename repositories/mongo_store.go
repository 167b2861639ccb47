package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection          = "users"
	competitionsCollection   = "competitions"
	participationsCollection = "participations"
	teamsCollection          = "teams"
	playersCollection        = "players"
	transitionsCollection    = "status_transitions"
)

type mongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates the unique indexes the repositories rely on and returns the store.
// Standalone deployments have no multi-document transactions, so WithinTx is not atomic here.
func NewMongoStore(ctx context.Context, db *mongo.Database) (Store, error) {
	if err := ensureMongoIndexes(ctx, db); err != nil {
		return nil, err
	}
	return &mongoStore{db: db}, nil
}

func ensureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("users_email_key"),
			},
			{
				Keys: bson.D{{Key: "phone_number", Value: 1}, {Key: "country", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("users_phone_country_key").
					SetPartialFilterExpression(bson.M{"phone_number": bson.M{"$type": "string"}}),
			},
		},
		competitionsCollection: {
			{
				Keys:    bson.D{{Key: "join_code", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("competitions_join_code_key"),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "start_time", Value: 1}}},
		},
		participationsCollection: {
			{
				Keys: bson.D{{Key: "competition_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("participations_active_unique").
					SetPartialFilterExpression(bson.M{"active": true}),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		playersCollection: {
			{Keys: bson.D{{Key: "team_id", Value: 1}}},
		},
		transitionsCollection: {
			{Keys: bson.D{{Key: "competition_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
	}

	for collection, defs := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, defs); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

func (s *mongoStore) Users() UserRepository {
	return &mongoUserRepository{c: s.db.Collection(usersCollection)}
}

func (s *mongoStore) Competitions() CompetitionRepository {
	return &mongoCompetitionRepository{c: s.db.Collection(competitionsCollection)}
}

func (s *mongoStore) Participations() ParticipationRepository {
	return &mongoParticipationRepository{c: s.db.Collection(participationsCollection)}
}

func (s *mongoStore) Teams() TeamRepository {
	return &mongoTeamRepository{c: s.db.Collection(teamsCollection)}
}

func (s *mongoStore) Players() PlayerRepository {
	return &mongoPlayerRepository{c: s.db.Collection(playersCollection)}
}

func (s *mongoStore) Transitions() TransitionRepository {
	return &mongoTransitionRepository{c: s.db.Collection(transitionsCollection)}
}

func (s *mongoStore) SupportsTransactions() bool { return false }

func (s *mongoStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, s)
}

// duplicateKeyError maps a duplicate-key write error to the sentinel registered for the
// violated index name. Other errors come back as is.
func duplicateKeyError(err error, byIndex map[string]error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	msg := err.Error()
	for index, mapped := range byIndex {
		if strings.Contains(msg, "index: "+index+" ") {
			return mapped
		}
	}
	return err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sentinel
	}
	return err
}

func parseDocID(id string) uuid.UUID {
	parsed, _ := uuid.Parse(id)
	return parsed
}

func docIDPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseDocIDPtr(id *string) *uuid.UUID {
	if id == nil {
		return nil
	}
	parsed, err := uuid.Parse(*id)
	if err != nil {
		return nil
	}
	return &parsed
}
