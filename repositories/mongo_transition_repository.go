package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type transitionDoc struct {
	ID            string    `bson:"_id"`
	CompetitionID string    `bson:"competition_id"`
	OldStatus     string    `bson:"old_status"`
	NewStatus     string    `bson:"new_status"`
	Timestamp     time.Time `bson:"timestamp"`
	Source        string    `bson:"source"`
	ActorID       *string   `bson:"actor_id,omitempty"`
}

type mongoTransitionRepository struct {
	c *mongo.Collection
}

func (r *mongoTransitionRepository) Create(ctx context.Context, t *models.StatusTransition) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	doc := transitionDoc{
		ID: t.ID.String(), CompetitionID: t.CompetitionID.String(),
		OldStatus: string(t.OldStatus), NewStatus: string(t.NewStatus),
		Timestamp: t.Timestamp, Source: string(t.Source), ActorID: docIDPtr(t.ActorID),
	}
	if _, err := r.c.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create status transition: %w", err)
	}
	return nil
}

func (r *mongoTransitionRepository) ListByCompetition(ctx context.Context, competitionID uuid.UUID) ([]*models.StatusTransition, error) {
	cursor, err := r.c.Find(ctx, bson.M{"competition_id": competitionID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list status transitions: %w", err)
	}
	var docs []transitionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode status transitions: %w", err)
	}
	transitions := make([]*models.StatusTransition, 0, len(docs))
	for _, d := range docs {
		transitions = append(transitions, &models.StatusTransition{
			ID: parseDocID(d.ID), CompetitionID: parseDocID(d.CompetitionID),
			OldStatus: models.CompetitionStatus(d.OldStatus), NewStatus: models.CompetitionStatus(d.NewStatus),
			Timestamp: d.Timestamp, Source: models.TransitionSource(d.Source), ActorID: parseDocIDPtr(d.ActorID),
		})
	}
	return transitions, nil
}
