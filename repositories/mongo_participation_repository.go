package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

// participationDoc carries an extra active flag: the partial unique index only covers
// documents where it is true.
type participationDoc struct {
	ID            string    `bson:"_id"`
	CompetitionID string    `bson:"competition_id"`
	UserID        string    `bson:"user_id"`
	Status        string    `bson:"status"`
	Active        bool      `bson:"active"`
	TeamData      string    `bson:"team_data,omitempty"`
	TeamID        *string   `bson:"team_id,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func newParticipationDoc(p *models.Participation) participationDoc {
	return participationDoc{
		ID: p.ID.String(), CompetitionID: p.CompetitionID.String(), UserID: p.UserID.String(),
		Status: string(p.Status), Active: p.Status.Active(), TeamData: string(p.TeamData),
		TeamID: docIDPtr(p.TeamID), CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d participationDoc) model() *models.Participation {
	p := &models.Participation{
		ID: parseDocID(d.ID), CompetitionID: parseDocID(d.CompetitionID), UserID: parseDocID(d.UserID),
		Status: models.ParticipationStatus(d.Status), TeamID: parseDocIDPtr(d.TeamID),
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	if d.TeamData != "" {
		p.TeamData = json.RawMessage(d.TeamData)
	}
	return p
}

var participationIndexErrors = map[string]error{
	"participations_active_unique": ErrParticipationConflict,
}

type mongoParticipationRepository struct {
	c *mongo.Collection
}

func (r *mongoParticipationRepository) Create(ctx context.Context, p *models.Participation) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	if _, err := r.c.InsertOne(ctx, newParticipationDoc(p)); err != nil {
		if mapped := duplicateKeyError(err, participationIndexErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create participation: %w", err)
	}
	return nil
}

func (r *mongoParticipationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participation, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *mongoParticipationRepository) FindActive(ctx context.Context, competitionID, userID uuid.UUID) (*models.Participation, error) {
	return r.findOne(ctx, bson.M{
		"competition_id": competitionID.String(),
		"user_id":        userID.String(),
		"active":         true,
	})
}

func (r *mongoParticipationRepository) ListByCompetition(ctx context.Context, competitionID uuid.UUID, status *models.ParticipationStatus) ([]*models.Participation, error) {
	filter := bson.M{"competition_id": competitionID.String()}
	if status != nil {
		filter["status"] = string(*status)
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *mongoParticipationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Participation, error) {
	return r.find(ctx, bson.M{"user_id": userID.String()}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (r *mongoParticipationRepository) Update(ctx context.Context, p *models.Participation) error {
	p.UpdatedAt = time.Now().UTC()
	result, err := r.c.ReplaceOne(ctx, bson.M{"_id": p.ID.String()}, newParticipationDoc(p))
	if err != nil {
		if mapped := duplicateKeyError(err, participationIndexErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to update participation: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrParticipationNotFound
	}
	return nil
}

func (r *mongoParticipationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.c.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete participation: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrParticipationNotFound
	}
	return nil
}

func (r *mongoParticipationRepository) CountByStatus(ctx context.Context, competitionID uuid.UUID) (map[models.ParticipationStatus]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"competition_id": competitionID.String()}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count participations: %w", err)
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode participation counts: %w", err)
	}
	counts := make(map[models.ParticipationStatus]int, len(rows))
	for _, row := range rows {
		counts[models.ParticipationStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func (r *mongoParticipationRepository) findOne(ctx context.Context, filter bson.M) (*models.Participation, error) {
	var doc participationDoc
	if err := r.c.FindOne(ctx, filter).Decode(&doc); err != nil {
		if mapped := notFound(err, ErrParticipationNotFound); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to find participation: %w", err)
	}
	return doc.model(), nil
}

func (r *mongoParticipationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Participation, error) {
	cursor, err := r.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query participations: %w", err)
	}
	var docs []participationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode participations: %w", err)
	}
	participations := make([]*models.Participation, 0, len(docs))
	for _, doc := range docs {
		participations = append(participations, doc.model())
	}
	return participations, nil
}
