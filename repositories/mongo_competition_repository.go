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

type competitionDoc struct {
	ID                   string     `bson:"_id"`
	Name                 string     `bson:"name"`
	JoinCode             string     `bson:"join_code"`
	OrganizerID          string     `bson:"organizer_id"`
	Category             string     `bson:"category"`
	Description          *string    `bson:"description,omitempty"`
	Location             *string    `bson:"location,omitempty"`
	MaxParticipants      int        `bson:"max_participants"`
	RegistrationDeadline *time.Time `bson:"registration_deadline,omitempty"`
	StartTime            time.Time  `bson:"start_time"`
	EndTime              time.Time  `bson:"end_time"`
	Status               string     `bson:"status"`
	Rules                string     `bson:"rules,omitempty"`
	CreatedAt            time.Time  `bson:"created_at"`
	UpdatedAt            time.Time  `bson:"updated_at"`
}

func newCompetitionDoc(c *models.Competition) competitionDoc {
	return competitionDoc{
		ID: c.ID.String(), Name: c.Name, JoinCode: c.JoinCode, OrganizerID: c.OrganizerID.String(),
		Category: c.Category, Description: c.Description, Location: c.Location,
		MaxParticipants: c.MaxParticipants, RegistrationDeadline: c.RegistrationDeadline,
		StartTime: c.StartTime, EndTime: c.EndTime, Status: string(c.Status), Rules: string(c.Rules),
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (d competitionDoc) model() *models.Competition {
	c := &models.Competition{
		ID: parseDocID(d.ID), Name: d.Name, JoinCode: d.JoinCode, OrganizerID: parseDocID(d.OrganizerID),
		Category: d.Category, Description: d.Description, Location: d.Location,
		MaxParticipants: d.MaxParticipants, RegistrationDeadline: d.RegistrationDeadline,
		StartTime: d.StartTime, EndTime: d.EndTime, Status: models.CompetitionStatus(d.Status),
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	if d.Rules != "" {
		c.Rules = json.RawMessage(d.Rules)
	}
	return c
}

var competitionIndexErrors = map[string]error{
	"competitions_join_code_key": ErrJoinCodeConflict,
}

type mongoCompetitionRepository struct {
	c *mongo.Collection
}

func (r *mongoCompetitionRepository) Create(ctx context.Context, c *models.Competition) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	if _, err := r.c.InsertOne(ctx, newCompetitionDoc(c)); err != nil {
		if mapped := duplicateKeyError(err, competitionIndexErrors); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create competition: %w", err)
	}
	return nil
}

func (r *mongoCompetitionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Competition, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *mongoCompetitionRepository) GetByJoinCode(ctx context.Context, joinCode string) (*models.Competition, error) {
	return r.findOne(ctx, bson.M{"join_code": joinCode})
}

func (r *mongoCompetitionRepository) List(ctx context.Context, filter models.CompetitionFilter) ([]*models.Competition, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}
	if filter.Category != nil {
		query["category"] = *filter.Category
	}
	if filter.OrganizerID != nil {
		query["organizer_id"] = filter.OrganizerID.String()
	}

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}, {Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	return r.find(ctx, query, opts)
}

func (r *mongoCompetitionRepository) Update(ctx context.Context, c *models.Competition) error {
	c.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"name":                  c.Name,
		"category":              c.Category,
		"description":           c.Description,
		"location":              c.Location,
		"max_participants":      c.MaxParticipants,
		"registration_deadline": c.RegistrationDeadline,
		"start_time":            c.StartTime,
		"end_time":              c.EndTime,
		"rules":                 string(c.Rules),
		"updated_at":            c.UpdatedAt,
	}
	result, err := r.c.UpdateOne(ctx, bson.M{"_id": c.ID.String()}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update competition: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCompetitionNotFound
	}
	return nil
}

func (r *mongoCompetitionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.CompetitionStatus) error {
	filter := bson.M{"_id": id.String(), "status": string(from)}
	update := bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}}
	result, err := r.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update competition status: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *mongoCompetitionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.c.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete competition: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCompetitionNotFound
	}
	return nil
}

func (r *mongoCompetitionRepository) ListForStatusSweep(ctx context.Context, now time.Time) ([]*models.Competition, error) {
	query := bson.M{"$or": bson.A{
		bson.M{"status": string(models.StatusOpen), "$or": bson.A{
			bson.M{"start_time": bson.M{"$lte": now}},
			bson.M{"registration_deadline": bson.M{"$lte": now}},
		}},
		bson.M{"status": string(models.StatusClosed), "start_time": bson.M{"$lte": now}},
		bson.M{"status": string(models.StatusInProgress), "end_time": bson.M{"$lte": now}},
	}}
	return r.find(ctx, query, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
}

func (r *mongoCompetitionRepository) findOne(ctx context.Context, filter bson.M) (*models.Competition, error) {
	var doc competitionDoc
	if err := r.c.FindOne(ctx, filter).Decode(&doc); err != nil {
		if mapped := notFound(err, ErrCompetitionNotFound); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to find competition: %w", err)
	}
	return doc.model(), nil
}

func (r *mongoCompetitionRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Competition, error) {
	cursor, err := r.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query competitions: %w", err)
	}
	var docs []competitionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode competitions: %w", err)
	}
	competitions := make([]*models.Competition, 0, len(docs))
	for _, doc := range docs {
		competitions = append(competitions, doc.model())
	}
	return competitions, nil
}
