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

type teamDoc struct {
	ID            string    `bson:"_id"`
	CompetitionID string    `bson:"competition_id"`
	Name          string    `bson:"name"`
	CaptainID     string    `bson:"captain_id"`
	CreatedAt     time.Time `bson:"created_at"`
}

func (d teamDoc) model() *models.Team {
	return &models.Team{
		ID: parseDocID(d.ID), CompetitionID: parseDocID(d.CompetitionID), Name: d.Name,
		CaptainID: parseDocID(d.CaptainID), CreatedAt: d.CreatedAt,
	}
}

type mongoTeamRepository struct {
	c *mongo.Collection
}

func (r *mongoTeamRepository) Create(ctx context.Context, team *models.Team) error {
	if team.ID == uuid.Nil {
		team.ID = uuid.New()
	}
	team.CreatedAt = time.Now().UTC()
	doc := teamDoc{
		ID: team.ID.String(), CompetitionID: team.CompetitionID.String(), Name: team.Name,
		CaptainID: team.CaptainID.String(), CreatedAt: team.CreatedAt,
	}
	if _, err := r.c.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *mongoTeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	var doc teamDoc
	if err := r.c.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if mapped := notFound(err, ErrTeamNotFound); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get team by id %s: %w", id, err)
	}
	return doc.model(), nil
}

func (r *mongoTeamRepository) ListByCompetition(ctx context.Context, competitionID uuid.UUID) ([]*models.Team, error) {
	cursor, err := r.c.Find(ctx, bson.M{"competition_id": competitionID.String()},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for competition %s: %w", competitionID, err)
	}
	var docs []teamDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode teams: %w", err)
	}
	teams := make([]*models.Team, 0, len(docs))
	for _, doc := range docs {
		teams = append(teams, doc.model())
	}
	return teams, nil
}

func (r *mongoTeamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.c.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrTeamNotFound
	}
	return nil
}

type playerDoc struct {
	ID           string     `bson:"_id"`
	TeamID       string     `bson:"team_id"`
	FirstName    string     `bson:"first_name"`
	LastName     string     `bson:"last_name"`
	Position     *string    `bson:"position,omitempty"`
	JerseyNumber *int       `bson:"jersey_number,omitempty"`
	BirthDate    *time.Time `bson:"birth_date,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func newPlayerDoc(p *models.Player) playerDoc {
	return playerDoc{
		ID: p.ID.String(), TeamID: p.TeamID.String(), FirstName: p.FirstName, LastName: p.LastName,
		Position: p.Position, JerseyNumber: p.JerseyNumber, BirthDate: p.BirthDate,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (d playerDoc) model() *models.Player {
	return &models.Player{
		ID: parseDocID(d.ID), TeamID: parseDocID(d.TeamID), FirstName: d.FirstName, LastName: d.LastName,
		Position: d.Position, JerseyNumber: d.JerseyNumber, BirthDate: d.BirthDate,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

type mongoPlayerRepository struct {
	c *mongo.Collection
}

func (r *mongoPlayerRepository) Create(ctx context.Context, p *models.Player) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if _, err := r.c.InsertOne(ctx, newPlayerDoc(p)); err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (r *mongoPlayerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var doc playerDoc
	if err := r.c.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if mapped := notFound(err, ErrPlayerNotFound); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return doc.model(), nil
}

func (r *mongoPlayerRepository) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]*models.Player, error) {
	cursor, err := r.c.Find(ctx, bson.M{"team_id": teamID.String()},
		options.Find().SetSort(bson.D{{Key: "last_name", Value: 1}, {Key: "first_name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list players for team %s: %w", teamID, err)
	}
	var docs []playerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	players := make([]*models.Player, 0, len(docs))
	for _, doc := range docs {
		players = append(players, doc.model())
	}
	return players, nil
}

func (r *mongoPlayerRepository) Update(ctx context.Context, p *models.Player) error {
	p.UpdatedAt = time.Now().UTC()
	result, err := r.c.ReplaceOne(ctx, bson.M{"_id": p.ID.String()}, newPlayerDoc(p))
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func (r *mongoPlayerRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.c.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func (r *mongoPlayerRepository) DeleteByTeam(ctx context.Context, teamID uuid.UUID) error {
	if _, err := r.c.DeleteMany(ctx, bson.M{"team_id": teamID.String()}); err != nil {
		return fmt.Errorf("failed to delete players of team %s: %w", teamID, err)
	}
	return nil
}
