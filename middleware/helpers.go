package middleware

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

type contextKey string

const actorContextKey contextKey = "actor"

const (
	jwtClaimUserID = "user_id"
	jwtClaimRole   = "role"
)

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext returns the actor stored by Authenticate.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(models.Actor)
	return actor, ok
}

func actorFromClaims(claims jwt.MapClaims) (models.Actor, error) {
	if len(claims) == 0 {
		return models.Actor{}, errNoClaims
	}

	rawID, ok := claims[jwtClaimUserID].(string)
	if !ok {
		return models.Actor{}, fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
	}
	userID, err := uuid.Parse(rawID)
	if err != nil || userID == uuid.Nil {
		return models.Actor{}, fmt.Errorf("invalid '%s' claim in token", jwtClaimUserID)
	}

	rawRole, ok := claims[jwtClaimRole].(string)
	if !ok {
		return models.Actor{}, fmt.Errorf("missing '%s' claim in token", jwtClaimRole)
	}
	role := models.UserRole(rawRole)
	if !role.Valid() {
		return models.Actor{}, fmt.Errorf("invalid role value in claim: %q", rawRole)
	}

	return models.Actor{UserID: userID, Role: role}, nil
}
