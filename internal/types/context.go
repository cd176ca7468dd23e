package types

import (
	"context"
	"strings"
)

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	// ActorTypeUser is a dashboard session resolved through Stack Auth.
	ActorTypeUser ActorType = "user"
	// ActorTypeAPIKey is a programmatic caller presenting an fg_ token.
	ActorTypeAPIKey ActorType = "api_key"
)

// Actor represents the authenticated entity performing an operation.
// AccountID is empty when a session was verified but no account row exists.
type Actor struct {
	ID         string
	Type       ActorType
	AccountID  string
	IdentityID string
	Plan       PlanName
	// Identity is the verified profile for session actors; nil for API keys.
	Identity *Identity
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// APIKeyPrefix is the fixed prefix of every issued API key.
const APIKeyPrefix = "fg_"

// IsAPIKeyToken reports whether a bearer token has the API key shape.
func IsAPIKeyToken(token string) bool {
	return strings.HasPrefix(token, APIKeyPrefix)
}
