package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClaimUserID is the private claim holding the hex user id.
const ClaimUserID = "user_id"

// LegacyHeader is the token header older clients send instead of Authorization.
const LegacyHeader = "x-auth-token"

var ErrNoUser = errors.New("token carries no valid user id")

// TokenAuth issues and verifies HS256 bearer tokens.
type TokenAuth struct {
	ja  *jwtauth.JWTAuth
	ttl time.Duration
}

func New(secret string, ttl time.Duration) *TokenAuth {
	return &TokenAuth{
		ja:  jwtauth.New("HS256", []byte(secret), nil),
		ttl: ttl,
	}
}

func (t *TokenAuth) JWTAuth() *jwtauth.JWTAuth {
	return t.ja
}

// Issue signs a token for userID that expires after the configured ttl.
func (t *TokenAuth) Issue(userID string) (string, error) {
	claims := map[string]interface{}{
		ClaimUserID: userID,
		"jti":       uuid.New().String(),
	}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, t.ttl)

	_, tokenString, err := t.ja.Encode(claims)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// UserIDFromClaims extracts the caller id from verified claims.
func UserIDFromClaims(claims map[string]interface{}) (primitive.ObjectID, error) {
	raw, ok := claims[ClaimUserID].(string)
	if !ok {
		return primitive.NilObjectID, ErrNoUser
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, ErrNoUser
	}
	return id, nil
}

// TokenFromLegacyHeader reads the x-auth-token header.
func TokenFromLegacyHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(LegacyHeader))
}

type userKey struct{}

// WithUser stores the authenticated user id in ctx.
func WithUser(ctx context.Context, id primitive.ObjectID) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// UserFrom returns the authenticated user id stored by WithUser.
func UserFrom(ctx context.Context) (primitive.ObjectID, bool) {
	id, ok := ctx.Value(userKey{}).(primitive.ObjectID)
	return id, ok && !id.IsZero()
}
