package handlers

import (
	"errors"
	"net/http"

	"github.com/avvvet/viand-services/internal/auth"
	"github.com/go-chi/jwtauth"
)

// Authenticator rejects requests whose token failed jwtauth.Verify and
// puts the caller's user id into the request context.
func (h *Handler) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if errors.Is(err, jwtauth.ErrNoTokenFound) {
			h.unauthenticated(w, "No token, authorization denied")
			return
		}
		if err != nil || token == nil {
			h.unauthenticated(w, "Token is not valid")
			return
		}

		userID, err := auth.UserIDFromClaims(claims)
		if err != nil {
			h.unauthenticated(w, "Token is not valid")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), userID)))
	})
}

func (h *Handler) unauthenticated(w http.ResponseWriter, msg string) {
	h.CreateResponse(w, Response{Message: msg, Code: http.StatusUnauthorized, Error: KindUnauthenticated})
}
