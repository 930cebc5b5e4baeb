package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/avvvet/viand-services/internal/auth"
	"github.com/avvvet/viand-services/internal/cardsvc/service"
)

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.Registration
	if err := decode(w, r, &in); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, "Invalid request body")
		return
	}

	token, err := h.users.Register(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.Credentials
	if err := decode(w, r, &in); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, "Invalid request body")
		return
	}

	token, err := h.users.Login(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// CurrentUser returns the authenticated user without the password hash.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFrom(r.Context())

	user, err := h.users.Get(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}
