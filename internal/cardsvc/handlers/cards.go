package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/avvvet/viand-services/internal/auth"
	"github.com/avvvet/viand-services/internal/cardsvc/service"
	"github.com/go-chi/chi"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// cardID parses the {id} path parameter, writing a 400 when it is not an
// ObjectID.
func (h *Handler) cardID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		h.badRequest(w, "Invalid ID")
		return primitive.NilObjectID, false
	}
	return id, true
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFrom(r.Context())

	cards, err := h.cards.List(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFrom(r.Context())

	var in service.NewCard
	if err := decode(w, r, &in); err != nil && !errors.Is(err, io.EOF) {
		log.Debugf("create card: bad body: %s", err)
		h.badRequest(w, "Invalid request body")
		return
	}

	card, err := h.cards.Create(r.Context(), caller, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFrom(r.Context())
	id, ok := h.cardID(w, r)
	if !ok {
		return
	}

	card, err := h.cards.Get(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFrom(r.Context())
	id, ok := h.cardID(w, r)
	if !ok {
		return
	}

	// an empty body is an empty patch
	var patch service.CardPatch
	if err := decode(w, r, &patch); err != nil && !errors.Is(err, io.EOF) {
		log.Debugf("update card %s: bad body: %s", id.Hex(), err)
		h.badRequest(w, "Invalid request body")
		return
	}

	card, err := h.cards.Update(r.Context(), caller, id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserFrom(r.Context())
	id, ok := h.cardID(w, r)
	if !ok {
		return
	}

	if err := h.cards.Delete(r.Context(), caller, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, Response{Message: "Card Removed"})
}
