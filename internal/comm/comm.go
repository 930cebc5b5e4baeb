package comm

import (
	"time"

	"github.com/avvvet/viand-services/internal/cardsvc/models"
)

// Subject card mutations are published on.
const CardEventsSubject = "card.events"

const (
	CardCreated = "card.created"
	CardUpdated = "card.updated"
	CardDeleted = "card.deleted"
)

// CardEvent travels over NATS and is pushed unchanged to the owner's feed.
type CardEvent struct {
	Type      string       `json:"type"`
	Owner     string       `json:"owner"` // hex user id
	CardId    string       `json:"card_id"`
	Card      *models.Card `json:"card,omitempty"` // nil for card.deleted
	Instance  string       `json:"instance,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// FeedMessage is written to feed sockets that are not card events, e.g. the greeting.
type FeedMessage struct {
	Type     string `json:"type"`
	SocketId string `json:"socketid"`
}
