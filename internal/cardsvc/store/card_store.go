package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/viand-services/internal/cardsvc/models"
	"github.com/avvvet/viand-services/internal/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CardsCollection = "cards"
	queryTimeout    = 5 * time.Second
)

// ErrDuplicateKey is returned when a write hits a unique index.
var ErrDuplicateKey = errors.New("duplicate key")

type CardStore struct {
	coll *mongo.Collection
}

func NewCardStore(database *mongo.Database) *CardStore {
	return &CardStore{coll: database.Collection(CardsCollection)}
}

// EnsureIndexes makes card names unique and serves owner listings sorted by date.
func (s *CardStore) EnsureIndexes(ctx context.Context) error {
	return db.EnsureIndexes(ctx, s.coll,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("name_unique"),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "date", Value: -1}},
			Options: options.Index().SetName("user_date"),
		},
	)
}

// ListByOwner returns the owner's cards, newest date first.
func (s *CardStore) ListByOwner(ctx context.Context, owner primitive.ObjectID) ([]models.Card, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"user": owner}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}

	cards := []models.Card{}
	if err := cursor.All(ctx, &cards); err != nil {
		return nil, fmt.Errorf("failed to decode cards: %w", err)
	}
	return cards, nil
}

// GetByID returns nil, nil when no card has the id.
func (s *CardStore) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Card, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var card models.Card
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&card)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card by id: %w", err)
	}
	return &card, nil
}

func (s *CardStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := s.coll.FindOne(ctx, bson.M{"name": name}, opts).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up card name: %w", err)
	}
	return true, nil
}

// Create inserts card, assigning an id when it has none.
func (s *CardStore) Create(ctx context.Context, card *models.Card) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if card.ID.IsZero() {
		card.ID = primitive.NewObjectID()
	}

	if _, err := s.coll.InsertOne(ctx, card); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// Update sets the supplied fields and returns the card as stored afterwards,
// or nil, nil when the card no longer exists.
func (s *CardStore) Update(ctx context.Context, id primitive.ObjectID, u models.CardUpdate) (*models.Card, error) {
	set := updateDocument(u)
	if len(set) == 0 {
		return s.GetByID(ctx, id)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var card models.Card
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&card)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, nil
		case mongo.IsDuplicateKeyError(err):
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to update card: %w", err)
	}
	return &card, nil
}

func updateDocument(u models.CardUpdate) bson.M {
	set := bson.M{}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Rating != nil {
		set["rating"] = *u.Rating
	}
	if u.Menu != nil {
		set["menu"] = *u.Menu
	}
	if u.Date != nil {
		set["date"] = *u.Date
	}
	if u.Review != nil {
		set["review"] = *u.Review
	}
	if u.Zomato != nil {
		set["zomato"] = *u.Zomato
	}
	if u.BeenThere != nil {
		set["beenThere"] = *u.BeenThere
	}
	return set
}

func (s *CardStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return nil
}
