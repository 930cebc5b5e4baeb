package store

import (
	"context"
	"testing"
	"time"

	"github.com/avvvet/viand-services/internal/cardsvc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const ns = "viand.cards"

func cardDoc(id, owner primitive.ObjectID, name string, date time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "user", Value: owner},
		{Key: "name", Value: name},
		{Key: "menu", Value: bson.A{}},
		{Key: "review", Value: nil},
		{Key: "zomato", Value: "https://zomato.com/" + name},
		{Key: "beenThere", Value: false},
		{Key: "date", Value: primitive.NewDateTimeFromTime(date)},
	}
}

func TestCardStore_ListByOwner(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns decoded cards", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		owner := primitive.NewObjectID()
		newer := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
		older := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			cardDoc(primitive.NewObjectID(), owner, "cafex", newer),
			cardDoc(primitive.NewObjectID(), owner, "dosa-point", older),
		))

		cards, err := s.ListByOwner(context.Background(), owner)
		require.NoError(mt, err)
		require.Len(mt, cards, 2)
		assert.Equal(mt, "cafex", cards[0].Name)
		assert.Equal(mt, owner, cards[1].User)
		assert.True(mt, cards[0].Date.Equal(newer))
		require.NotNil(mt, cards[0].Zomato)
		assert.Equal(mt, "https://zomato.com/cafex", *cards[0].Zomato)
		assert.Nil(mt, cards[0].Review)
	})

	mt.Run("empty result is an empty slice", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		cards, err := s.ListByOwner(context.Background(), primitive.NewObjectID())
		require.NoError(mt, err)
		assert.NotNil(mt, cards)
		assert.Empty(mt, cards)
	})

	mt.Run("server error", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 2, Name: "BadValue", Message: "boom",
		}))

		_, err := s.ListByOwner(context.Background(), primitive.NewObjectID())
		assert.Error(mt, err)
	})
}

func TestCardStore_GetByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found with menu prices", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		id, owner := primitive.NewObjectID(), primitive.NewObjectID()
		price, err := primitive.ParseDecimal128("180.50")
		require.NoError(mt, err)

		doc := cardDoc(id, owner, "cafex", time.Now())
		doc = append(doc, bson.E{Key: "rating", Value: "4"})
		doc[3] = bson.E{Key: "menu", Value: bson.A{
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "food", Value: "filter coffee"}, {Key: "price", Value: price}},
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "food", Value: "upma"}},
		}}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, doc))

		card, err := s.GetByID(context.Background(), id)
		require.NoError(mt, err)
		require.NotNil(mt, card)
		assert.Equal(mt, id, card.ID)
		assert.Equal(mt, "4", card.Rating)
		require.Len(mt, card.Menu, 2)
		require.NotNil(mt, card.Menu[0].Price)
		assert.Equal(mt, "180.5", card.Menu[0].Price.String())
		assert.Nil(mt, card.Menu[1].Price)
	})

	mt.Run("missing", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		card, err := s.GetByID(context.Background(), primitive.NewObjectID())
		require.NoError(mt, err)
		assert.Nil(mt, card)
	})
}

func TestCardStore_ExistsByName(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("exists", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}}))

		ok, err := s.ExistsByName(context.Background(), "cafex")
		require.NoError(mt, err)
		assert.True(mt, ok)
	})

	mt.Run("free", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		ok, err := s.ExistsByName(context.Background(), "cafex")
		require.NoError(mt, err)
		assert.False(mt, ok)
	})
}

func TestCardStore_Create(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("assigns id", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		card := &models.Card{User: primitive.NewObjectID(), Name: "cafex", Date: time.Now()}
		require.NoError(mt, s.Create(context.Background(), card))
		assert.False(mt, card.ID.IsZero())
	})

	mt.Run("duplicate name", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index: 0, Code: 11000, Message: "E11000 duplicate key error collection: viand.cards index: name_unique",
		}))

		err := s.Create(context.Background(), &models.Card{Name: "cafex"})
		assert.ErrorIs(mt, err, ErrDuplicateKey)
	})
}

func TestCardStore_Update(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns updated document", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		id, owner := primitive.NewObjectID(), primitive.NewObjectID()
		doc := append(cardDoc(id, owner, "cafex", time.Now()), bson.E{Key: "rating", Value: "5"})
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: doc}))

		rating := "5"
		card, err := s.Update(context.Background(), id, models.CardUpdate{Rating: &rating})
		require.NoError(mt, err)
		require.NotNil(mt, card)
		assert.Equal(mt, "5", card.Rating)
	})

	mt.Run("card vanished", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		rating := "5"
		card, err := s.Update(context.Background(), primitive.NewObjectID(), models.CardUpdate{Rating: &rating})
		require.NoError(mt, err)
		assert.Nil(mt, card)
	})

	mt.Run("rename onto taken name", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 11000, Name: "DuplicateKey", Message: "E11000 duplicate key error",
		}))

		name := "taken"
		_, err := s.Update(context.Background(), primitive.NewObjectID(), models.CardUpdate{Name: &name})
		assert.ErrorIs(mt, err, ErrDuplicateKey)
	})
}

func TestCardStore_Delete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("ok", func(mt *mtest.T) {
		s := NewCardStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		assert.NoError(mt, s.Delete(context.Background(), primitive.NewObjectID()))
	})
}

func TestUpdateDocument(t *testing.T) {
	assert.Empty(t, updateDocument(models.CardUpdate{}))

	empty := ""
	visited := false
	menu := []models.MenuItem{}
	set := updateDocument(models.CardUpdate{Review: &empty, BeenThere: &visited, Menu: &menu})
	assert.Equal(t, bson.M{"review": "", "beenThere": false, "menu": []models.MenuItem{}}, set)
}
