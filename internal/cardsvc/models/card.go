package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Card is a single place review owned by exactly one user.
type Card struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	User      primitive.ObjectID `json:"user" bson:"user"` // owner, fixed at creation
	Name      string             `json:"name" bson:"name"`
	Rating    string             `json:"rating,omitempty" bson:"rating,omitempty"`
	Menu      []MenuItem         `json:"menu" bson:"menu"`
	Review    *string            `json:"review" bson:"review"`
	Zomato    *string            `json:"zomato" bson:"zomato"`
	BeenThere bool               `json:"beenThere" bson:"beenThere"`
	Date      time.Time          `json:"date" bson:"date"`
	Thumb     *string            `json:"thumb" bson:"thumb"`
	Location  *string            `json:"location" bson:"location"`
	Photos    []interface{}      `json:"photos" bson:"photos"`
}

func (c *Card) OwnedBy(user primitive.ObjectID) bool {
	return c.User == user
}

type MenuItem struct {
	ID    primitive.ObjectID `json:"_id" bson:"_id"`
	Food  string             `json:"food" bson:"food" validate:"required"`
	Price *Price             `json:"price,omitempty" bson:"price,omitempty"`
}

// priceUnset is what browser clients send for a price input left blank.
const priceUnset = "undefined"

// UnmarshalJSON clears prices sent as null, "" or the "undefined"
// placeholder and tolerates missing or malformed item ids.
func (m *MenuItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    string          `json:"_id"`
		Food  string          `json:"food"`
		Price json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Food = raw.Food
	m.ID = primitive.NilObjectID
	if id, err := primitive.ObjectIDFromHex(raw.ID); err == nil {
		m.ID = id
	}

	price, err := parsePrice(raw.Price)
	if err != nil {
		return fmt.Errorf("menu item %q: %w", raw.Food, err)
	}
	m.Price = price
	return nil
}

func parsePrice(raw json.RawMessage) (*Price, error) {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", `""`, `"` + priceUnset + `"`:
		return nil, nil
	}

	p := &Price{}
	if err := p.Decimal.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("invalid price %s", raw)
	}
	return p, nil
}

// CardUpdate is a partial update of a card. A nil field was not supplied;
// a non-nil field is written even when it holds a zero value.
type CardUpdate struct {
	Name      *string
	Rating    *string
	Menu      *[]MenuItem
	Date      *time.Time
	Review    *string
	Zomato    *string
	BeenThere *bool
}

func (u CardUpdate) IsEmpty() bool {
	return u.Name == nil && u.Rating == nil && u.Menu == nil && u.Date == nil &&
		u.Review == nil && u.Zomato == nil && u.BeenThere == nil
}

// Apply writes the supplied fields onto c.
func (u CardUpdate) Apply(c *Card) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Rating != nil {
		c.Rating = *u.Rating
	}
	if u.Menu != nil {
		c.Menu = *u.Menu
	}
	if u.Date != nil {
		c.Date = *u.Date
	}
	if u.Review != nil {
		c.Review = u.Review
	}
	if u.Zomato != nil {
		c.Zomato = u.Zomato
	}
	if u.BeenThere != nil {
		c.BeenThere = *u.BeenThere
	}
}
