package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Price is the price of a menu item. It is stored as Decimal128 and
// rendered as a bare JSON number.
type Price struct {
	decimal.Decimal
}

func NewPrice(value string) (*Price, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	return &Price{Decimal: d}, nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.Decimal.String()), nil
}

func (p Price) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d128, err := primitive.ParseDecimal128(p.Decimal.String())
	if err != nil {
		return 0, nil, fmt.Errorf("price %s: %w", p.Decimal.String(), err)
	}
	return bson.MarshalValue(d128)
}

// UnmarshalBSONValue also accepts the doubles and integers older documents
// were written with.
func (p *Price) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}

	switch t {
	case bsontype.Null, bsontype.Undefined:
		p.Decimal = decimal.Zero
	case bsontype.Decimal128:
		d, err := decimal.NewFromString(rv.Decimal128().String())
		if err != nil {
			return fmt.Errorf("decode price: %w", err)
		}
		p.Decimal = d
	case bsontype.Double:
		p.Decimal = decimal.NewFromFloat(rv.Double())
	case bsontype.Int32:
		p.Decimal = decimal.NewFromInt32(rv.Int32())
	case bsontype.Int64:
		p.Decimal = decimal.NewFromInt(rv.Int64())
	default:
		return fmt.Errorf("cannot decode bson %s into a price", t)
	}
	return nil
}
