package mshmodels

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// GasKind discriminates the two legitimate representations of the gas field.
type GasKind uint8

const (
	// GasNumber is a percentage-like sensor reading.
	GasNumber GasKind = iota
	// GasFlag is a boolean alert flag from constrained nodes.
	GasFlag
)

// GasValue is the gas field as a tagged variant. Nodes report gas either as a
// number or as a boolean, and both must round-trip through storage and the
// query API without type confusion. Consumers match on Kind instead of
// probing runtime types.
type GasValue struct {
	Kind   GasKind `bson:"-" json:"-"`
	Number float64 `bson:"-" json:"-"`
	Flag   bool    `bson:"-" json:"-"`
}

// NumberGas builds a numeric gas value.
func NumberGas(v float64) *GasValue {
	return &GasValue{Kind: GasNumber, Number: v}
}

// FlagGas builds a boolean gas alert flag.
func FlagGas(v bool) *GasValue {
	return &GasValue{Kind: GasFlag, Flag: v}
}

func (g GasValue) MarshalJSON() ([]byte, error) {
	if g.Kind == GasFlag {
		return json.Marshal(g.Flag)
	}
	return json.Marshal(g.Number)
}

func (g *GasValue) UnmarshalJSON(data []byte) error {
	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		g.Kind = GasFlag
		g.Flag = flag
		return nil
	}

	var number float64
	if err := json.Unmarshal(data, &number); err == nil {
		g.Kind = GasNumber
		g.Number = number
		return nil
	}

	return fmt.Errorf("gas must be a number or a boolean, got %s", string(data))
}

func (g GasValue) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if g.Kind == GasFlag {
		return bson.MarshalValue(g.Flag)
	}
	return bson.MarshalValue(g.Number)
}

func (g *GasValue) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}

	switch t {
	case bsontype.Boolean:
		g.Kind = GasFlag
		g.Flag = raw.Boolean()
	case bsontype.Double:
		g.Kind = GasNumber
		g.Number = raw.Double()
	case bsontype.Int32:
		g.Kind = GasNumber
		g.Number = float64(raw.Int32())
	case bsontype.Int64:
		g.Kind = GasNumber
		g.Number = float64(raw.Int64())
	default:
		return fmt.Errorf("unsupported bson type %s for gas", t)
	}

	return nil
}
