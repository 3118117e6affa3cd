package mshmodels

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestGasValueJSON(t *testing.T) {
	num, err := json.Marshal(NumberGas(42.5))
	require.NoError(t, err)
	assert.Equal(t, "42.5", string(num))

	flag, err := json.Marshal(FlagGas(true))
	require.NoError(t, err)
	assert.Equal(t, "true", string(flag))

	var g GasValue
	require.NoError(t, json.Unmarshal([]byte("false"), &g))
	assert.Equal(t, GasFlag, g.Kind)
	assert.False(t, g.Flag)

	require.NoError(t, json.Unmarshal([]byte("17"), &g))
	assert.Equal(t, GasNumber, g.Kind)
	assert.Equal(t, 17.0, g.Number)

	assert.Error(t, json.Unmarshal([]byte(`"high"`), &g))
}

func TestGasValueBSONRoundTrip(t *testing.T) {
	type doc struct {
		Gas *GasValue `bson:"gas"`
	}

	for _, in := range []*GasValue{NumberGas(250), FlagGas(true), FlagGas(false)} {
		raw, err := bson.Marshal(doc{Gas: in})
		require.NoError(t, err)

		var out doc
		require.NoError(t, bson.Unmarshal(raw, &out))
		require.NotNil(t, out.Gas)
		assert.Equal(t, in.Kind, out.Gas.Kind)
		assert.Equal(t, in.Number, out.Gas.Number)
		assert.Equal(t, in.Flag, out.Gas.Flag)
	}
}

func TestGasValueBSONFromInteger(t *testing.T) {
	// Readings written by older gateways stored gas as an int32.
	raw, err := bson.Marshal(bson.M{"gas": int32(7)})
	require.NoError(t, err)

	var out struct {
		Gas *GasValue `bson:"gas"`
	}
	require.NoError(t, bson.Unmarshal(raw, &out))
	require.NotNil(t, out.Gas)
	assert.Equal(t, GasNumber, out.Gas.Kind)
	assert.Equal(t, 7.0, out.Gas.Number)
}
