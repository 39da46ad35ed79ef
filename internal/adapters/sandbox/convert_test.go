package sandbox

import (
	"testing"

	lua "github.com/Shopify/go-lua"
	"github.com/stretchr/testify/assert"
)

func TestPushValue_ToValue_RoundTrip(t *testing.T) {
	// Arrange
	l := lua.NewState()
	in := map[string]any{
		"name":    "alice",
		"score":   12.5,
		"online":  true,
		"items":   []any{"wood", "stone"},
		"nothing": nil,
		"nested":  map[string]any{"level": 3},
	}

	// Act
	pushValue(l, in)
	out := toValue(l, -1)

	// Assert
	assert.Equal(t, map[string]any{
		"name":   "alice",
		"score":  12.5,
		"online": true,
		"items":  []any{"wood", "stone"},
		"nested": map[string]any{"level": 3.0},
	}, out)
}

func TestToValue_MixedTableBecomesMap(t *testing.T) {
	l := lua.NewState()
	l.NewTable()
	l.PushString("a")
	l.RawSetInt(-2, 1)
	l.PushString("b")
	l.SetField(-2, "key")

	out := toValue(l, -1)

	assert.Equal(t, map[string]any{"1": "a", "key": "b"}, out)
}

func TestPushValue_StructGoesThroughJSON(t *testing.T) {
	l := lua.NewState()
	type player struct {
		GameID string `json:"gameId"`
	}

	pushValue(l, []player{{GameID: "7"}})

	assert.Equal(t, []any{map[string]any{"gameId": "7"}}, toValue(l, -1))
}
