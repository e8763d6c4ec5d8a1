package snapshot_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tridentbot/erlc-ingest/internal/snapshot"
)

func TestNormalize_ObjectPassesThrough(t *testing.T) {
	in := map[string]any{
		"Name":           "Server",
		"CurrentPlayers": float64(5),
		"Nested":         map[string]any{"a": []any{float64(1), "two"}},
	}
	out := snapshot.Normalize(in)
	assert.Equal(t, "Server", out["Name"])
	assert.Equal(t, float64(5), out["CurrentPlayers"])
	nested, ok := out["Nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{float64(1), "two"}, nested["a"])
}

func TestNormalize_WrapsNonObjects(t *testing.T) {
	cases := []struct {
		name string
		in   any
	}{
		{"scalar", float64(42)},
		{"string", "hello"},
		{"array", []any{"a", "b"}},
		{"nil", nil},
		{"bool", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := snapshot.Normalize(tc.in)
			require.Len(t, out, 1)
			assert.Contains(t, out, "value")
		})
	}
}

func TestNormalize_NonFiniteNumbers(t *testing.T) {
	out := snapshot.Normalize(map[string]any{
		"nan":    math.NaN(),
		"inf":    math.Inf(1),
		"neginf": math.Inf(-1),
		"fine":   float64(1.5),
	})
	assert.Equal(t, "NaN", out["nan"])
	assert.Equal(t, "+Inf", out["inf"])
	assert.Equal(t, "-Inf", out["neginf"])
	assert.Equal(t, 1.5, out["fine"])
}

func TestNormalize_LargeIdentifiersBecomeStrings(t *testing.T) {
	out := snapshot.Normalize(map[string]any{
		"guild": int64(1234567890123456789), // beyond 2^53
		"small": int64(42),
		"big":   uint64(math.MaxUint64),
	})
	assert.Equal(t, "1234567890123456789", out["guild"])
	assert.Equal(t, float64(42), out["small"])
	assert.Equal(t, "18446744073709551615", out["big"])
}

func TestNormalize_NonSerializableValues(t *testing.T) {
	out := snapshot.Normalize(map[string]any{
		"fn": func() {},
		"ch": make(chan int),
	})
	assert.Equal(t, "[func()]", out["fn"])
	assert.Equal(t, "[chan int]", out["ch"])
}

func TestNormalize_ErrorsBecomeMessages(t *testing.T) {
	out := snapshot.Normalize(errors.New("boom"))
	assert.Equal(t, "boom", out["value"])
}

func TestNormalize_CyclicMap(t *testing.T) {
	m := map[string]any{"name": "self"}
	m["self"] = m

	var out map[string]any
	require.NotPanics(t, func() { out = snapshot.Normalize(m) })
	assert.Equal(t, "self", out["name"])
	assert.Equal(t, snapshot.CycleSentinel, out["self"])
}

func TestNormalize_CyclicSlice(t *testing.T) {
	s := make([]any, 2)
	s[0] = "head"
	s[1] = s

	out := snapshot.Normalize(s)
	inner, ok := out["value"].([]any)
	require.True(t, ok)
	assert.Equal(t, "head", inner[0])
	assert.Equal(t, snapshot.CycleSentinel, inner[1])
}

func TestNormalize_SharedButAcyclicNotFlagged(t *testing.T) {
	shared := map[string]any{"k": "v"}
	out := snapshot.Normalize(map[string]any{"a": shared, "b": shared})
	assert.Equal(t, map[string]any{"k": "v"}, out["a"])
	assert.Equal(t, map[string]any{"k": "v"}, out["b"])
}

func TestNormalize_Idempotent(t *testing.T) {
	m := map[string]any{"loop": map[string]any{}}
	m["loop"].(map[string]any)["back"] = m
	inputs := []any{
		map[string]any{"a": float64(1), "b": []any{"x", math.NaN()}},
		"bare string",
		[]any{float64(1), float64(2)},
		m,
	}
	for _, in := range inputs {
		once := snapshot.Normalize(in)
		twice := snapshot.Normalize(once)
		assert.Equal(t, once, twice)
	}
}

func TestNormalize_StructsBecomeObjects(t *testing.T) {
	type status struct {
		Name    string
		Players int
		hidden  bool //nolint:unused // exercises unexported-field skipping
	}
	out := snapshot.Normalize(status{Name: "srv", Players: 3})
	assert.Equal(t, "srv", out["Name"])
	assert.Equal(t, float64(3), out["Players"])
	assert.NotContains(t, out, "hidden")
}
