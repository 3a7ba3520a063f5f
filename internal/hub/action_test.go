package hub_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"studysprint/backend/internal/hub"
	"studysprint/backend/internal/model"
)

func TestParseActionAcceptsKnownTypes(t *testing.T) {
	for _, raw := range []string{
		`{"type":"pause"}`,
		`{"type":"resume"}`,
		`{"type":"end","notes":"done","endingPage":12}`,
		`{"type":"registerActivity","kind":"keyboard"}`,
		`{"type":"startCycle","cycleType":"work","durationSeconds":1500}`,
		`{"type":"completeCycle","focusRating":4}`,
	} {
		_, apiErr := hub.ParseAction([]byte(raw))
		require.Nil(t, apiErr, "raw: %s", raw)
	}
}

func TestParseActionDefaultsActivityKind(t *testing.T) {
	a, apiErr := hub.ParseAction([]byte(`{"type":"registerActivity"}`))
	require.Nil(t, apiErr)
	require.Equal(t, model.SignalPointer, a.Kind)
}

func TestParseActionRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"type":`,
		"missing type":      `{}`,
		"unknown type":      `{"type":"selfDestruct"}`,
		"bad activity kind": `{"type":"registerActivity","kind":"psychic"}`,
		"bad cycle type":    `{"type":"startCycle","cycleType":"nap","durationSeconds":60}`,
		"zero duration":     `{"type":"startCycle","cycleType":"work"}`,
	}
	for name, raw := range cases {
		_, apiErr := hub.ParseAction([]byte(raw))
		require.NotNil(t, apiErr, "case %s", name)
		require.Equal(t, "invalid_request", apiErr.Kind, "case %s", name)
	}
}
