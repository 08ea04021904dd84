package typeid_test

import (
	"encoding/json"
	"testing"

	"github.com/esignhq/esign/internal/typeid"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	id := typeid.New[typeid.EnvelopePrefix]()
	s := id.String()
	require.Contains(t, s, "esign_envelope_")

	parsed, err := typeid.Parse[typeid.EnvelopePrefix](s)
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseWrongPrefix(t *testing.T) {
	id := typeid.New[typeid.EnvelopePrefix]()
	_, err := typeid.Parse[typeid.TemplatePrefix](id.String())
	require.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID typeid.Recipient `json:"id"`
	}
	w := wrapper{ID: typeid.New[typeid.RecipientPrefix]()}

	b, err := json.Marshal(w)
	require.NoError(t, err)

	var out wrapper
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, w.ID, out.ID)
}

func TestNilID(t *testing.T) {
	var id typeid.Template
	require.True(t, id.IsNil())
}
