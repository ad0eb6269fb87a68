package cues_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/cues"
	"fieldsync/internal/services"
)

func intPtr(v int) *int { return &v }

func TestEncodeDecodeKeepsEscapesAndDelimiters(t *testing.T) {
	set := cues.Set{
		Items: []cues.Cue{
			{Key: "knee_drive", Text: `say "drive, drive" then {pause}`, Frame: intPtr(42)},
			{Key: "arm.swing", Text: "keep [elbows] at 90°; don't cross: midline"},
		},
		Attributes: map[string]string{
			"coach":  `O"Neil`,
			"layout": `{"nested": [1, 2]}`,
		},
	}

	data, err := cues.Encode(set)
	require.NoError(t, err)

	decoded, err := cues.Decode(data)
	require.NoError(t, err)
	assert.True(t, cues.Equal(set, decoded), "round trip changed the set: %+v", decoded)
	assert.Equal(t, []string{"knee_drive", "arm.swing"}, decoded.Keys())
	assert.Equal(t, []string{"coach", "layout"}, decoded.AttributeKeys())
}

func TestDecodeEmptyPayload(t *testing.T) {
	set, err := cues.Decode([]byte("  "))
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())
	assert.NotNil(t, set.Items)
}

func TestDecodeRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"malformed json":   `{"items": [`,
		"unknown field":    `{"items": [], "extra": 1}`,
		"negative frame":   `{"items": [{"key": "a", "text": "b", "frame": -1}]}`,
		"empty text":       `{"items": [{"key": "a", "text": ""}]}`,
		"bad key":          `{"items": [{"key": "Bad Key", "text": "b"}]}`,
		"non string attr":  `{"items": [], "attributes": {"n": 3}}`,
		"items not a list": `{"items": {"key": "a"}}`,
		"fractional frame": `{"items": [{"key": "a", "text": "b", "frame": 1.5}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := cues.Decode([]byte(payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, services.ErrValidation)
		})
	}
}

func TestEncodeRejectsInvalidSet(t *testing.T) {
	_, err := cues.Encode(cues.Set{Items: []cues.Cue{{Key: "ok", Text: ""}}})
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestEqual(t *testing.T) {
	a := cues.Set{Items: []cues.Cue{{Key: "a", Text: "x", Frame: intPtr(1)}}}
	b := cues.Set{Items: []cues.Cue{{Key: "a", Text: "x", Frame: intPtr(1)}}}
	assert.True(t, cues.Equal(a, b))

	b.Items[0].Frame = intPtr(2)
	assert.False(t, cues.Equal(a, b))

	b.Items[0].Frame = nil
	assert.False(t, cues.Equal(a, b))

	assert.True(t, cues.Equal(cues.Set{}, cues.Set{Attributes: map[string]string{}}))
}
