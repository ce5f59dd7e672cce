package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInteractionEvent(t *testing.T) {
	validator, err := NewSchemaValidator()
	require.NoError(t, err)

	valid := `{
		"user_id": "11111111-1111-1111-1111-111111111111",
		"item_id": "22222222-2222-2222-2222-222222222222",
		"type": "like",
		"occurred_at": "2026-08-01T12:00:00Z"
	}`

	t.Run("well-formed event passes", func(t *testing.T) {
		result := validator.ValidateInteractionEvent([]byte(valid))
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("extra fields are tolerated", func(t *testing.T) {
		event := `{
			"user_id": "11111111-1111-1111-1111-111111111111",
			"item_id": "22222222-2222-2222-2222-222222222222",
			"type": "share",
			"occurred_at": "2026-08-01T12:00:00Z",
			"session_id": "abc123"
		}`
		result := validator.ValidateInteractionEvent([]byte(event))
		assert.True(t, result.Valid)
	})

	t.Run("missing required field fails", func(t *testing.T) {
		event := `{
			"user_id": "11111111-1111-1111-1111-111111111111",
			"type": "like",
			"occurred_at": "2026-08-01T12:00:00Z"
		}`
		result := validator.ValidateInteractionEvent([]byte(event))
		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Errors)
		assert.Contains(t, result.Error(), "item_id")
	})

	t.Run("unknown interaction type fails", func(t *testing.T) {
		event := `{
			"user_id": "11111111-1111-1111-1111-111111111111",
			"item_id": "22222222-2222-2222-2222-222222222222",
			"type": "upvote",
			"occurred_at": "2026-08-01T12:00:00Z"
		}`
		result := validator.ValidateInteractionEvent([]byte(event))
		assert.False(t, result.Valid)
	})

	t.Run("malformed JSON fails", func(t *testing.T) {
		result := validator.ValidateInteractionEvent([]byte(`{"user_id": `))
		assert.False(t, result.Valid)
		require.NotEmpty(t, result.Errors)
		assert.Equal(t, "document", result.Errors[0].Field)
	})

	t.Run("wrong field type fails", func(t *testing.T) {
		event := `{
			"user_id": 42,
			"item_id": "22222222-2222-2222-2222-222222222222",
			"type": "like",
			"occurred_at": "2026-08-01T12:00:00Z"
		}`
		result := validator.ValidateInteractionEvent([]byte(event))
		assert.False(t, result.Valid)
	})
}
