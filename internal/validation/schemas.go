package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// interactionEventSchema validates interaction events arriving on the
// Kafka topic before they are allowed to touch cache versions.
const interactionEventSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "InteractionEvent",
	"type": "object",
	"required": ["user_id", "item_id", "type", "occurred_at"],
	"properties": {
		"user_id": {
			"type": "string",
			"format": "uuid"
		},
		"item_id": {
			"type": "string",
			"format": "uuid"
		},
		"type": {
			"type": "string",
			"enum": ["like", "comment", "share", "collect", "view", "dislike"]
		},
		"occurred_at": {
			"type": "string",
			"format": "date-time"
		}
	},
	"additionalProperties": true
}`

// ValidationError describes one schema violation.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationResult is the outcome of validating one document.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func (r *ValidationResult) Error() string {
	if r.Valid {
		return ""
	}
	messages := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	data, _ := json.Marshal(messages)
	return string(data)
}

// SchemaValidator validates event payloads against compiled JSON schemas.
type SchemaValidator struct {
	interactionEvent *gojsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(interactionEventSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile interaction event schema: %w", err)
	}
	return &SchemaValidator{interactionEvent: schema}, nil
}

// ValidateInteractionEvent validates a raw interaction event payload.
func (sv *SchemaValidator) ValidateInteractionEvent(data []byte) *ValidationResult {
	result, err := sv.interactionEvent.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "document",
				Message: err.Error(),
			}},
		}
	}

	validationResult := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		validationResult.Errors = append(validationResult.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Value:   e.Value(),
		})
	}
	return validationResult
}
