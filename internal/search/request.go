// internal/search/request.go
package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidRequest is returned when a request body fails schema validation.
var ErrInvalidRequest = errors.New("invalid search request")

// requestSchema describes the body accepted by the retrieval service.
var requestSchema = map[string]any{
	"type":     "object",
	"required": []any{"query", "top_k", "temperature"},
	"properties": map[string]any{
		"query": map[string]any{
			"type":      "string",
			"minLength": 1,
			"pattern":   `\S`,
		},
		"top_k": map[string]any{
			"type":    "integer",
			"minimum": 1,
		},
		"temperature": map[string]any{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
	},
}

var requestSchemaLoader = gojsonschema.NewGoLoader(requestSchema)

// Validate checks the request against the request schema.
func (r Request) Validate() error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal request for validation: %w", err)
	}
	result, err := gojsonschema.Validate(requestSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(details, "; "))
}
