package aleph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult is the outcome of checking a record against its schema
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Err returns the validation errors as a single error, or nil
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrMalformedRecord, r.Errors)
}

// ErrMalformedRecord is returned for an aggregate value that does not match
// the record schema of its key
var ErrMalformedRecord = errors.New("malformed aggregate record")

// Schema validates aggregate values for one key
type Schema struct {
	schema *gojsonschema.Schema
}

// NewSchema compiles a JSON schema document
func NewSchema(document string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Schema{schema: compiled}, nil
}

// MustSchema is like NewSchema but panics on an invalid document.
// For package-level schema variables.
func MustSchema(document string) *Schema {
	s, err := NewSchema(document)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks raw against the schema
func (s *Schema) Validate(raw json.RawMessage) ValidationResult {
	if len(raw) == 0 {
		return ValidationResult{Valid: false, Errors: []string{"empty document"}}
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("Schema validation failed: %v", err)},
		}
	}

	if result.Valid() {
		return ValidationResult{Valid: true}
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return ValidationResult{
		Valid:  false,
		Errors: problems,
	}
}
