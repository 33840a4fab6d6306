package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// FieldSchema is a validated zone field schema. The extraction service consumes
// an OpenAPI-3 subset, so the structural type is an openapi3.Schema directly.
type FieldSchema struct {
	raw  string
	spec *openapi3.Schema
}

// Parse validates a schema definition at the editing boundary. It rejects
// malformed JSON, schemas the OpenAPI validator refuses, and object schemas
// without a properties map. Use ResolveFields on the read path instead.
func Parse(raw string) (*FieldSchema, error) {
	var spec openapi3.Schema
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := spec.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate schema: %w", err)
	}
	if len(spec.Properties) == 0 {
		return nil, fmt.Errorf("schema defines no properties")
	}
	return &FieldSchema{raw: raw, spec: &spec}, nil
}

// Raw returns the serialized form the schema was parsed from.
func (s *FieldSchema) Raw() string { return s.raw }

// FieldKeys returns the recognized measurement keys in sorted order.
func (s *FieldSchema) FieldKeys() []string {
	keys := make([]string, 0, len(s.spec.Properties))
	for k := range s.spec.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveFields parses a zone schema leniently. Authoring errors degrade to an
// empty field set; capture must never fail because a schema is malformed.
func ResolveFields(raw string) []string {
	s, err := Parse(raw)
	if err != nil {
		return nil
	}
	return s.FieldKeys()
}

// LabelFor resolves the display label for a field key. Labels are a convenience
// overlay: an unknown key is returned verbatim.
func LabelFor(key string, labels map[string]string) string {
	if l, ok := labels[key]; ok && l != "" {
		return l
	}
	return key
}
