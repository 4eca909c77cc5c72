package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaType is a JSON Schema primitive type.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
)

// Schema is the declared output shape of a model task. It marshals to a
// plain JSON Schema subset understood by both model backends.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// MarshalJSON satisfies json.Marshaler so the schema can be handed to
// clients that accept one.
func (s *Schema) MarshalJSON() ([]byte, error) {
	type alias Schema
	return json.Marshal((*alias)(s))
}

// Validate checks a decoded value against the schema: types, enums and
// required properties. Extra properties are ignored.
func (s *Schema) Validate(v any) error {
	return s.validate("$", v)
}

func (s *Schema) validate(path string, v any) error {
	switch s.Type {
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object", path)
		}
		for _, name := range s.Required {
			val, present := obj[name]
			if !present || val == nil {
				return fmt.Errorf("%s.%s: required field missing", path, name)
			}
		}
		for name, prop := range s.Properties {
			val, present := obj[name]
			if !present || val == nil {
				continue
			}
			if err := prop.validate(path+"."+name, val); err != nil {
				return err
			}
		}
	case TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", path)
		}
		if s.Items != nil {
			for i, item := range arr {
				if err := s.Items.validate(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
					return err
				}
			}
		}
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s: expected string", path)
		}
		if len(s.Enum) > 0 && !containsFold(s.Enum, str) {
			return fmt.Errorf("%s: %q not in %v", path, str, s.Enum)
		}
	case TypeInteger, TypeNumber:
		if _, ok := v.(float64); !ok {
			return fmt.Errorf("%s: expected number", path)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", path)
		}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	s = strings.TrimSpace(s)
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
