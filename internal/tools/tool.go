// ABOUTME: Tool definition types: name, description, parameter schema and handler.
// ABOUTME: Params is the loosely-typed JSON object handed to every handler.

package tools

import (
	"context"
	"fmt"
)

// Handler executes a tool. A non-nil error is the failure branch of the result;
// the returned value must be JSON-encodable.
type Handler func(ctx context.Context, params Params) (any, error)

// Tool is a named, schema-described unit of work. Tools are not modified
// after registration.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler
}

// Schema describes a tool's parameters. It is advisory metadata for clients;
// the server does not validate params against it.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property describes a single parameter.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// ObjectSchema builds an object schema. A nil properties map is replaced with
// an empty one so it encodes as {} rather than null.
func ObjectSchema(props map[string]Property, required ...string) Schema {
	if props == nil {
		props = map[string]Property{}
	}
	if required == nil {
		required = []string{}
	}
	return Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// StringArray is the property shape used for lists of strings.
func StringArray(description string) Property {
	return Property{
		Type:        "array",
		Description: description,
		Items:       &Property{Type: "string"},
	}
}

// Params holds decoded invocation parameters.
type Params map[string]any

// String returns the value under key as a string. Missing keys and nulls
// yield "". Non-string scalars are formatted with %v.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns the value under key as a string slice. A single string is
// treated as a one-element list; non-string elements are formatted with %v.
func (p Params) Strings(key string) []string {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	switch vals := v.(type) {
	case []string:
		return vals
	case string:
		return []string{vals}
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}
