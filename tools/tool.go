// Package tools implements the tool registry and dispatch layer. Tools are
// plain Go functions described by a Descriptor; the registry exports their
// schemas to the model and routes invocations back to them.
package tools

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// DefaultTimeout bounds a single tool invocation when the descriptor does
// not set its own.
const DefaultTimeout = 30 * time.Second

// Param describes one tool parameter.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"-"`
}

// Func is the uniform tool entry point. Arguments arrive as a decoded JSON
// object; the returned value is serialized into the observation.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Descriptor binds a tool name to its callable and parameter contract.
type Descriptor struct {
	Name        string
	Description string
	Params      map[string]Param
	Timeout     time.Duration
	Fn          Func
}

// Schema renders the descriptor's parameter contract as a JSON schema
// object. Required parameter names are collected into a single top-level
// list; the per-parameter objects never carry a required key.
func (d Descriptor) Schema() (json.RawMessage, error) {
	properties := make(map[string]map[string]string, len(d.Params))
	required := make([]string, 0, len(d.Params))
	for name, p := range d.Params {
		prop := map[string]string{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return json.Marshal(schema)
}

func (d Descriptor) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}
