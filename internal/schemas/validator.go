// Package schemas validates OCPP action payloads against the JSON Schemas
// published with the protocol. Schemas are embedded and compiled once at
// startup.
package schemas

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed ocpp2.0.1/*.json
var schemaFS embed.FS

var (
	ErrUnknownAction  = errors.New("no schema for action")
	ErrInvalidPayload = errors.New("payload failed schema validation")
)

type actionSchemas struct {
	request  *jsonschema.Schema
	response *jsonschema.Schema
}

// Validator holds the compiled request/response schema pair per action.
type Validator struct {
	actions map[string]*actionSchemas
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft6

	entries, err := fs.ReadDir(schemaFS, "ocpp2.0.1")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded schemas: %w", err)
	}

	actions := make(map[string]*actionSchemas)
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".json")
		data, err := schemaFS.ReadFile("ocpp2.0.1/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to add schema resource %s: %w", entry.Name(), err)
		}
		compiled, err := compiler.Compile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", entry.Name(), err)
		}

		switch {
		case strings.HasSuffix(name, "Request"):
			action := strings.TrimSuffix(name, "Request")
			schemasFor(actions, action).request = compiled
		case strings.HasSuffix(name, "Response"):
			action := strings.TrimSuffix(name, "Response")
			schemasFor(actions, action).response = compiled
		}
	}

	return &Validator{actions: actions}, nil
}

func schemasFor(actions map[string]*actionSchemas, action string) *actionSchemas {
	if _, ok := actions[action]; !ok {
		actions[action] = &actionSchemas{}
	}
	return actions[action]
}

// Known reports whether the action has any schema at all.
func (v *Validator) Known(action string) bool {
	_, ok := v.actions[action]
	return ok
}

// Actions returns the sorted-by-map-iteration set of supported actions.
func (v *Validator) Actions() []string {
	actions := make([]string, 0, len(v.actions))
	for action := range v.actions {
		actions = append(actions, action)
	}
	return actions
}

func (v *Validator) ValidateRequest(action string, payload json.RawMessage) error {
	return v.validate(action, payload, true)
}

func (v *Validator) ValidateResponse(action string, payload json.RawMessage) error {
	return v.validate(action, payload, false)
}

func (v *Validator) validate(action string, payload json.RawMessage, request bool) error {
	schemas, ok := v.actions[action]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	schema := schemas.response
	if request {
		schema = schemas.request
	}
	if schema == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, action, err)
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, action, err)
	}
	return nil
}
