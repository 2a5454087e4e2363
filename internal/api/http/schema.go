package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mind-engage/mindengage-testbot/internal/exam"
)

const maxBody = 1 << 20

var updateSchema = map[string]any{
	"type":     "object",
	"required": []any{"user_id"},
	"properties": map[string]any{
		"user_id":   map[string]any{"type": "string", "minLength": 1},
		"handle":    map[string]any{"type": "string"},
		"full_name": map[string]any{"type": "string"},
		"text":      map[string]any{"type": "string", "maxLength": 4096},
		"callback":  map[string]any{"type": "string", "maxLength": 64},
	},
	"anyOf": []any{
		map[string]any{"required": []any{"text"}},
		map[string]any{"required": []any{"callback"}},
	},
}

var testSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "answer_key", "deadline", "check_time"},
	"properties": map[string]any{
		"id":         map[string]any{"type": "string", "minLength": 1, "maxLength": exam.MaxTestIDLen, "pattern": `\S`},
		"answer_key": map[string]any{"type": "string", "pattern": `\p{L}`},
		"deadline":   map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`},
		"check_time": map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`},
	},
	"additionalProperties": false,
}

// Validator checks request bodies against a compiled JSON schema before
// they are decoded into Go types.
type Validator struct {
	schema *jsonschema.Schema
}

func newValidator(name string, def map[string]any) (*Validator, error) {
	// the compiler wants a parsed JSON value, not Go ints
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return &Validator{schema: s}, nil
}

// mustValidator panics on a broken built-in schema; used at package init.
func mustValidator(name string, def map[string]any) *Validator {
	v, err := newValidator(name, def)
	if err != nil {
		panic(err)
	}
	return v
}

var (
	updateValidator = mustValidator("update", updateSchema)
	testValidator   = mustValidator("test", testSchema)
)

// decode reads at most maxBody bytes, validates them and unmarshals into dst.
func (v *Validator) decode(r io.Reader, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r, maxBody))
	if err != nil {
		return err
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.schema.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return json.NewDecoder(bytes.NewReader(raw)).Decode(dst)
}
