package rules

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed ruleset.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// ErrInvalidRuleSet is wrapped by every validation failure.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// FieldError is a single schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists the schema violations of a rule set document.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Field == "" {
			parts = append(parts, fe.Message)
		} else {
			parts = append(parts, fe.Field+": "+fe.Message)
		}
	}
	return fmt.Sprintf("%s: %s", ErrInvalidRuleSet, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRuleSet }

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("ruleset.schema.json", strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("ruleset.schema.json")
	})
	return schema, schemaErr
}

// Validate checks a raw rule set document against the rule set schema.
func Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	return validateValue(doc)
}

func validateValue(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	err = s.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	out := &ValidationError{}
	collectSchemaErrors(verr, out)
	return out
}

func collectSchemaErrors(err *jsonschema.ValidationError, out *ValidationError) {
	if len(err.Causes) == 0 {
		field := strings.ReplaceAll(strings.TrimPrefix(err.InstanceLocation, "/"), "/", ".")
		out.Errors = append(out.Errors, FieldError{Field: field, Message: err.Message})
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, out)
	}
}

// Parse validates and decodes a rule set document. Missing top-level
// fields take the values of Default.
func Parse(data []byte) (*RuleSet, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	rs := Default()
	if err := json.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	if rs.Rules == nil {
		rs.Rules = []Rule{}
	}
	return rs, nil
}

// FromMap decodes a rule set held as loosely typed configuration, as the
// mock plugin receives it.
func FromMap(m map[string]any) (*RuleSet, error) {
	if len(m) == 0 {
		return Default(), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	return Parse(data)
}

// ToMap converts rs into loosely typed configuration.
func (rs *RuleSet) ToMap() map[string]any {
	data, _ := json.Marshal(rs)
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}
