// Package validation checks request bodies against JSON Schemas reflected
// from the DTO structs before they are decoded.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

// ErrMalformed is returned when the body is not parseable JSON.
var ErrMalformed = errors.New("malformed request body")

// FieldError describes one rejected value. Field is a JSON pointer such as "/email".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned when a document parses but breaks its schema.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator compiles one schema per destination type and caches it.
type Validator struct {
	mu        sync.Mutex
	schemas   map[reflect.Type]*jschema.Schema
	reflector *jsonschema.Reflector
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{
		schemas: make(map[reflect.Type]*jschema.Schema),
		reflector: &jsonschema.Reflector{
			Anonymous:                 true,
			DoNotReference:            true,
			AllowAdditionalProperties: true,
		},
	}
}

// Decode reads a JSON document from r, validates it against the schema of
// dst's type and fills dst. dst must be a pointer to a struct.
func (v *Validator) Decode(r io.Reader, dst any) error {
	doc, err := jschema.UnmarshalJSON(r)
	if err != nil {
		return oops.Code("VALIDATION_MALFORMED").Wrap(errors.Join(ErrMalformed, err))
	}
	return v.DecodeValue(doc, dst)
}

// DecodeValue validates an already-parsed document and fills dst.
// Top-level null members are treated as absent.
func (v *Validator) DecodeValue(doc any, dst any) error {
	if obj, ok := doc.(map[string]any); ok {
		for k, val := range obj {
			if val == nil {
				delete(obj, k)
			}
		}
	}

	sch, err := v.schemaFor(dst)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		var ve *jschema.ValidationError
		if errors.As(err, &ve) {
			return &Error{Fields: fieldErrors(ve)}
		}
		return oops.Code("VALIDATION_FAILED").Wrap(err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return oops.Code("VALIDATION_DECODE_FAILED").Wrap(err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(dst); err != nil {
		return oops.Code("VALIDATION_DECODE_FAILED").Wrap(err)
	}
	return nil
}

// Schema returns the JSON Schema generated for dst's type.
func (v *Validator) Schema(dst any) ([]byte, error) {
	return json.MarshalIndent(v.reflector.Reflect(dst), "", "  ")
}

func (v *Validator) schemaFor(dst any) (*jschema.Schema, error) {
	t := reflect.TypeOf(dst)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, oops.Code("VALIDATION_BAD_TARGET").Errorf("decode target must be a struct pointer, got %T", dst)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if sch, ok := v.schemas[t]; ok {
		return sch, nil
	}

	raw, err := v.Schema(dst)
	if err != nil {
		return nil, oops.Code("VALIDATION_SCHEMA_FAILED").Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("VALIDATION_SCHEMA_FAILED").Wrap(err)
	}

	url := t.Elem().Name() + ".json"
	c := jschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.Code("VALIDATION_SCHEMA_FAILED").With("type", t.String()).Wrap(err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("VALIDATION_SCHEMA_FAILED").With("type", t.String()).Wrap(err)
	}
	v.schemas[t] = sch
	return sch, nil
}

func fieldErrors(ve *jschema.ValidationError) []FieldError {
	var out []FieldError
	for _, unit := range ve.BasicOutput().Errors {
		if unit.Error == nil {
			continue
		}
		switch k := unit.Error.Kind.(type) {
		case *kind.Schema, *kind.Group, *kind.AllOf:
			continue
		case *kind.Required:
			for _, name := range k.Missing {
				out = append(out, FieldError{
					Field:   unit.InstanceLocation + "/" + name,
					Message: "field required",
				})
			}
		default:
			out = append(out, FieldError{
				Field:   unit.InstanceLocation,
				Message: unit.Error.String(),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
