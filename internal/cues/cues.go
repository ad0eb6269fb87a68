// Package cues serializes the correction cues attached to phase annotations.
//
// Payloads are JSON validated against an embedded CUE schema in both
// directions, so escaped quotes, nested delimiters and unicode round-trip
// intact while malformed or out-of-schema payloads are rejected with
// services.ErrValidation.
package cues

import (
	"bytes"
	_ "embed"
	"fmt"
	"maps"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/goccy/go-json"

	"fieldsync/internal/services"
)

//go:embed schema.cue
var schemaSource string

// Cue is one coaching note, optionally pinned to a frame.
type Cue struct {
	Key   string `json:"key" yaml:"key"`
	Text  string `json:"text" yaml:"text"`
	Frame *int   `json:"frame,omitempty" yaml:"frame,omitempty"`
}

// Set is the ordered cue list plus free-form string attributes.
type Set struct {
	Items      []Cue             `json:"items" yaml:"items"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// IsEmpty reports whether the set carries no cues and no attributes.
func (s Set) IsEmpty() bool {
	return len(s.Items) == 0 && len(s.Attributes) == 0
}

// Equal compares two sets item by item and attribute by attribute.
func Equal(a, b Set) bool {
	if len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		x, y := a.Items[i], b.Items[i]
		if x.Key != y.Key || x.Text != y.Text {
			return false
		}
		if (x.Frame == nil) != (y.Frame == nil) {
			return false
		}
		if x.Frame != nil && *x.Frame != *y.Frame {
			return false
		}
	}
	return maps.Equal(a.Attributes, b.Attributes)
}

// Keys returns the cue keys in order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		keys = append(keys, item.Key)
	}
	return keys
}

// AttributeKeys returns attribute names sorted.
func (s Set) AttributeKeys() []string {
	return slices.Sorted(maps.Keys(s.Attributes))
}

type validator struct {
	mu  sync.Mutex
	ctx *cue.Context
	set cue.Value
}

var (
	schemaOnce sync.Once
	schema     *validator
	schemaErr  error
)

func loadSchema() (*validator, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		value := ctx.CompileString(schemaSource, cue.Filename("cues.cue"))
		if err := value.Err(); err != nil {
			schemaErr = fmt.Errorf("compile cue schema: %w", err)
			return
		}
		def := value.LookupPath(cue.ParsePath("#Set"))
		if err := def.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Set: %w", err)
			return
		}
		schema = &validator{ctx: ctx, set: def}
	})
	return schema, schemaErr
}

func (v *validator) validate(data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	value := v.ctx.CompileBytes(data, cue.Filename("cues.json"))
	if err := value.Err(); err != nil {
		return err
	}
	return v.set.Unify(value).Validate(cue.Concrete(true))
}

// Encode serializes a set after checking it against the schema.
func Encode(set Set) ([]byte, error) {
	if set.Items == nil {
		set.Items = []Cue{}
	}
	data, err := json.Marshal(set)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "cues", "encode", "marshal", err)
	}
	if err := validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode parses and validates a stored payload. Empty input decodes to an
// empty set.
func Decode(data []byte) (Set, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Set{Items: []Cue{}}, nil
	}
	if err := validate(trimmed); err != nil {
		return Set{}, err
	}
	var set Set
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&set); err != nil {
		return Set{}, services.Wrap(services.ErrValidation, "cues", "decode", "unmarshal", err)
	}
	if set.Items == nil {
		set.Items = []Cue{}
	}
	return set, nil
}

// EncodeString is Encode returning a string for TEXT columns.
func EncodeString(set Set) (string, error) {
	data, err := Encode(set)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func validate(data []byte) error {
	v, err := loadSchema()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "cues", "schema", "", err)
	}
	if err := v.validate(data); err != nil {
		return services.Wrap(services.ErrValidation, "cues", "validate", "payload violates cue schema", err)
	}
	return nil
}
