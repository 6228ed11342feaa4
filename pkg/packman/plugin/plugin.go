// Package plugin decodes tagged configuration into registered
// implementations. A definition entry such as
//
//	{"type": "github", "repository": "owner/repo"}
//
// is dispatched on its tag field to exactly one registered decoder; the
// remaining fields must match that decoder's configuration exactly.
package plugin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownVariant is matched by UnknownVariantError.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrMissingTag is returned when an entry has no tag field.
	ErrMissingTag = errors.New("missing tag")
)

// UnknownVariantError reports a tag value nothing is registered under.
type UnknownVariantError struct {
	Kind  string
	Tag   string
	Value string
	Known []string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown %s %s %q (known: %s)", e.Kind, e.Tag, e.Value, strings.Join(e.Known, ", "))
}

// Is matches ErrUnknownVariant.
func (e *UnknownVariantError) Is(target error) bool {
	return target == ErrUnknownVariant
}

// Decoder builds a T from an entry's fields, tag excluded.
type Decoder[T any] func(raw json.RawMessage) (T, error)

// Registry maps tag values to decoders.
type Registry[T any] struct {
	kind string
	tag  string

	mu       sync.RWMutex
	decoders map[string]Decoder[T]
}

// NewRegistry returns an empty registry for kind (used in errors) keyed on
// the field tag.
func NewRegistry[T any](kind, tag string) *Registry[T] {
	return &Registry[T]{kind: kind, tag: tag, decoders: map[string]Decoder[T]{}}
}

// Tag returns the discriminator field name.
func (r *Registry[T]) Tag() string { return r.tag }

// Register adds dec under name. Registering a name twice panics.
func (r *Registry[T]) Register(name string, dec Decoder[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.decoders[name]; dup {
		panic(fmt.Sprintf("plugin: %s %q registered twice", r.kind, name))
	}
	r.decoders[name] = dec
}

// Names returns the registered tag values, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode dispatches raw on its tag field.
func (r *Registry[T]) Decode(raw json.RawMessage) (T, error) {
	var zero T
	fields, value, err := SplitTag(raw, r.tag)
	if err != nil {
		return zero, fmt.Errorf("decoding %s: %w", r.kind, err)
	}

	r.mu.RLock()
	dec, ok := r.decoders[value]
	r.mu.RUnlock()
	if !ok {
		return zero, &UnknownVariantError{Kind: r.kind, Tag: r.tag, Value: value, Known: r.Names()}
	}

	out, err := dec(fields)
	if err != nil {
		return zero, fmt.Errorf("decoding %s %q: %w", r.kind, value, err)
	}
	return out, nil
}

// DecodeAll decodes every entry, stopping at the first failure.
func (r *Registry[T]) DecodeAll(raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		v, err := r.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s %d: %w", r.kind, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// SplitTag removes the tag field from the JSON object raw and returns the
// remaining fields and the tag's string value.
func SplitTag(raw json.RawMessage, tag string) (json.RawMessage, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, "", err
	}
	rawTag, ok := fields[tag]
	if !ok {
		return nil, "", fmt.Errorf("%w %q", ErrMissingTag, tag)
	}
	var value string
	if err := json.Unmarshal(rawTag, &value); err != nil {
		return nil, "", fmt.Errorf("field %q: %w", tag, err)
	}
	delete(fields, tag)

	rest, err := json.Marshal(fields)
	if err != nil {
		return nil, "", err
	}
	return rest, value, nil
}

// Strict returns a Decoder that decodes fields into a C, rejecting unknown
// fields, and hands it to build.
func Strict[C, T any](build func(C) (T, error)) Decoder[T] {
	return func(raw json.RawMessage) (T, error) {
		var cfg C
		if err := DecodeStrict(raw, &cfg); err != nil {
			var zero T
			return zero, err
		}
		return build(cfg)
	}
}

// DecodeStrict unmarshals raw into v, rejecting unknown fields.
func DecodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
