// Package definition loads package definitions: one human-authored file
// per package, in YAML, TOML or JSON, naming the package's sources and
// install steps. Every file is checked against an embedded JSON schema
// before its sources and steps are decoded.
package definition

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/packman/pkg/packman/source"
	"github.com/jamesainslie/packman/pkg/packman/step"
)

// MaxDescription bounds the length of a description.
const MaxDescription = 100

// Extensions lists the recognised definition file extensions in lookup
// order.
var Extensions = []string{".yml", ".yaml", ".toml", ".json"}

var (
	// ErrNotFound is returned for a package without a definition file.
	ErrNotFound = errors.New("package definition not found")

	// ErrInvalid wraps every schema or decoding failure.
	ErrInvalid = errors.New("invalid package definition")
)

//go:embed schema.json
var schemaJSON []byte

var schema = mustCompile(schemaJSON)

func mustCompile(data []byte) *jsonschema.Schema {
	s, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		panic(fmt.Sprintf("compile definition schema: %v", err))
	}
	return s
}

// Schema returns the JSON schema definition files are validated against.
func Schema() []byte {
	return bytes.Clone(schemaJSON)
}

// Definition describes a package and how to fetch and install it.
type Definition struct {
	// ID is the package name: the definition's path relative to the
	// definitions directory, without extension, using '/' separators.
	ID          string
	Name        string
	Description string
	Sources     []source.Source
	Steps       []*step.Step
	// Path is the file the definition was loaded from.
	Path string
}

type document struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Sources     []json.RawMessage `json:"sources"`
	Steps       []json.RawMessage `json:"steps"`
}

// IsDefinitionFile reports whether path has a definition extension.
func IsDefinitionFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ToJSON converts a definition file's content to JSON according to ext.
func ToJSON(data []byte, ext string) ([]byte, error) {
	var doc any
	switch strings.ToLower(ext) {
	case ".json":
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: malformed JSON", ErrInvalid)
		}
		return data, nil
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	case ".toml":
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		doc = m
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrInvalid, ext)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return out, nil
}

// Validate checks a JSON document against the definition schema.
func Validate(data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	fields := make([]string, 0, len(result.Errors))
	for field := range result.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, fmt.Sprintf("%s: %v", field, result.Errors[field]))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// Parse decodes a definition from data, in the format implied by ext.
// Sources are configured with env.
func Parse(data []byte, ext string, env source.Env) (*Definition, error) {
	raw, err := ToJSON(data, ext)
	if err != nil {
		return nil, err
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len([]rune(doc.Description)) > MaxDescription {
		return nil, fmt.Errorf("%w: description exceeds %d characters", ErrInvalid, MaxDescription)
	}

	def := &Definition{Name: doc.Name, Description: doc.Description}
	for i, rawSource := range doc.Sources {
		s, err := source.Registry.Decode(rawSource)
		if err != nil {
			return nil, fmt.Errorf("%w: sources[%d]: %w", ErrInvalid, i, err)
		}
		source.Configure(s, env)
		def.Sources = append(def.Sources, s)
	}
	for i, rawStep := range doc.Steps {
		s, err := step.Decode(rawStep)
		if err != nil {
			return nil, fmt.Errorf("%w: steps[%d]: %w", ErrInvalid, i, err)
		}
		def.Steps = append(def.Steps, s)
	}
	return def, nil
}
