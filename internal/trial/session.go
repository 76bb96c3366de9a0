// Package trial loads text entry sessions and evaluates their trials for
// throughput.
package trial

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"tetmeter/internal/codec"
)

// SessionVersion is the only session document version understood.
const SessionVersion = 1

//go:embed session.schema.json
var schemaJSON []byte

const schemaURL = "session.schema.json"

var sessionSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("trial: add schema resource: %v", err))
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("trial: compile schema: %v", err))
	}
	return schema
}

// Session is a batch of transcription trials.
type Session struct {
	Version int     `json:"version" yaml:"version" toml:"version"`
	Name    string  `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Trials  []Trial `json:"trials" yaml:"trials" toml:"trials"`
}

// Trial is one presented/transcribed pair and its entry time.
type Trial struct {
	ID             string  `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Participant    string  `json:"participant,omitempty" yaml:"participant,omitempty" toml:"participant,omitempty"`
	Method         string  `json:"method,omitempty" yaml:"method,omitempty" toml:"method,omitempty"`
	Presented      string  `json:"presented" yaml:"presented" toml:"presented"`
	Transcribed    string  `json:"transcribed" yaml:"transcribed" toml:"transcribed"`
	ElapsedSeconds float64 `json:"elapsed_seconds" yaml:"elapsed_seconds" toml:"elapsed_seconds"`
}

// SchemaError reports a session document that does not match the session
// schema.
type SchemaError struct {
	Source string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("trial: invalid session: %v", e.Err)
	}
	return fmt.Sprintf("trial: invalid session %s: %v", e.Source, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Decode parses and schema-validates a session document.
func Decode(data []byte, format codec.Format) (*Session, error) {
	if err := Validate(data, format); err != nil {
		return nil, err
	}
	return Unmarshal(data, format)
}

// Unmarshal parses a session document without schema validation.
func Unmarshal(data []byte, format codec.Format) (*Session, error) {
	var s Session
	var err error
	switch format {
	case codec.FormatJSON:
		err = json.Unmarshal(data, &s)
	case codec.FormatYAML:
		err = yaml.Unmarshal(data, &s)
	case codec.FormatTOML:
		err = toml.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("%w: %v", codec.ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s session: %w", format, err)
	}
	return &s, nil
}

// Validate checks a session document against the embedded schema. YAML and
// TOML documents are validated through their JSON equivalent.
func Validate(data []byte, format codec.Format) error {
	instance, err := toInstance(data, format)
	if err != nil {
		return err
	}
	if err := sessionSchema.Validate(instance); err != nil {
		return &SchemaError{Err: err}
	}
	return nil
}

func toInstance(data []byte, format codec.Format) (any, error) {
	var raw any
	switch format {
	case codec.FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode json session: %w", err)
		}
		return raw, nil
	case codec.FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode yaml session: %w", err)
		}
	case codec.FormatTOML:
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode toml session: %w", err)
		}
		raw = m
	default:
		return nil, fmt.Errorf("%w: %v", codec.ErrUnknownFormat, format)
	}

	// Re-encode so the validator only sees JSON value types.
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert %s session: %w", format, err)
	}
	var instance any
	if err := json.Unmarshal(buf, &instance); err != nil {
		return nil, fmt.Errorf("convert %s session: %w", format, err)
	}
	return instance, nil
}

// LoadFile reads a session from path, choosing the format by extension.
// When validate is set the document is checked against the session schema.
func LoadFile(path string, validate bool) (*Session, error) {
	format, err := codec.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var s *Session
	if validate {
		s, err = Decode(data, format)
	} else {
		s, err = Unmarshal(data, format)
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		schemaErr.Source = path
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
