// ABOUTME: Persona definition for the assistant
// ABOUTME: Loads model, voice, system prompt and user-facing messages from YAML
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed personas/default.yaml
var defaultPersona []byte

// Persona describes who the assistant is and how the client talks to the user
type Persona struct {
	Name         string   `yaml:"name"`
	Model        string   `yaml:"model"`
	Voice        string   `yaml:"voice"`
	SystemPrompt string   `yaml:"system_prompt"`
	Messages     Messages `yaml:"messages"`
}

// Messages are the status and error texts shown in the UI
type Messages struct {
	ErrorPrefix      string `yaml:"error_prefix"`
	Listening        string `yaml:"listening"`
	TransportError   string `yaml:"transport_error"`
	Closed           string `yaml:"closed"`
	ConnectFailed    string `yaml:"connect_failed"`
	Reconnecting     string `yaml:"reconnecting"`
	ReconnectFailed  string `yaml:"reconnect_failed"`
	Starting         string `yaml:"starting"`
	Recording        string `yaml:"recording"`
	SendFailed       string `yaml:"send_failed"`
	PermissionDenied string `yaml:"permission_denied"`
	MicrophoneError  string `yaml:"microphone_error"`
	Stopped          string `yaml:"stopped"`
	Reset            string `yaml:"reset"`
	PlaybackError    string `yaml:"playback_error"`
}

// DefaultPersona returns the built-in persona
func DefaultPersona() *Persona {
	p, err := LoadPersonaFromReader(bytes.NewReader(defaultPersona))
	if err != nil {
		panic(fmt.Sprintf("built-in persona is invalid: %v", err))
	}
	return p
}

// LoadPersona reads the persona at path, or the built-in one when path is empty
func LoadPersona(path string) (*Persona, error) {
	if path == "" {
		return DefaultPersona(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persona: open %q: %w", path, err)
	}
	defer f.Close()

	p, err := LoadPersonaFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("persona: parse %q: %w", path, err)
	}
	return p, nil
}

// LoadPersonaFromReader decodes a persona and fills missing messages from
// the built-in persona
func LoadPersonaFromReader(r io.Reader) (*Persona, error) {
	p := &Persona{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("persona: decode yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.Messages.fillFrom(builtinMessages())
	return p, nil
}

// Validate checks the fields a session cannot start without
func (p *Persona) Validate() error {
	var errs []error
	if p.Model == "" {
		errs = append(errs, errors.New("persona.model is required"))
	}
	if p.SystemPrompt == "" {
		errs = append(errs, errors.New("persona.system_prompt is required"))
	}
	return errors.Join(errs...)
}

// builtinMessages decodes only the messages of the embedded persona
func builtinMessages() Messages {
	var p Persona
	if err := yaml.Unmarshal(defaultPersona, &p); err != nil {
		return Messages{}
	}
	return p.Messages
}

// fillFrom copies every empty message from defaults
func (m *Messages) fillFrom(defaults Messages) {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&m.ErrorPrefix, defaults.ErrorPrefix)
	fill(&m.Listening, defaults.Listening)
	fill(&m.TransportError, defaults.TransportError)
	fill(&m.Closed, defaults.Closed)
	fill(&m.ConnectFailed, defaults.ConnectFailed)
	fill(&m.Reconnecting, defaults.Reconnecting)
	fill(&m.ReconnectFailed, defaults.ReconnectFailed)
	fill(&m.Starting, defaults.Starting)
	fill(&m.Recording, defaults.Recording)
	fill(&m.SendFailed, defaults.SendFailed)
	fill(&m.PermissionDenied, defaults.PermissionDenied)
	fill(&m.MicrophoneError, defaults.MicrophoneError)
	fill(&m.Stopped, defaults.Stopped)
	fill(&m.Reset, defaults.Reset)
	fill(&m.PlaybackError, defaults.PlaybackError)
}
