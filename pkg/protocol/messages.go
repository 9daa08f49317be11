// ABOUTME: Live API message type definitions
// ABOUTME: Defines the JSON envelopes exchanged with the realtime voice service
package protocol

import (
	"encoding/json"

	"github.com/Resonate-Protocol/ose-go/pkg/audio"
)

// ModalityAudio asks the service to answer with synthesized speech
const ModalityAudio = "AUDIO"

// SetupMessage is the first message a client sends on a new connection
type SetupMessage struct {
	Setup Setup `json:"setup"`
}

// Setup configures the model, voice and persona for the session
type Setup struct {
	Model             string           `json:"model"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
}

// GenerationConfig selects the response modality and voice
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig wraps the voice selection
type SpeechConfig struct {
	VoiceConfig VoiceConfig `json:"voiceConfig"`
}

// VoiceConfig selects a prebuilt voice
type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

// PrebuiltVoiceConfig names a synthesized voice
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Content is a list of parts, used for the system prompt and model turns
type Content struct {
	Parts []Part `json:"parts"`
}

// Part is one piece of content: text or inline media
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob is base64 media with its MIME type
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// RealtimeInputMessage carries captured audio to the service
type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// RealtimeInput holds media chunks. Audio is accepted as an alternative
// single-blob form on the receiving side.
type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks,omitempty"`
	Audio       *Blob  `json:"audio,omitempty"`
}

// ServerMessage is any message sent by the service
type ServerMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *ServerContent   `json:"serverContent,omitempty"`
	Error         *ServerError     `json:"error,omitempty"`
}

// ServerContent carries model output and turn signals
type ServerContent struct {
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// Transcription is recognized or synthesized speech as text
type Transcription struct {
	Text string `json:"text"`
}

// ServerError is reported by the service before it drops a session
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// NewSetupMessage builds the setup envelope for a session configuration
func NewSetupMessage(cfg Config) SetupMessage {
	setup := Setup{
		Model: modelName(cfg.Model),
		GenerationConfig: GenerationConfig{
			ResponseModalities: []string{ModalityAudio},
		},
	}
	if cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: VoiceConfig{
				PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemPrompt != "" {
		setup.SystemInstruction = &Content{Parts: []Part{{Text: cfg.SystemPrompt}}}
	}
	return SetupMessage{Setup: setup}
}

// NewRealtimeInputMessage wraps an encoded wire frame for sending
func NewRealtimeInputMessage(frame audio.WireFrame) RealtimeInputMessage {
	return RealtimeInputMessage{
		RealtimeInput: RealtimeInput{
			MediaChunks: []Blob{{
				MIMEType: frame.MIMEType,
				Data:     encodeBase64(frame.Data),
			}},
		},
	}
}

// Blobs returns every media blob in a realtime input regardless of form
func (r RealtimeInput) Blobs() []Blob {
	blobs := append([]Blob(nil), r.MediaChunks...)
	if r.Audio != nil {
		blobs = append(blobs, *r.Audio)
	}
	return blobs
}

// ToMessage converts server content into a transport-neutral message.
// Only the first inline audio part of the model turn is kept.
func (sc *ServerContent) ToMessage() *Message {
	msg := &Message{
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.InputTranscription != nil {
		msg.InputTranscription = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		msg.OutputTranscription = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.Text != "" {
				msg.Text += p.Text
			}
			if p.InlineData != nil && msg.Audio == nil {
				msg.Audio = &audio.Payload{
					MIMEType: p.InlineData.MIMEType,
					Base64:   p.InlineData.Data,
				}
			}
		}
	}
	return msg
}
