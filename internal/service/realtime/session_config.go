package realtime

import (
	"encoding/json"

	"github.com/hotslice/voicedesk/internal/config"
)

// AudioFormatMulaw matches the telephony side's native codec so no
// transcoding happens between the two sockets.
const AudioFormatMulaw = "g711_ulaw"

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

// InputTranscription enables transcription of caller audio.
type InputTranscription struct {
	Model string `json:"model"`
}

// Tool declares one callable action schema to the endpoint.
type Tool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// SessionConfig is the one-time per-call session declaration sent right
// after connecting.
type SessionConfig struct {
	Modalities              []string            `json:"modalities"`
	Voice                   string              `json:"voice,omitempty"`
	Instructions            string              `json:"instructions,omitempty"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *InputTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection      `json:"turn_detection,omitempty"`
	Tools                   []Tool              `json:"tools,omitempty"`
	ToolChoice              string              `json:"tool_choice,omitempty"`
	MaxResponseOutputTokens int                 `json:"max_response_output_tokens,omitempty"`
}

// NewSessionConfig builds the session declaration from service config.
func NewSessionConfig(rt config.RealtimeConfig, instructions string) *SessionConfig {
	return &SessionConfig{
		Modalities:        []string{"text", "audio"},
		Voice:             rt.Voice,
		Instructions:      instructions,
		InputAudioFormat:  AudioFormatMulaw,
		OutputAudioFormat: AudioFormatMulaw,
		InputAudioTranscription: &InputTranscription{
			Model: "whisper-1",
		},
		TurnDetection: &TurnDetection{
			Type:              "server_vad",
			Threshold:         rt.VADThreshold,
			PrefixPaddingMS:   rt.VADPaddingMS,
			SilenceDurationMS: rt.VADSilenceMS,
		},
		Tools:                   OrderTools(),
		ToolChoice:              "auto",
		MaxResponseOutputTokens: rt.MaxResponseTokens,
	}
}

// OrderTools declares the order-taking action schema. The endpoint expresses
// caller intent exclusively through these calls; nothing is parsed out of
// raw speech locally.
func OrderTools() []Tool {
	return []Tool{
		{
			Type:        "function",
			Name:        "add_item_to_order",
			Description: "Add a menu item to the caller's order.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "Menu item name as the caller said it"},
					"size": {"type": "string", "description": "Size variant if the caller gave one"},
					"quantity": {"type": "integer", "description": "How many, default 1"}
				},
				"required": ["name"]
			}`),
		},
		{
			Type:        "function",
			Name:        "set_delivery_method",
			Description: "Record whether the order is pickup or delivery.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"method": {"type": "string", "enum": ["pickup", "delivery"]}
				},
				"required": ["method"]
			}`),
		},
		{
			Type:        "function",
			Name:        "set_address",
			Description: "Record the delivery address.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"address": {"type": "string"}
				},
				"required": ["address"]
			}`),
		},
		{
			Type:        "function",
			Name:        "set_customer_name",
			Description: "Record the caller's name for the order.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string"}
				},
				"required": ["name"]
			}`),
		},
		{
			Type:        "function",
			Name:        "set_customer_phone",
			Description: "Record a callback phone number.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"phone": {"type": "string"}
				},
				"required": ["phone"]
			}`),
		},
		{
			Type:        "function",
			Name:        "set_payment_method",
			Description: "Record how the caller will pay.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"method": {"type": "string"}
				},
				"required": ["method"]
			}`),
		},
		{
			Type:        "function",
			Name:        "confirm_order",
			Description: "Mark the order confirmed once the caller agrees it is complete.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
	}
}
