package realtime

// Server event types emitted by the conversational speech endpoint. Only the
// ones the orchestrator reacts to are named; everything else is forwarded to
// the unknown handler for logging.
const (
	EventSessionCreated         = "session.created"
	EventSessionUpdated         = "session.updated"
	EventResponseCreated        = "response.created"
	EventResponseOutputItem     = "response.output_item.added"
	EventResponseOutputItemDone = "response.output_item.done"
	EventResponseTranscriptDone = "response.audio_transcript.done"
	EventResponseDone           = "response.done"
	EventResponseAudioDelta     = "response.audio.delta"
	EventSpeechStarted          = "input_audio_buffer.speech_started"
	EventSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventSpeechCommitted        = "input_audio_buffer.committed"
	EventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"
	EventFunctionCallDone       = "response.function_call_arguments.done"
	EventError                  = "error"
)

// Response statuses reported inside response.done.
const (
	ResponseStatusCompleted = "completed"
	ResponseStatusCancelled = "cancelled"
	ResponseStatusFailed    = "failed"
)

// APIError is the provider's error detail block.
type APIError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
}

// StatusDetails explains a non-completed response.
type StatusDetails struct {
	Type   string    `json:"type,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// Response is the provider's response object, carried by the response
// lifecycle events.
type Response struct {
	ID            string         `json:"id,omitempty"`
	Status        string         `json:"status,omitempty"`
	StatusDetails *StatusDetails `json:"status_details,omitempty"`
}

// ServerEvent is the decoded envelope for every inbound endpoint message.
// The endpoint multiplexes many shapes over one stream, so optional fields
// cover the union; Type decides which are meaningful.
type ServerEvent struct {
	Type    string    `json:"type"`
	EventID string    `json:"event_id,omitempty"`
	Error   *APIError `json:"error,omitempty"`

	Response *Response `json:"response,omitempty"`

	// Audio and transcript payloads.
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`

	// Function-call completion payload.
	Name       string `json:"name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	ResponseID string `json:"response_id,omitempty"`
}

// clientEvent is the outbound envelope. Fields are populated per event type
// and omitted otherwise.
type clientEvent struct {
	Type     string            `json:"type"`
	Audio    string            `json:"audio,omitempty"`
	Session  *SessionConfig    `json:"session,omitempty"`
	Response *responseOptions  `json:"response,omitempty"`
	Item     *conversationItem `json:"item,omitempty"`
}

type responseOptions struct {
	Instructions string `json:"instructions,omitempty"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
	Content []itemContent `json:"content,omitempty"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
