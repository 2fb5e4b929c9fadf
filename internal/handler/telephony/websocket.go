// Package telephony terminates the phone side of a call: the call-answer
// webhook and the bidirectional media-stream websocket.
package telephony

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hotslice/voicedesk/internal/service/orchestrator"
	"github.com/hotslice/voicedesk/internal/service/relay"
)

// readDeadline bounds how long a silent transport keeps the handler alive.
// Media frames flow continuously on a live call, so this only trips on a
// dead connection.
const readDeadline = 60 * time.Second

// inboundMessage is the discriminated stream of transport events.
type inboundMessage struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
}

type startPayload struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

// outgoingMedia is the only outbound message shape: audio for the caller.
type outgoingMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

// Handler serves the telephony surface.
type Handler struct {
	orc        *orchestrator.Orchestrator
	publicHost string
	upgrader   websocket.Upgrader
}

// New builds the telephony handler.
func New(orc *orchestrator.Orchestrator, publicHost string) *Handler {
	return &Handler{
		orc:        orc,
		publicHost: publicHost,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the webhook and the media websocket.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/voice/incoming", h.HandleIncomingCall)
	r.Get("/voice/media", h.handleMediaStream)
}

// mediaSender adapts the websocket into the relay's downstream, serializing
// writes across the relay and any future sender.
type mediaSender struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	streamSid string
}

var _ relay.Downstream = (*mediaSender)(nil)

// SendMedia writes one audio chunk to the caller. A send on a closed socket
// logs at the relay; here it just reports the error.
func (m *mediaSender) SendMedia(payloadB64 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn.WriteJSON(outgoingMedia{
		Event:     "media",
		StreamSid: m.streamSid,
		Media:     mediaPayload{Payload: payloadB64},
	})
}

// handleMediaStream runs the read loop for one transport connection. A
// start event provisions (or fully resets) the session; media feeds the
// relay; stop or transport close tears the call down.
func (h *Handler) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[telephony] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readDeadline))

	sender := &mediaSender{conn: conn}
	var active *orchestrator.Call

	defer func() {
		if active != nil {
			active.OnStop()
		}
	}()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[telephony] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		switch msg.Event {
		case "connected":
			// Transport-level hello; the start event carries the identifiers.

		case "start":
			// A reused transport may deliver a second start: the previous
			// call is over, so close it out before provisioning fresh state.
			if active != nil {
				active.OnStop()
				active = nil
			}

			streamID, caller := startIdentity(msg)
			sender.mu.Lock()
			sender.streamSid = streamID
			sender.mu.Unlock()

			active = h.orc.StartCall(ctx, streamID, caller, sender)

		case "media":
			if active == nil || msg.Media == nil {
				continue
			}
			active.OnMedia(msg.Media.Payload)

		case "stop":
			if active != nil {
				active.OnStop()
				active = nil
			}

		default:
			log.Printf("[telephony] unhandled transport event=%s", msg.Event)
		}
	}
}

// startIdentity extracts the stream id and caller number from a start
// event, inventing an id when the transport omits one.
func startIdentity(msg inboundMessage) (streamID, caller string) {
	if msg.Start != nil {
		streamID = msg.Start.StreamSid
		caller = msg.Start.CustomParameters["caller"]
	}
	if streamID == "" {
		streamID = msg.StreamSid
	}
	if streamID == "" {
		streamID = uuid.NewString()
	}
	return streamID, caller
}
