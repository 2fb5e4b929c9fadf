package realtime

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hotslice/voicedesk/internal/config"
)

// Handlers receive decoded endpoint traffic. They are invoked from the
// client's read goroutine, one at a time.
type Handlers struct {
	// OnEvent receives every decoded server event.
	OnEvent func(ev ServerEvent)
	// OnReady fires each time a connection is established and configured,
	// including after a reconnect. The relay flushes its queue here.
	OnReady func()
	// OnDisconnected fires when an established connection drops, before
	// reconnection begins. The relay returns to buffering here so no caller
	// audio is lost in the reconnect window.
	OnDisconnected func()
	// OnDegraded fires once when reconnection attempts are exhausted. The
	// call stays alive in relay-only mode.
	OnDegraded func()
}

// Client maintains the websocket to the conversational speech endpoint for
// one call: dial with retry, session configuration, event decoding, and
// reconnect-and-resume with bounded exponential backoff.
type Client struct {
	cfg      config.RealtimeConfig
	session  *SessionConfig
	handlers Handlers
	dialer   *websocket.Dialer

	reconnectBase time.Duration
	reconnectMax  int

	mu   sync.Mutex
	conn *websocket.Conn
	open bool
}

// NewClient prepares a client; Run establishes the connection.
func NewClient(cfg config.RealtimeConfig, tuning config.TuningConfig, session *SessionConfig, handlers Handlers) *Client {
	return &Client{
		cfg:      cfg,
		session:  session,
		handlers: handlers,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		reconnectBase: tuning.ReconnectBase,
		reconnectMax:  tuning.ReconnectMax,
	}
}

// Run connects and consumes endpoint events until ctx is cancelled or the
// reconnect budget is exhausted. Order state lives in the session, not here,
// so a reconnect resumes the same call untouched.
func (c *Client) Run(ctx context.Context) error {
	if err := c.connectWithRetry(ctx); err != nil {
		return err
	}

	for {
		err := c.readLoop(ctx)
		c.markClosed()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.handlers.OnDisconnected != nil {
			c.handlers.OnDisconnected()
		}

		log.Printf("[realtime] connection lost, reconnecting: %v", err)
		if err := c.connectWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[realtime] reconnect attempts exhausted, call continues relay-only: %v", err)
			if c.handlers.OnDegraded != nil {
				c.handlers.OnDegraded()
			}
			return err
		}
	}
}

// connectWithRetry dials with bounded exponential backoff.
func (c *Client) connectWithRetry(ctx context.Context) error {
	var lastErr error
	for i := 0; i < c.reconnectMax; i++ {
		if err := c.connect(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := c.reconnectBase << i
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("realtime: connect failed after %d attempts: %w", c.reconnectMax, lastErr)
}

func (c *Client) connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("realtime: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.open = true
	c.mu.Unlock()

	// Declare the session before any audio flows: codec, VAD tuning,
	// transcription, and the order-taking tool schema.
	if err := c.send(clientEvent{Type: "session.update", Session: c.session}); err != nil {
		c.markClosed()
		return fmt.Errorf("realtime: session config: %w", err)
	}

	log.Printf("[realtime] connected and configured")
	if c.handlers.OnReady != nil {
		c.handlers.OnReady()
	}
	return nil
}

// readLoop decodes server events until the socket errors or ctx ends.
func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("realtime: not connected")
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var ev ServerEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		if c.handlers.OnEvent != nil {
			c.handlers.OnEvent(ev)
		}
	}
}

// send writes one event. Sending while the socket is not open logs and
// drops; retry supervision lives with the callers, not here.
func (c *Client) send(ev clientEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open || c.conn == nil {
		log.Printf("[realtime] dropped %s: connection not open", ev.Type)
		return nil
	}
	if err := c.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("realtime: write %s: %w", ev.Type, err)
	}
	return nil
}

// Open reports whether the endpoint socket is currently usable.
func (c *Client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Client) markClosed() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.open = false
	c.mu.Unlock()
}

// Close tears the connection down.
func (c *Client) Close() {
	c.markClosed()
}

// AppendAudio forwards one base64 caller-audio chunk.
func (c *Client) AppendAudio(audioB64 string) error {
	return c.send(clientEvent{Type: "input_audio_buffer.append", Audio: audioB64})
}

// CreateResponse asks the endpoint to start generating a response,
// optionally steered by one-off instructions.
func (c *Client) CreateResponse(instructions string) error {
	ev := clientEvent{Type: "response.create"}
	if instructions != "" {
		ev.Response = &responseOptions{Instructions: instructions}
	}
	return c.send(ev)
}

// CancelResponse cancels the in-flight response. Fire-and-forget: callers
// reset their own state without waiting for acknowledgement, since the
// socket may already be gone.
func (c *Client) CancelResponse() error {
	return c.send(clientEvent{Type: "response.cancel"})
}

// InjectInstruction adds a system message to the conversation, used by the
// lifecycle guard for corrective nudges.
func (c *Client) InjectInstruction(text string) error {
	return c.send(clientEvent{
		Type: "conversation.item.create",
		Item: &conversationItem{
			Type:    "message",
			Role:    "system",
			Content: []itemContent{{Type: "input_text", Text: text}},
		},
	})
}

// SubmitToolOutput reports a tool call's result back to the endpoint.
func (c *Client) SubmitToolOutput(callID, output string) error {
	return c.send(clientEvent{
		Type: "conversation.item.create",
		Item: &conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
}
