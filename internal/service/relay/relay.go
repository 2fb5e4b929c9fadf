// Package relay forwards audio between the telephony socket and the speech
// endpoint socket, preserving arrival order per direction.
package relay

import (
	"encoding/base64"
	"log"
	"sync"
)

// Upstream is the speech-endpoint side of the relay.
type Upstream interface {
	AppendAudio(audioB64 string) error
	Open() bool
}

// Downstream is the telephony side of the relay.
type Downstream interface {
	SendMedia(payloadB64 string) error
}

// Relay buffers inbound caller audio until the speech endpoint is ready,
// then flushes once and switches to pass-through. Outbound synthesized audio
// is never batched.
type Relay struct {
	upstream   Upstream
	downstream Downstream
	queueCap   int

	mu      sync.Mutex
	ready   bool
	queue   [][]byte
	dropped int
}

// New builds a relay in buffering mode.
func New(upstream Upstream, downstream Downstream, queueCap int) *Relay {
	if queueCap <= 0 {
		queueCap = 256
	}
	return &Relay{
		upstream:   upstream,
		downstream: downstream,
		queueCap:   queueCap,
	}
}

// ForwardInbound carries one base64 caller-audio chunk toward the endpoint.
// Before readiness the chunk is queued; once the cap is reached the oldest
// chunk is dropped so a stuck connection cannot grow memory unbounded.
func (r *Relay) ForwardInbound(payloadB64 string) {
	r.mu.Lock()
	if !r.ready {
		raw, err := base64.StdEncoding.DecodeString(payloadB64)
		if err != nil {
			r.mu.Unlock()
			log.Printf("[relay] dropping undecodable inbound chunk: %v", err)
			return
		}
		if len(r.queue) >= r.queueCap {
			r.queue = r.queue[1:]
			r.dropped++
		}
		r.queue = append(r.queue, raw)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if !r.upstream.Open() {
		log.Printf("[relay] inbound send skipped: endpoint socket not open")
		return
	}
	if err := r.upstream.AppendAudio(payloadB64); err != nil {
		log.Printf("[relay] inbound forward failed: %v", err)
	}
}

// SetReady flushes everything buffered so far, in order, as one concatenated
// send, then switches to pass-through mode. Called on every endpoint
// (re)connect.
func (r *Relay) SetReady() {
	r.mu.Lock()
	queued := r.queue
	dropped := r.dropped
	r.queue = nil
	r.dropped = 0
	r.ready = true
	r.mu.Unlock()

	if dropped > 0 {
		log.Printf("[relay] dropped %d oldest chunks before readiness", dropped)
	}
	if len(queued) == 0 {
		return
	}

	var total int
	for _, chunk := range queued {
		total += len(chunk)
	}
	merged := make([]byte, 0, total)
	for _, chunk := range queued {
		merged = append(merged, chunk...)
	}

	if err := r.upstream.AppendAudio(base64.StdEncoding.EncodeToString(merged)); err != nil {
		log.Printf("[relay] flush failed: %v", err)
		return
	}
	log.Printf("[relay] flushed %d buffered chunks (%d bytes)", len(queued), total)
}

// SetNotReady returns to buffering mode while the endpoint reconnects.
func (r *Relay) SetNotReady() {
	r.mu.Lock()
	r.ready = false
	r.mu.Unlock()
}

// ForwardOutbound carries one synthesized-audio chunk to the caller
// immediately; batching here would add perceived latency.
func (r *Relay) ForwardOutbound(payloadB64 string) {
	if err := r.downstream.SendMedia(payloadB64); err != nil {
		log.Printf("[relay] outbound forward failed: %v", err)
	}
}

// QueuedChunks reports the current buffer depth.
func (r *Relay) QueuedChunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
