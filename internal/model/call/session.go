package call

import (
	"sync"
	"time"

	"github.com/hotslice/voicedesk/internal/model/order"
)

// PhoneUnknown is stored when the transport reports no usable caller number
// (blocked, anonymous, or missing).
const PhoneUnknown = "unknown"

// recentUtteranceCap bounds the per-session utterance ring used for
// duplicate detection.
const recentUtteranceCap = 4

// SpeakingState tracks whose turn it is on the call.
type SpeakingState int

const (
	// Idle means nobody is speaking and no response is generating.
	Idle SpeakingState = iota
	// CallerSpeaking means the caller has started an utterance that has not
	// been committed yet.
	CallerSpeaking
	// ResponseInFlight means a synthesized response is being generated or
	// played back.
	ResponseInFlight
)

func (s SpeakingState) String() string {
	switch s {
	case CallerSpeaking:
		return "caller_speaking"
	case ResponseInFlight:
		return "response_in_flight"
	default:
		return "idle"
	}
}

// Session is the live state for one active phone call. All fields are
// guarded by the session lock; the two socket reader goroutines and timer
// callbacks serialize through it so each session stays single-writer.
type Session struct {
	mu sync.Mutex

	ID          string
	CallerPhone string
	Order       *order.Order

	Speaking         SpeakingState
	GreetingAnchor   time.Time
	ActiveResponseID string
	LastResponseAt   time.Time

	// Logged flips false->true exactly once when the order is handed to the
	// logging gateway; only the finalization path touches it.
	Logged bool

	CreatedAt   time.Time
	LastEventAt time.Time

	recentUtterances []string
	timers           map[string]*time.Timer
}

// NewSession returns a fully reset session for the given stream. Any state a
// previous call may have left under the same transport must not survive, so
// every field starts from zero here.
func NewSession(id, callerPhone string) *Session {
	if callerPhone == "" {
		callerPhone = PhoneUnknown
	}
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		CallerPhone: callerPhone,
		Order:       order.New(),
		Speaking:    Idle,
		CreatedAt:   now,
		LastEventAt: now,
		timers:      make(map[string]*time.Timer),
	}
}

// Lock acquires the session lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch records event activity, for the staleness sweep.
// Caller must hold the lock.
func (s *Session) Touch() {
	s.LastEventAt = time.Now().UTC()
}

// RecordUtterance appends a completed synthesized utterance to the bounded
// ring and returns the immediately preceding one ("" when none).
// Caller must hold the lock.
func (s *Session) RecordUtterance(text string) (prev string) {
	if n := len(s.recentUtterances); n > 0 {
		prev = s.recentUtterances[n-1]
	}
	s.recentUtterances = append(s.recentUtterances, text)
	if len(s.recentUtterances) > recentUtteranceCap {
		s.recentUtterances = s.recentUtterances[len(s.recentUtterances)-recentUtteranceCap:]
	}
	return prev
}

// ClearUtterances resets the comparison state after the loop breaker fires,
// so the next utterance starts fresh instead of re-triggering.
// Caller must hold the lock.
func (s *Session) ClearUtterances() {
	s.recentUtterances = s.recentUtterances[:0]
}

// RecentUtterances returns a copy of the ring, oldest first.
// Caller must hold the lock.
func (s *Session) RecentUtterances() []string {
	out := make([]string, len(s.recentUtterances))
	copy(out, s.recentUtterances)
	return out
}

// Schedule registers a named timer owned by the session, replacing any
// pending timer under the same name. Timers die with the session, so a stray
// callback can never fire against an ended call.
func (s *Session) Schedule(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timers == nil {
		return // session already destroyed
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
	}
	s.timers[name] = time.AfterFunc(d, fn)
}

// CancelTimer stops one named timer if pending.
func (s *Session) CancelTimer(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Destroy cancels every pending timer and marks the session dead for future
// Schedule calls. Called by the registry on delete.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}
