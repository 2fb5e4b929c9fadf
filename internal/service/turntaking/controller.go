// Package turntaking decides when synthesized responses may start and when
// they must be cancelled, so the caller is never talked over and the remote
// endpoint is never flooded.
package turntaking

import (
	"log"
	"time"

	"github.com/hotslice/voicedesk/internal/config"
	"github.com/hotslice/voicedesk/internal/model/call"
)

// EventKind is a turn-taking input signal.
type EventKind int

const (
	// CallerStarted: the caller began an utterance.
	CallerStarted EventKind = iota
	// CallerStopped: a pause that may be false; not authoritative.
	CallerStopped
	// CallerCommitted: the caller definitively finished the utterance.
	CallerCommitted
	// ResponseCreated: the endpoint started generating a response.
	ResponseCreated
	// ResponseFinished: the response completed, failed, or was cancelled.
	ResponseFinished
)

// Transition is the pure speaking-state machine. Side effects (cancels,
// timers) are decided by the controller on top of it.
func Transition(state call.SpeakingState, ev EventKind) call.SpeakingState {
	switch ev {
	case CallerStarted:
		return call.CallerSpeaking
	case CallerStopped:
		// A stop may be a breath, not the end of the turn. Only the commit
		// signal releases the floor.
		return state
	case CallerCommitted:
		if state == call.CallerSpeaking {
			return call.Idle
		}
		return state
	case ResponseCreated:
		if state == call.Idle {
			return call.ResponseInFlight
		}
		return state
	case ResponseFinished:
		if state == call.ResponseInFlight {
			return call.Idle
		}
		return state
	}
	return state
}

// Responder is the slice of the endpoint client the controller drives.
type Responder interface {
	CreateResponse(instructions string) error
	CancelResponse() error
}

// Controller applies turn-taking policy for every session. It is stateless
// itself; all per-call bookkeeping lives on the session.
type Controller struct {
	tuning    config.TuningConfig
	responder Responder
	now       func() time.Time
}

// New builds a controller over the given responder.
func New(tuning config.TuningConfig, responder Responder) *Controller {
	return &Controller{
		tuning:    tuning,
		responder: responder,
		now:       time.Now,
	}
}

// Greet anchors the settle window and requests the greeting response. The
// anchor must be set before the request so the greeting itself falls inside
// the grace slice of the window.
func (c *Controller) Greet(s *call.Session, greeting string) {
	s.Lock()
	s.GreetingAnchor = c.now()
	s.LastResponseAt = c.now()
	s.Unlock()

	if err := c.responder.CreateResponse(greeting); err != nil {
		log.Printf("[turntaking] greeting request failed session=%s: %v", s.ID, err)
	}
}

// OnCallerStarted handles the caller taking the floor. A response in flight
// is cancelled immediately: the caller must never be talked over.
func (c *Controller) OnCallerStarted(s *call.Session) {
	s.Lock()
	wasInFlight := s.Speaking == call.ResponseInFlight
	s.Speaking = Transition(s.Speaking, CallerStarted)
	s.ActiveResponseID = ""
	s.Touch()
	s.Unlock()

	// A pending courtesy confirmation is stale once the caller takes the
	// floor again.
	s.CancelTimer("confirm")

	if wasInFlight {
		// Fire-and-forget; local state is already reset even if the cancel
		// never lands.
		if err := c.responder.CancelResponse(); err != nil {
			log.Printf("[turntaking] barge-in cancel failed session=%s: %v", s.ID, err)
		}
	}
}

// OnCallerCommitted releases the floor once the caller has completely
// finished the utterance.
func (c *Controller) OnCallerCommitted(s *call.Session) {
	s.Lock()
	s.Speaking = Transition(s.Speaking, CallerCommitted)
	s.Touch()
	s.Unlock()
}

// OnResponseCreated gates a response the endpoint just started. It returns
// false when the response was cancelled (caller speaking, or a spurious
// response inside the settle window).
func (c *Controller) OnResponseCreated(s *call.Session, responseID string) bool {
	s.Lock()
	now := c.now()

	if s.Speaking == call.CallerSpeaking {
		s.Unlock()
		c.cancel(s, "caller speaking")
		return false
	}

	if !s.GreetingAnchor.IsZero() {
		elapsed := now.Sub(s.GreetingAnchor)
		// Inside the settle window only the greeting itself (which starts
		// within the grace slice) may play; anything later in the window is
		// the endpoint's spurious follow-up.
		if elapsed >= c.tuning.GreetingGrace && elapsed < c.tuning.SettleWindow {
			s.Unlock()
			c.cancel(s, "settle window")
			return false
		}
	}

	s.Speaking = Transition(s.Speaking, ResponseCreated)
	s.ActiveResponseID = responseID
	s.Touch()
	s.Unlock()
	return true
}

// OnResponseFinished resets the state machine whichever way the response
// ended. A failed cancel must never leave it stuck in flight.
func (c *Controller) OnResponseFinished(s *call.Session, responseID string) {
	s.Lock()
	if responseID == "" || s.ActiveResponseID == "" || s.ActiveResponseID == responseID {
		s.Speaking = Transition(s.Speaking, ResponseFinished)
		s.ActiveResponseID = ""
	}
	s.Touch()
	s.Unlock()
}

// RequestResponse asks for a new response subject to the debounce and the
// caller-speaking guard. force bypasses both, for critical confirmation
// retries where silence is worse than an interruption.
func (c *Controller) RequestResponse(s *call.Session, instructions string, force bool) bool {
	s.Lock()
	now := c.now()
	if !force {
		if s.Speaking == call.CallerSpeaking {
			s.Unlock()
			return false
		}
		if !s.LastResponseAt.IsZero() && now.Sub(s.LastResponseAt) < c.tuning.ResponseDebounce {
			s.Unlock()
			log.Printf("[turntaking] debounced response request session=%s", s.ID)
			return false
		}
	}
	s.LastResponseAt = now
	s.Unlock()

	if err := c.responder.CreateResponse(instructions); err != nil {
		log.Printf("[turntaking] response request failed session=%s: %v", s.ID, err)
		return false
	}
	return true
}

// ScheduleConfirmation arranges the short-delayed audible confirmation that
// follows every order mutation.
func (c *Controller) ScheduleConfirmation(s *call.Session, instructions string) {
	s.Schedule("confirm", c.tuning.ConfirmDelay, func() {
		c.RequestResponse(s, instructions, false)
	})
}

func (c *Controller) cancel(s *call.Session, reason string) {
	log.Printf("[turntaking] cancelling response session=%s reason=%s", s.ID, reason)
	if err := c.responder.CancelResponse(); err != nil {
		log.Printf("[turntaking] cancel failed session=%s: %v", s.ID, err)
	}
}
