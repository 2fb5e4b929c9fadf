package turntaking

import (
	"testing"
	"time"

	"github.com/hotslice/voicedesk/internal/config"
	"github.com/hotslice/voicedesk/internal/model/call"
)

type fakeResponder struct {
	creates []string
	cancels int
}

func (f *fakeResponder) CreateResponse(instructions string) error {
	f.creates = append(f.creates, instructions)
	return nil
}

func (f *fakeResponder) CancelResponse() error {
	f.cancels++
	return nil
}

func testTuning() config.TuningConfig {
	return config.TuningConfig{
		SettleWindow:     4 * time.Second,
		GreetingGrace:    2 * time.Second,
		ResponseDebounce: 800 * time.Millisecond,
		ConfirmDelay:     10 * time.Millisecond,
	}
}

func newTestController(responder *fakeResponder, at time.Time) *Controller {
	c := New(testTuning(), responder)
	c.now = func() time.Time { return at }
	return c
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		state call.SpeakingState
		ev    EventKind
		want  call.SpeakingState
	}{
		{call.Idle, CallerStarted, call.CallerSpeaking},
		{call.ResponseInFlight, CallerStarted, call.CallerSpeaking},
		{call.CallerSpeaking, CallerStopped, call.CallerSpeaking},
		{call.CallerSpeaking, CallerCommitted, call.Idle},
		{call.Idle, CallerCommitted, call.Idle},
		{call.Idle, ResponseCreated, call.ResponseInFlight},
		{call.CallerSpeaking, ResponseCreated, call.CallerSpeaking},
		{call.ResponseInFlight, ResponseFinished, call.Idle},
		{call.Idle, ResponseFinished, call.Idle},
	}

	for _, tc := range cases {
		if got := Transition(tc.state, tc.ev); got != tc.want {
			t.Fatalf("Transition(%v, %v) = %v, want %v", tc.state, tc.ev, got, tc.want)
		}
	}
}

func TestResponseCancelledWhileCallerSpeaking(t *testing.T) {
	responder := &fakeResponder{}
	c := newTestController(responder, time.Now())
	s := call.NewSession("stream-1", "5551234567")

	c.OnCallerStarted(s)
	if ok := c.OnResponseCreated(s, "resp-1"); ok {
		t.Fatalf("expected response cancelled while caller speaking")
	}
	if responder.cancels != 1 {
		t.Fatalf("expected 1 cancel, got %d", responder.cancels)
	}

	s.Lock()
	defer s.Unlock()
	if s.Speaking != call.CallerSpeaking {
		t.Fatalf("expected caller to keep the floor, got %s", s.Speaking)
	}
	if s.ActiveResponseID != "" {
		t.Fatalf("cancelled response must not become active")
	}
}

func TestBargeInCancelsInFlightResponse(t *testing.T) {
	responder := &fakeResponder{}
	c := newTestController(responder, time.Now())
	s := call.NewSession("stream-1", "5551234567")

	if ok := c.OnResponseCreated(s, "resp-1"); !ok {
		t.Fatalf("expected response allowed")
	}
	c.OnCallerStarted(s)

	if responder.cancels != 1 {
		t.Fatalf("expected barge-in cancel, got %d", responder.cancels)
	}
	s.Lock()
	defer s.Unlock()
	if s.Speaking != call.CallerSpeaking {
		t.Fatalf("expected caller speaking, got %s", s.Speaking)
	}
}

func TestSettleWindowSuppressesSpuriousResponse(t *testing.T) {
	responder := &fakeResponder{}
	anchor := time.Now()
	c := newTestController(responder, anchor)
	s := call.NewSession("stream-1", "5551234567")

	c.Greet(s, "greeting")
	if len(responder.creates) != 1 {
		t.Fatalf("expected greeting request")
	}

	// Inside the grace slice: the greeting itself is allowed.
	c.now = func() time.Time { return anchor.Add(1 * time.Second) }
	if ok := c.OnResponseCreated(s, "greeting-resp"); !ok {
		t.Fatalf("greeting response must be allowed within grace")
	}
	c.OnResponseFinished(s, "greeting-resp")

	// Past the grace but inside the window: always cancelled.
	c.now = func() time.Time { return anchor.Add(3 * time.Second) }
	if ok := c.OnResponseCreated(s, "spurious"); ok {
		t.Fatalf("expected spurious response cancelled inside settle window")
	}
	if responder.cancels != 1 {
		t.Fatalf("expected 1 cancel, got %d", responder.cancels)
	}

	// Past the window: allowed again.
	c.now = func() time.Time { return anchor.Add(5 * time.Second) }
	if ok := c.OnResponseCreated(s, "normal"); !ok {
		t.Fatalf("expected response allowed after settle window")
	}
}

func TestRequestResponseDebounced(t *testing.T) {
	responder := &fakeResponder{}
	at := time.Now()
	c := newTestController(responder, at)
	s := call.NewSession("stream-1", "5551234567")

	if ok := c.RequestResponse(s, "first", false); !ok {
		t.Fatalf("expected first request to proceed")
	}

	c.now = func() time.Time { return at.Add(200 * time.Millisecond) }
	if ok := c.RequestResponse(s, "second", false); ok {
		t.Fatalf("expected second request debounced")
	}

	c.now = func() time.Time { return at.Add(time.Second) }
	if ok := c.RequestResponse(s, "third", false); !ok {
		t.Fatalf("expected request after debounce interval to proceed")
	}
	if len(responder.creates) != 2 {
		t.Fatalf("expected 2 creates, got %d", len(responder.creates))
	}
}

func TestForceBypassesGuards(t *testing.T) {
	responder := &fakeResponder{}
	at := time.Now()
	c := newTestController(responder, at)
	s := call.NewSession("stream-1", "5551234567")

	c.OnCallerStarted(s)
	c.RequestResponse(s, "critical", true)
	c.RequestResponse(s, "critical again", true)

	if len(responder.creates) != 2 {
		t.Fatalf("expected forced requests to bypass guards, got %d", len(responder.creates))
	}
}

func TestResponseFinishedResetsEvenAfterFailedCancel(t *testing.T) {
	responder := &fakeResponder{}
	c := newTestController(responder, time.Now())
	s := call.NewSession("stream-1", "5551234567")

	c.OnResponseCreated(s, "resp-1")
	// The cancel target may already be gone; the reset happens regardless.
	c.OnResponseFinished(s, "resp-1")

	s.Lock()
	defer s.Unlock()
	if s.Speaking != call.Idle {
		t.Fatalf("state machine stuck: %s", s.Speaking)
	}
}

func TestBargeInDropsPendingConfirmation(t *testing.T) {
	responder := &fakeResponder{}
	c := New(testTuning(), responder)
	s := call.NewSession("stream-1", "5551234567")

	c.ScheduleConfirmation(s, "confirm the add")
	c.OnCallerStarted(s)

	time.Sleep(60 * time.Millisecond)
	if len(responder.creates) != 0 {
		t.Fatalf("pending confirmation must be dropped on barge-in, got %v", responder.creates)
	}
}

func TestScheduleConfirmationFires(t *testing.T) {
	responder := &fakeResponder{}
	c := New(testTuning(), responder)
	s := call.NewSession("stream-1", "5551234567")

	c.ScheduleConfirmation(s, "confirm the add")

	deadline := time.After(time.Second)
	for len(responder.creates) == 0 {
		select {
		case <-deadline:
			t.Fatalf("confirmation never requested")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}
