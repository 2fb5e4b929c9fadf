package guard

import (
	"testing"
	"time"

	"github.com/hotslice/voicedesk/internal/model/call"
	"github.com/hotslice/voicedesk/internal/service/realtime"
)

type fakeInjector struct {
	injected []string
}

func (f *fakeInjector) InjectInstruction(text string) error {
	f.injected = append(f.injected, text)
	return nil
}

func TestOverlapDetector(t *testing.T) {
	d := OverlapDetector{Threshold: 0.75}

	cases := []struct {
		prev, next string
		want       bool
	}{
		{"Would you like anything else?", "Would you like anything else?", true},
		{"would you like anything else", "WOULD YOU LIKE ANYTHING ELSE", true},
		{"Your large pepperoni pizza is added.", "Your large pepperoni pizza is added!", true},
		{"Anything else for you today?", "Great, what size would you like?", false},
		{"", "hello there", false},
		{"hello there", "", false},
	}

	for _, tc := range cases {
		if got := d.NearDuplicate(tc.prev, tc.next); got != tc.want {
			t.Fatalf("NearDuplicate(%q, %q) = %v, want %v", tc.prev, tc.next, got, tc.want)
		}
	}
}

func TestGuardInjectsOnceOnRepeat(t *testing.T) {
	inj := &fakeInjector{}
	g := New(OverlapDetector{Threshold: 0.75}, inj)
	s := call.NewSession("stream-1", "5551234567")

	if g.OnUtteranceDone(s, "Would you like anything else?") {
		t.Fatalf("first utterance must not trip the breaker")
	}
	if !g.OnUtteranceDone(s, "Would you like anything else?") {
		t.Fatalf("exact repeat must trip the breaker")
	}
	if len(inj.injected) != 1 {
		t.Fatalf("expected one corrective instruction, got %d", len(inj.injected))
	}
}

func TestGuardResetsComparisonAfterTrip(t *testing.T) {
	inj := &fakeInjector{}
	g := New(OverlapDetector{Threshold: 0.75}, inj)
	s := call.NewSession("stream-1", "5551234567")

	g.OnUtteranceDone(s, "Would you like anything else?")
	g.OnUtteranceDone(s, "Would you like anything else?")

	// The trip clears the ring: the very next identical utterance compares
	// against nothing and does not trip again.
	if g.OnUtteranceDone(s, "Would you like anything else?") {
		t.Fatalf("breaker must be single-shot, not a persistent ban")
	}
	if len(inj.injected) != 1 {
		t.Fatalf("expected exactly one injection, got %d", len(inj.injected))
	}
}

func TestClassifyRateLimitParsesRetryAfter(t *testing.T) {
	f := Classify(&realtime.StatusDetails{Error: &realtime.APIError{
		Type:    "error",
		Code:    "rate_limit_exceeded",
		Message: "Rate limit reached. Please try again in 1.2s.",
	}})

	if f.Kind != FailureRateLimited {
		t.Fatalf("expected rate-limited classification, got %v", f.Kind)
	}
	if f.RetryAfter != 1200*time.Millisecond {
		t.Fatalf("expected 1.2s retry, got %s", f.RetryAfter)
	}
}

func TestClassifyRateLimitMillisecondsAndDefault(t *testing.T) {
	f := Classify(&realtime.StatusDetails{Error: &realtime.APIError{
		Code:    "rate_limit_exceeded",
		Message: "try again in 350ms",
	}})
	if f.RetryAfter != 350*time.Millisecond {
		t.Fatalf("expected 350ms retry, got %s", f.RetryAfter)
	}

	f = Classify(&realtime.StatusDetails{Error: &realtime.APIError{
		Code:    "rate_limit_exceeded",
		Message: "slow down",
	}})
	if f.RetryAfter != defaultRateLimitBackoff {
		t.Fatalf("expected default backoff, got %s", f.RetryAfter)
	}
}

func TestClassifyQuotaAndGeneric(t *testing.T) {
	f := Classify(&realtime.StatusDetails{Error: &realtime.APIError{Code: "insufficient_quota"}})
	if f.Kind != FailureQuota {
		t.Fatalf("expected quota classification, got %v", f.Kind)
	}

	f = Classify(&realtime.StatusDetails{Error: &realtime.APIError{Code: "server_error"}})
	if f.Kind != FailureGeneric {
		t.Fatalf("expected generic classification, got %v", f.Kind)
	}

	f = Classify(nil)
	if f.Kind != FailureGeneric {
		t.Fatalf("expected generic classification for missing details, got %v", f.Kind)
	}
}
