// Package guard watches the response lifecycle for repeat loops and
// classifies endpoint failures so recovery never ends the call.
package guard

import (
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hotslice/voicedesk/internal/model/call"
	"github.com/hotslice/voicedesk/internal/service/realtime"
)

// Detector decides whether two consecutive synthesized utterances are too
// similar. Pluggable so the threshold or algorithm can be swapped and tested
// away from the socket plumbing.
type Detector interface {
	NearDuplicate(prev, next string) bool
}

// OverlapDetector flags exact repeats and token-overlap above a threshold,
// counting only words longer than two characters.
type OverlapDetector struct {
	Threshold float64
}

// NearDuplicate implements Detector.
func (d OverlapDetector) NearDuplicate(prev, next string) bool {
	prev = strings.TrimSpace(prev)
	next = strings.TrimSpace(next)
	if prev == "" || next == "" {
		return false
	}
	if strings.EqualFold(prev, next) {
		return true
	}

	prevWords := significantWords(prev)
	nextWords := significantWords(next)
	if len(prevWords) == 0 || len(nextWords) == 0 {
		return false
	}

	var overlap int
	for word := range nextWords {
		if _, ok := prevWords[word]; ok {
			overlap++
		}
	}

	denom := len(nextWords)
	if len(prevWords) < denom {
		denom = len(prevWords)
	}
	return float64(overlap)/float64(denom) >= d.Threshold
}

func significantWords(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:'\"")
		if len(word) > 2 {
			words[word] = struct{}{}
		}
	}
	return words
}

// correctiveInstruction is injected once when a repeat loop is detected.
const correctiveInstruction = "You just repeated yourself. Do not repeat your previous sentence. Stay quiet and wait for the caller to speak, then respond to what they actually say."

// recoveryInstruction nudges the dialogue forward after a generic failure.
const recoveryInstruction = "Briefly continue the conversation from where it left off and ask the caller what else they need."

// Injector is the slice of the endpoint client the guard drives.
type Injector interface {
	InjectInstruction(text string) error
}

// Guard applies the duplicate loop breaker per session.
type Guard struct {
	detector Detector
	injector Injector
}

// New builds a guard with the given similarity strategy.
func New(detector Detector, injector Injector) *Guard {
	return &Guard{detector: detector, injector: injector}
}

// OnUtteranceDone records a completed synthesized utterance and, on the
// first near-duplicate, injects the corrective instruction and resets the
// comparison state. Single-shot circuit breaker: the next utterance starts a
// fresh comparison, not a persistent ban.
func (g *Guard) OnUtteranceDone(s *call.Session, transcript string) bool {
	s.Lock()
	prev := s.RecordUtterance(transcript)
	isDup := g.detector.NearDuplicate(prev, transcript)
	if isDup {
		s.ClearUtterances()
	}
	s.Unlock()

	if !isDup {
		return false
	}

	log.Printf("[guard] near-duplicate utterance session=%s, injecting corrective instruction", s.ID)
	if err := g.injector.InjectInstruction(correctiveInstruction); err != nil {
		log.Printf("[guard] corrective instruction failed session=%s: %v", s.ID, err)
	}
	return true
}

// RecoveryInstruction exposes the neutral continuation text for the generic
// failure path.
func RecoveryInstruction() string {
	return recoveryInstruction
}

// FailureKind partitions response failures by how they are recovered.
type FailureKind int

const (
	// FailureGeneric gets one neutral-instruction retry.
	FailureGeneric FailureKind = iota
	// FailureRateLimited is retried after the provider-suggested delay.
	FailureRateLimited
	// FailureQuota is operationally fatal for new responses but must not
	// end the call.
	FailureQuota
)

// Failure is a classified response failure.
type Failure struct {
	Kind       FailureKind
	RetryAfter time.Duration
	Message    string
}

// retryAfterPattern matches provider guidance like "try again in 1.2s" or
// "in 350ms".
var retryAfterPattern = regexp.MustCompile(`in\s+([0-9]+(?:\.[0-9]+)?)\s*(ms|s)`)

// defaultRateLimitBackoff applies when the provider gives no delay guidance.
const defaultRateLimitBackoff = 2 * time.Second

// Classify maps a failed response's status details to a recovery strategy.
func Classify(details *realtime.StatusDetails) Failure {
	var apiErr *realtime.APIError
	if details != nil {
		apiErr = details.Error
	}
	if apiErr == nil {
		return Failure{Kind: FailureGeneric}
	}

	code := strings.ToLower(apiErr.Code)
	errType := strings.ToLower(apiErr.Type)
	msg := apiErr.Message

	switch {
	case strings.Contains(code, "rate_limit") || strings.Contains(errType, "rate_limit"):
		return Failure{
			Kind:       FailureRateLimited,
			RetryAfter: parseRetryAfter(msg),
			Message:    msg,
		}
	case strings.Contains(code, "insufficient_quota") || strings.Contains(code, "billing") || strings.Contains(errType, "quota"):
		return Failure{Kind: FailureQuota, Message: msg}
	default:
		return Failure{Kind: FailureGeneric, Message: msg}
	}
}

func parseRetryAfter(message string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(strings.ToLower(message))
	if len(m) != 3 {
		return defaultRateLimitBackoff
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil || val <= 0 {
		return defaultRateLimitBackoff
	}
	if m[2] == "ms" {
		return time.Duration(val * float64(time.Millisecond))
	}
	return time.Duration(val * float64(time.Second))
}
