// Package orchestrator ties one phone call together: telephony events in,
// speech-endpoint events in, audio and actions out. Every other service is a
// component; this package owns the wiring and the teardown path.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/hotslice/voicedesk/internal/config"
	"github.com/hotslice/voicedesk/internal/model/call"
	"github.com/hotslice/voicedesk/internal/model/menu"
	"github.com/hotslice/voicedesk/internal/service/finalize"
	"github.com/hotslice/voicedesk/internal/service/guard"
	"github.com/hotslice/voicedesk/internal/service/orderbuilder"
	"github.com/hotslice/voicedesk/internal/service/realtime"
	"github.com/hotslice/voicedesk/internal/service/registry"
	"github.com/hotslice/voicedesk/internal/service/relay"
	"github.com/hotslice/voicedesk/internal/service/turntaking"
)

// Orchestrator holds the call-independent collaborators and spawns one Call
// per active stream.
type Orchestrator struct {
	cfg      *config.Config
	registry *registry.Registry
	menu     orderbuilder.MenuProvider
	builder  *orderbuilder.Builder
	gateway  *finalize.Gateway
}

// New wires the orchestrator.
func New(cfg *config.Config, reg *registry.Registry, menuProvider orderbuilder.MenuProvider, gateway *finalize.Gateway) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: reg,
		menu:     menuProvider,
		builder:  orderbuilder.New(menuProvider),
		gateway:  gateway,
	}
}

// Call is the live wiring for one phone call.
type Call struct {
	orc     *Orchestrator
	session *call.Session
	client  *realtime.Client
	relay   *relay.Relay
	turns   *turntaking.Controller
	guard   *guard.Guard

	cancel  context.CancelFunc
	greeted bool
}

// StartCall provisions a session and connects the speech endpoint for a
// stream that just started. downstream is the telephony side of the relay.
func (o *Orchestrator) StartCall(ctx context.Context, streamID, callerPhone string, downstream relay.Downstream) *Call {
	session := o.registry.Create(streamID, callerPhone)

	callCtx, cancel := context.WithCancel(ctx)
	c := &Call{
		orc:     o,
		session: session,
		cancel:  cancel,
	}

	sessionCfg := realtime.NewSessionConfig(o.cfg.Realtime, Instructions(o.cfg.Store, o.menu()))
	c.client = realtime.NewClient(o.cfg.Realtime, o.cfg.Tuning, sessionCfg, realtime.Handlers{
		OnEvent:        c.handleEvent,
		OnReady:        c.onReady,
		OnDisconnected: c.onDisconnected,
		OnDegraded:     c.onDegraded,
	})
	c.relay = relay.New(c.client, downstream, o.cfg.Tuning.RelayQueueCap)
	c.turns = turntaking.New(o.cfg.Tuning, c.client)
	c.guard = guard.New(guard.OverlapDetector{Threshold: o.cfg.Tuning.DuplicateRatio}, c.client)

	go func() {
		if err := c.client.Run(callCtx); err != nil && callCtx.Err() == nil {
			log.Printf("[orchestrator] endpoint loop ended session=%s: %v", session.ID, err)
		}
	}()

	log.Printf("[orchestrator] call started session=%s caller=%s", session.ID, session.CallerPhone)
	return c
}

// OnMedia forwards one inbound caller-audio chunk.
func (c *Call) OnMedia(payloadB64 string) {
	c.relay.ForwardInbound(payloadB64)
}

// OnStop tears the call down: last-chance finalize sweep, then session
// destruction. Safe to invoke more than once.
func (c *Call) OnStop() {
	if err := c.orc.gateway.Finalize(c.session, "stream_stop"); err != nil {
		log.Printf("[orchestrator] end-of-call finalize skipped session=%s: %v", c.session.ID, err)
	}
	c.cancel()
	c.client.Close()
	c.orc.registry.Delete(c.session.ID)
	log.Printf("[orchestrator] call ended session=%s", c.session.ID)
}

// onReady fires on every endpoint (re)connect: flush buffered audio, and on
// the first connect issue the greeting.
func (c *Call) onReady() {
	c.relay.SetReady()
	if !c.greeted {
		c.greeted = true
		c.turns.Greet(c.session, "Greet the caller exactly once with: "+c.orc.cfg.Store.Greeting)
	}
}

// onDisconnected fires when the endpoint socket drops: buffer inbound audio
// until the reconnect flushes it through onReady.
func (c *Call) onDisconnected() {
	c.relay.SetNotReady()
	log.Printf("[orchestrator] endpoint disconnected session=%s, buffering inbound audio", c.session.ID)
}

// onDegraded fires when reconnects are exhausted. The relay is already in
// buffering mode from the disconnect; the call continues relay-only, and
// ending it is the caller's or the transport's decision.
func (c *Call) onDegraded() {
	log.Printf("[orchestrator] endpoint unavailable session=%s, relay-only from here", c.session.ID)
}

// handleEvent is the single dispatch point for endpoint events. It runs on
// the client's read goroutine; component calls serialize on the session
// lock.
func (c *Call) handleEvent(ev realtime.ServerEvent) {
	switch ev.Type {
	case realtime.EventSpeechStarted:
		c.turns.OnCallerStarted(c.session)

	case realtime.EventSpeechStopped:
		// May be a false pause; only the commit releases the floor.

	case realtime.EventSpeechCommitted:
		c.turns.OnCallerCommitted(c.session)

	case realtime.EventResponseCreated:
		id := ""
		if ev.Response != nil {
			id = ev.Response.ID
		}
		c.turns.OnResponseCreated(c.session, id)

	case realtime.EventResponseAudioDelta:
		c.forwardDelta(ev)

	case realtime.EventResponseTranscriptDone:
		c.guard.OnUtteranceDone(c.session, ev.Transcript)

	case realtime.EventResponseDone:
		c.onResponseDone(ev.Response)

	case realtime.EventFunctionCallDone:
		c.onToolCall(ev)

	case realtime.EventTranscriptionCompleted:
		c.onCallerTranscript(ev.Transcript)

	case realtime.EventTranscriptionFailed:
		log.Printf("[orchestrator] transcription failed session=%s", c.session.ID)

	case realtime.EventSessionCreated, realtime.EventSessionUpdated,
		realtime.EventResponseOutputItem, realtime.EventResponseOutputItemDone:
		// Lifecycle noise; nothing to orchestrate.

	case realtime.EventError:
		if ev.Error != nil {
			log.Printf("[orchestrator] endpoint error session=%s code=%s: %s",
				c.session.ID, ev.Error.Code, ev.Error.Message)
		}

	default:
		log.Printf("[orchestrator] unhandled event type=%s session=%s", ev.Type, c.session.ID)
	}
}

// forwardDelta relays synthesized audio, but only for the response the
// controller admitted. A cancelled response never becomes active, so its late
// deltas are dropped here even after the caller's turn has ended.
func (c *Call) forwardDelta(ev realtime.ServerEvent) {
	c.session.Lock()
	active := c.session.ActiveResponseID
	speaking := c.session.Speaking
	c.session.Unlock()

	if speaking == call.CallerSpeaking {
		return
	}
	if active == "" {
		return
	}
	if ev.ResponseID != "" && ev.ResponseID != active {
		return
	}
	c.relay.ForwardOutbound(ev.Delta)
}

// onResponseDone resets the turn state and drives the failure recovery
// paths. No branch here may end the call.
func (c *Call) onResponseDone(resp *realtime.Response) {
	id, status := "", realtime.ResponseStatusCompleted
	var details *realtime.StatusDetails
	if resp != nil {
		id, status, details = resp.ID, resp.Status, resp.StatusDetails
	}
	c.turns.OnResponseFinished(c.session, id)

	if status != realtime.ResponseStatusFailed {
		return
	}

	failure := guard.Classify(details)
	switch failure.Kind {
	case guard.FailureRateLimited:
		force := c.criticalOutstanding()
		log.Printf("[orchestrator] rate limited session=%s retry_in=%s force=%t",
			c.session.ID, failure.RetryAfter, force)
		c.session.Schedule("retry", failure.RetryAfter, func() {
			c.turns.RequestResponse(c.session, "", force)
		})

	case guard.FailureQuota:
		// Fatal for new responses, never for the call.
		log.Printf("[orchestrator] quota exhausted session=%s, responses degraded: %s",
			c.session.ID, failure.Message)

	default:
		log.Printf("[orchestrator] response failed session=%s: %s", c.session.ID, failure.Message)
		if err := c.client.InjectInstruction(guard.RecoveryInstruction()); err != nil {
			log.Printf("[orchestrator] recovery instruction failed session=%s: %v", c.session.ID, err)
		}
		c.session.Schedule("retry", c.orc.cfg.Tuning.ConfirmDelay, func() {
			c.turns.RequestResponse(c.session, "", false)
		})
	}
}

// onToolCall applies one structured action and schedules the audible
// confirmation. Domain rejections steer the dialogue ("not on the menu")
// without ever surfacing a technical error.
func (c *Call) onToolCall(ev realtime.ServerEvent) {
	res, err := c.orc.builder.Apply(c.session, ev.Name, ev.Arguments)
	if err != nil {
		if output := rejectionOutput(err); output != "" && ev.CallID != "" {
			if serr := c.client.SubmitToolOutput(ev.CallID, output); serr != nil {
				log.Printf("[orchestrator] tool output failed session=%s: %v", c.session.ID, serr)
			}
			c.turns.ScheduleConfirmation(c.session, "")
		}
		return
	}

	if ev.CallID != "" {
		if serr := c.client.SubmitToolOutput(ev.CallID, res.Output); serr != nil {
			log.Printf("[orchestrator] tool output failed session=%s: %v", c.session.ID, serr)
		}
	}

	c.turns.ScheduleConfirmation(c.session, "Briefly confirm what was just updated and ask what else the caller needs.")

	if res.Confirmed {
		// Let in-flight mutations (name, delivery method) land before the
		// completeness gate runs.
		c.session.Schedule("finalize", c.orc.cfg.Tuning.FinalizeSettle, func() {
			if err := c.orc.gateway.Finalize(c.session, "confirm_action"); err != nil {
				log.Printf("[orchestrator] finalize skipped session=%s: %v", c.session.ID, err)
				c.nudgeForMissing()
			}
		})
	}
}

// onCallerTranscript treats completion phrases as intent, never as
// confirmation: the order is marked confirmed and the dialogue is steered to
// the read-back, but dispatch waits for the confirm_order action or the
// end-of-call sweep. The caller may still change the order after "that's it".
func (c *Call) onCallerTranscript(transcript string) {
	if !finalize.IsCompletionPhrase(transcript) {
		return
	}

	c.session.Lock()
	hasItems := len(c.session.Order.PricedItems()) > 0
	if hasItems {
		c.session.Order.Confirmed = true
	}
	missing := finalize.MissingFields(c.session.Order)
	c.session.Unlock()

	if !hasItems {
		return
	}

	log.Printf("[orchestrator] completion phrase session=%s", c.session.ID)
	if len(missing) > 0 {
		c.nudgeForMissing()
		return
	}
	c.turns.RequestResponse(c.session,
		"Read the order back to the caller and call confirm_order once they agree.", false)
}

// nudgeForMissing asks the dialogue to collect whatever the gate still
// needs, instead of going silent on an unfinished order.
func (c *Call) nudgeForMissing() {
	c.session.Lock()
	missing := finalize.MissingFields(c.session.Order)
	c.session.Unlock()
	if len(missing) == 0 {
		return
	}

	c.turns.RequestResponse(c.session,
		"Before finishing, ask the caller for: "+strings.Join(missing, ", ")+".", false)
}

// criticalOutstanding reports whether a required customer field is still
// missing. A rate-limited confirmation at that point is retried even through
// the caller-speaking guard; going silent there loses the order.
func (c *Call) criticalOutstanding() bool {
	c.session.Lock()
	defer c.session.Unlock()
	for _, field := range finalize.MissingFields(c.session.Order) {
		switch field {
		case "customer_name", "delivery_method", "address":
			return true
		}
	}
	return false
}

// rejectionOutput maps a domain rejection to a conversational steer. A
// protocol violation returns "" and is dropped outright.
func rejectionOutput(err error) string {
	switch {
	case errors.Is(err, orderbuilder.ErrItemNotOnMenu), errors.Is(err, orderbuilder.ErrZeroPrice):
		return "that item is not available on the menu; apologize and offer something similar from the menu"
	case errors.Is(err, orderbuilder.ErrInvalidMethod):
		return "that was not a valid choice; ask the caller whether the order is for pickup or delivery"
	case errors.Is(err, orderbuilder.ErrMethodConflict):
		return "a delivery address is already on file, so the order stays set for delivery; confirm the address with the caller"
	default:
		return ""
	}
}

// Instructions builds the system prompt: store identity, policy, and a menu
// rendering so the dialogue only ever offers real items.
func Instructions(store config.StoreConfig, snapshot *menu.Index) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the phone order-taker for %s. ", store.Name)
	b.WriteString("Be warm and efficient. Use the provided tools for every order change; never invent menu items or prices. ")
	b.WriteString("Collect the caller's name, pickup or delivery, and an address for delivery orders. ")
	b.WriteString("When the caller is done, read the order back and call confirm_order once they agree.\n\nMenu:\n")

	items := snapshot.Items()
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	for _, item := range items {
		if len(item.Sizes) == 0 {
			fmt.Fprintf(&b, "- %s: $%.2f\n", item.Name, item.FlatPrice)
			continue
		}
		parts := make([]string, 0, len(item.Sizes))
		for _, size := range item.Sizes {
			parts = append(parts, fmt.Sprintf("%s $%.2f", size, item.Prices[size]))
		}
		fmt.Fprintf(&b, "- %s: %s\n", item.Name, strings.Join(parts, ", "))
	}
	return b.String()
}
