// Package finalize decides whether, and exactly once, a call's order is
// handed to the logging sinks.
package finalize

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hotslice/voicedesk/internal/config"
	"github.com/hotslice/voicedesk/internal/model/call"
	"github.com/hotslice/voicedesk/internal/model/order"
	"github.com/hotslice/voicedesk/internal/service/sink"
)

var (
	// ErrAlreadyLogged means another trigger won the race; not a failure.
	ErrAlreadyLogged = errors.New("order already logged")
	// ErrOrderIncomplete means the completeness gate rejected the order.
	ErrOrderIncomplete = errors.New("order incomplete")
)

// completionPhrases are caller utterances that signal the order is done.
// They only mark the order confirmed so the gate may run; they never bypass
// the gate itself.
var completionPhrases = []string{
	"that's it",
	"that's all",
	"that is it",
	"that is all",
	"i'm all set",
	"im all set",
	"i'm done",
	"im done",
	"nothing else",
	"that'll be all",
	"that will be all",
	"that'll do it",
}

// IsCompletionPhrase reports whether a caller transcript reads as "I'm
// finished ordering".
func IsCompletionPhrase(transcript string) bool {
	t := strings.ToLower(strings.TrimSpace(transcript))
	for _, phrase := range completionPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}

// MissingFields lists what the completeness gate still needs. Empty means
// the order may be logged.
func MissingFields(o *order.Order) []string {
	var missing []string
	if len(o.PricedItems()) == 0 {
		missing = append(missing, "items")
	}
	if strings.TrimSpace(o.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	switch o.DeliveryMethod {
	case order.MethodUnset:
		missing = append(missing, "delivery_method")
	case order.MethodDelivery:
		if strings.TrimSpace(o.Address) == "" {
			missing = append(missing, "address")
		}
	}
	return missing
}

// Gateway validates and dispatches finalized orders.
type Gateway struct {
	sinks   []sink.Sink
	store   config.StoreConfig
	timeout time.Duration
}

// New builds the gateway over the configured sinks.
func New(store config.StoreConfig, tuning config.TuningConfig, sinks []sink.Sink) *Gateway {
	return &Gateway{
		sinks:   sinks,
		store:   store,
		timeout: tuning.SinkTimeout,
	}
}

// Finalize runs the completeness gate and, on pass, dispatches the order to
// every sink. The logged flag flips under the session lock before dispatch,
// so concurrent triggers (confirm action, stream-stop sweep, a failure
// retry) can never double-submit. It resets only when every sink failed, so
// a later trigger may retry without guaranteed double-delivery.
func (g *Gateway) Finalize(s *call.Session, trigger string) error {
	s.Lock()
	if s.Logged {
		s.Unlock()
		return ErrAlreadyLogged
	}

	missing := MissingFields(s.Order)
	if len(missing) > 0 {
		s.Unlock()
		// An incomplete record pollutes downstream reporting; skipping it
		// beats logging it.
		log.Printf("[finalize] order not logged session=%s trigger=%s missing=%s",
			s.ID, trigger, strings.Join(missing, ","))
		return ErrOrderIncomplete
	}

	s.Logged = true
	s.Order.Logged = true
	record := g.buildRecord(s)
	s.Unlock()

	log.Printf("[finalize] dispatching order session=%s trigger=%s total=%.2f sinks=%d",
		s.ID, trigger, record.Total, len(g.sinks))

	if len(g.sinks) == 0 {
		return nil
	}

	succeeded := g.dispatch(record)
	if succeeded == 0 {
		// Every sink failed: allow a later trigger to retry.
		s.Lock()
		s.Logged = false
		s.Order.Logged = false
		s.Unlock()
		log.Printf("[finalize] all sinks failed session=%s, will retry on next trigger", s.ID)
	}
	return nil
}

// buildRecord snapshots the order with computed totals. Caller must hold the
// session lock.
func (g *Gateway) buildRecord(s *call.Session) sink.Record {
	o := s.Order
	items := o.PricedItems()

	recordItems := make([]sink.RecordItem, 0, len(items))
	for _, item := range items {
		recordItems = append(recordItems, sink.RecordItem{
			Name:      item.Name,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	subtotal := o.Subtotal()
	tax := roundCents(subtotal * g.store.TaxRate)
	phone := o.CustomerPhone
	if phone == "" && s.CallerPhone != call.PhoneUnknown {
		phone = s.CallerPhone
	}

	return sink.Record{
		OrderID:        o.ID,
		Store:          g.store.Name,
		Items:          recordItems,
		DeliveryMethod: string(o.DeliveryMethod),
		Address:        o.Address,
		CustomerName:   o.CustomerName,
		CustomerPhone:  phone,
		PaymentMethod:  o.PaymentMethod,
		Subtotal:       roundCents(subtotal),
		Tax:            tax,
		Total:          roundCents(subtotal + tax),
		CreatedAt:      time.Now().UTC(),
	}
}

// dispatch delivers to every sink independently and reports how many
// succeeded. Each sink gets its own hard timeout so a slow collaborator can
// never stall call teardown.
func (g *Gateway) dispatch(record sink.Record) int {
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for _, target := range g.sinks {
		wg.Add(1)
		go func(target sink.Sink) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
			defer cancel()

			if err := target.Deliver(ctx, record); err != nil {
				log.Printf("[sink] %s delivery failed order=%s: %v", target.Name(), record.OrderID, err)
				return
			}
			log.Printf("[sink] %s delivered order=%s", target.Name(), record.OrderID)
			mu.Lock()
			succeeded++
			mu.Unlock()
		}(target)
	}

	wg.Wait()
	return succeeded
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
