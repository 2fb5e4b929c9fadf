package orderbuilder

import (
	"errors"
	"testing"

	"github.com/hotslice/voicedesk/internal/model/call"
	"github.com/hotslice/voicedesk/internal/model/menu"
	"github.com/hotslice/voicedesk/internal/model/order"
)

func testBuilder() *Builder {
	snapshot := menu.Sample()
	return New(func() *menu.Index { return snapshot })
}

func newTestSession() *call.Session {
	return call.NewSession("stream-1", "5551234567")
}

func TestAddItemResolvesMenuPrice(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	res, err := b.Apply(s, "add_item_to_order", `{"name":"Pepperoni Pizza","size":"large","quantity":1}`)
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if !res.Applied {
		t.Fatalf("expected applied result")
	}

	s.Lock()
	defer s.Unlock()
	if len(s.Order.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(s.Order.Items))
	}
	line := s.Order.Items[0]
	if line.Price != 20.99 {
		t.Fatalf("expected menu price 20.99, got %.2f", line.Price)
	}
	if line.Name != "pepperoni pizza" {
		t.Fatalf("expected canonical menu name, got %q", line.Name)
	}
}

func TestAddItemRejectsOffMenu(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	_, err := b.Apply(s, "add_item_to_order", `{"name":"sushi platter","quantity":1}`)
	if !errors.Is(err, ErrItemNotOnMenu) {
		t.Fatalf("expected ErrItemNotOnMenu, got %v", err)
	}

	s.Lock()
	defer s.Unlock()
	if len(s.Order.Items) != 0 {
		t.Fatalf("rejected add must not touch the order")
	}
}

func TestAddItemDefaultsSizeAndQuantity(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	if _, err := b.Apply(s, "add_item_to_order", `{"name":"pepperoni pizza"}`); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}

	s.Lock()
	defer s.Unlock()
	line := s.Order.Items[0]
	if line.Quantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", line.Quantity)
	}
	if line.Size == "" {
		t.Fatalf("expected defaulted size")
	}
	if line.Price <= 0 {
		t.Fatalf("defaulted size must still price, got %.2f", line.Price)
	}
}

func TestAddItemMergesRepeatedAdds(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	b.Apply(s, "add_item_to_order", `{"name":"pepperoni pizza","size":"large","quantity":2}`)
	b.Apply(s, "add_item_to_order", `{"name":"pepperoni pizza","size":"large","quantity":3}`)

	s.Lock()
	defer s.Unlock()
	if len(s.Order.Items) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(s.Order.Items))
	}
	if s.Order.Items[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", s.Order.Items[0].Quantity)
	}
}

func TestAddItemRejectsMalformedArguments(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	_, err := b.Apply(s, "add_item_to_order", `{"name": `)
	if !errors.Is(err, ErrBadArguments) {
		t.Fatalf("expected ErrBadArguments, got %v", err)
	}
}

func TestSetDeliveryMethodRejectsNonLiteral(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	// A street number misrouted into the method argument must not stick.
	_, err := b.Apply(s, "set_delivery_method", `{"method":"46031"}`)
	if !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}

	s.Lock()
	defer s.Unlock()
	if s.Order.DeliveryMethod != order.MethodUnset {
		t.Fatalf("rejected method must leave field unset, got %s", s.Order.DeliveryMethod)
	}
}

func TestAddressForcesDelivery(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	if _, err := b.Apply(s, "set_delivery_method", `{"method":"pickup"}`); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if _, err := b.Apply(s, "set_address", `{"address":"46031 Main St"}`); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}

	s.Lock()
	defer s.Unlock()
	if s.Order.DeliveryMethod != order.MethodDelivery {
		t.Fatalf("address must force delivery, got %s", s.Order.DeliveryMethod)
	}
	if s.Order.Address != "46031 Main St" {
		t.Fatalf("unexpected address %q", s.Order.Address)
	}
}

func TestAddressForcesDeliveryRegardlessOfOrder(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	b.Apply(s, "set_address", `{"address":"12 Elm St"}`)

	s.Lock()
	if s.Order.DeliveryMethod != order.MethodDelivery {
		s.Unlock()
		t.Fatalf("address before method must still force delivery")
	}
	s.Unlock()

	// A later pickup cannot produce a pickup order carrying an address: the
	// address pins the method to delivery whichever way the actions arrive.
	_, err := b.Apply(s, "set_delivery_method", `{"method":"pickup"}`)
	if !errors.Is(err, ErrMethodConflict) {
		t.Fatalf("expected ErrMethodConflict, got %v", err)
	}

	s.Lock()
	defer s.Unlock()
	if s.Order.DeliveryMethod != order.MethodDelivery {
		t.Fatalf("address on file must keep delivery, got %s", s.Order.DeliveryMethod)
	}
	if s.Order.Address != "12 Elm St" {
		t.Fatalf("address must survive the rejected pickup, got %q", s.Order.Address)
	}
}

func TestLaterDeliveryWithAddressStillApplies(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	b.Apply(s, "set_address", `{"address":"12 Elm St"}`)
	if _, err := b.Apply(s, "set_delivery_method", `{"method":"delivery"}`); err != nil {
		t.Fatalf("restating delivery must not conflict: %v", err)
	}

	// Without an address, pickup is still a perfectly good choice.
	s2 := newTestSession()
	if _, err := b.Apply(s2, "set_delivery_method", `{"method":"pickup"}`); err != nil {
		t.Fatalf("pickup without address rejected: %v", err)
	}
}

func TestSetCustomerPhoneNormalizes(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	b.Apply(s, "set_customer_phone", `{"phone":"+1 (555) 987-6543"}`)

	s.Lock()
	defer s.Unlock()
	if s.Order.CustomerPhone != "5559876543" {
		t.Fatalf("expected normalized phone, got %q", s.Order.CustomerPhone)
	}
}

func TestSetCustomerPhoneKeepsRawFallback(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	b.Apply(s, "set_customer_phone", `{"phone":"ask for the front desk"}`)

	s.Lock()
	defer s.Unlock()
	if s.Order.CustomerPhone != "ask for the front desk" {
		t.Fatalf("expected raw fallback kept, got %q", s.Order.CustomerPhone)
	}
}

func TestConfirmOrderSetsFlagOnly(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	res, err := b.Apply(s, "confirm_order", "")
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if !res.Confirmed {
		t.Fatalf("expected confirmed result")
	}

	s.Lock()
	defer s.Unlock()
	if !s.Order.Confirmed {
		t.Fatalf("expected confirmed order")
	}
	if s.Logged {
		t.Fatalf("confirmation must not log the order itself")
	}
}

func TestUnknownActionRejected(t *testing.T) {
	b := testBuilder()
	s := newTestSession()

	_, err := b.Apply(s, "cancel_order", "{}")
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}
