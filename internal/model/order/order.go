package order

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// DeliveryMethod is how the caller wants to receive the order.
type DeliveryMethod string

const (
	MethodUnset    DeliveryMethod = ""
	MethodPickup   DeliveryMethod = "pickup"
	MethodDelivery DeliveryMethod = "delivery"
)

// ParseDeliveryMethod accepts only the two literal methods,
// case-insensitively. Everything else, including purely numeric strings the
// transcription layer sometimes produces, is rejected.
func ParseDeliveryMethod(raw string) (DeliveryMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pickup":
		return MethodPickup, true
	case "delivery":
		return MethodDelivery, true
	default:
		return MethodUnset, false
	}
}

// Item is one priced line on the order. Lines with equal (name, size) are
// merged by quantity, never duplicated.
type Item struct {
	Name     string  `json:"name"`
	Size     string  `json:"size"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is the in-progress or finalized order for one call. It is owned by
// its session and mutated only through the order builder.
type Order struct {
	ID             string         `json:"id"`
	Items          []Item         `json:"items"`
	DeliveryMethod DeliveryMethod `json:"deliveryMethod"`
	Address        string         `json:"address,omitempty"`
	CustomerName   string         `json:"customerName,omitempty"`
	CustomerPhone  string         `json:"customerPhone,omitempty"`
	PaymentMethod  string         `json:"paymentMethod,omitempty"`
	Confirmed      bool           `json:"confirmed"`
	Logged         bool           `json:"logged"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// New returns an empty order with a fresh sortable identifier.
func New() *Order {
	return &Order{
		ID:        ulid.Make().String(),
		Items:     make([]Item, 0, 4),
		CreatedAt: time.Now().UTC(),
	}
}

// AddItem merges the item into an existing (name, size) line or appends it
// in arrival order.
func (o *Order) AddItem(item Item) {
	for i := range o.Items {
		if o.Items[i].Name == item.Name && o.Items[i].Size == item.Size {
			o.Items[i].Quantity += item.Quantity
			return
		}
	}
	o.Items = append(o.Items, item)
}

// PricedItems returns only lines carrying a strictly positive price.
func (o *Order) PricedItems() []Item {
	out := make([]Item, 0, len(o.Items))
	for _, item := range o.Items {
		if item.Price > 0 && item.Quantity > 0 {
			out = append(out, item)
		}
	}
	return out
}

// Subtotal sums quantity times unit price over the priced lines.
func (o *Order) Subtotal() float64 {
	var sum float64
	for _, item := range o.PricedItems() {
		sum += item.Price * float64(item.Quantity)
	}
	return sum
}

// NormalizePhone extracts a 10-digit US number from free-form caller input,
// dropping a leading country 1. It returns "" when no usable number is
// present.
func NormalizePhone(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return ""
	}
	return string(digits)
}
