// Package sink delivers finalized order records to external collaborators.
// Every sink is best-effort and independent; failures never touch call
// audio.
package sink

import (
	"context"
	"time"
)

// RecordItem is one priced line of a finalized order.
type RecordItem struct {
	Name      string  `json:"name"`
	Size      string  `json:"size"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Record is the finalized order shape handed to every sink. Sinks are black
// boxes beyond this: they take the record and answer success or failure.
type Record struct {
	OrderID        string       `json:"orderId"`
	Store          string       `json:"store"`
	Items          []RecordItem `json:"items"`
	DeliveryMethod string       `json:"deliveryMethod"`
	Address        string       `json:"address,omitempty"`
	CustomerName   string       `json:"customerName"`
	CustomerPhone  string       `json:"customerPhone,omitempty"`
	PaymentMethod  string       `json:"paymentMethod,omitempty"`
	Subtotal       float64      `json:"subtotal"`
	Tax            float64      `json:"tax"`
	Total          float64      `json:"total"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Sink is one order-logging destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, record Record) error
}
