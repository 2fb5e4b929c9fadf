package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

// SlackSink posts an order summary to a Slack incoming webhook so the store
// crew sees new phone orders in their channel.
type SlackSink struct {
	webhookURL string
}

// NewSlack builds the Slack notification sink.
func NewSlack(webhookURL string) *SlackSink {
	return &SlackSink{webhookURL: webhookURL}
}

// Name implements Sink.
func (s *SlackSink) Name() string { return "slack" }

// Deliver implements Sink.
func (s *SlackSink) Deliver(ctx context.Context, record Record) error {
	msg := &slack.WebhookMessage{Text: formatSummary(record)}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("sink slack: %w", err)
	}
	return nil
}

func formatSummary(record Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":pizza: *New phone order* from %s (%s)\n", record.CustomerName, record.DeliveryMethod)
	for _, item := range record.Items {
		fmt.Fprintf(&b, "• %d x %s %s: $%.2f\n", item.Quantity, item.Size, item.Name, item.UnitPrice*float64(item.Quantity))
	}
	if record.Address != "" {
		fmt.Fprintf(&b, "Deliver to: %s\n", record.Address)
	}
	if record.CustomerPhone != "" {
		fmt.Fprintf(&b, "Callback: %s\n", record.CustomerPhone)
	}
	fmt.Fprintf(&b, "Subtotal $%.2f | Tax $%.2f | *Total $%.2f*", record.Subtotal, record.Tax, record.Total)
	return b.String()
}
