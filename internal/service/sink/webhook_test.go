package sink

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func sampleRecord() Record {
	return Record{
		OrderID: "01J8ZKJ3V2",
		Store:   "Hot Slice Pizza",
		Items: []RecordItem{
			{Name: "pepperoni pizza", Size: "large", Quantity: 1, UnitPrice: 20.99},
		},
		DeliveryMethod: "delivery",
		Address:        "12 Elm St",
		CustomerName:   "Dana",
		CustomerPhone:  "5551234567",
		Subtotal:       20.99,
		Tax:            1.84,
		Total:          22.83,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestWebhookDeliverPostsRecord(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhook("webhook", srv.URL)
	if err := s.Deliver(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotContentType != "application/json" {
		t.Fatalf("expected json content type, got %q", gotContentType)
	}
	var decoded Record
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body not a record: %v", err)
	}
	if decoded.OrderID != "01J8ZKJ3V2" || decoded.Total != 22.83 {
		t.Fatalf("record fields lost in transit: %+v", decoded)
	}
}

func TestWebhookDeliverRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhook("webhook", srv.URL)
	if err := s.Deliver(context.Background(), sampleRecord()); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestPOSSinkSendsBearerToken(t *testing.T) {
	var mu sync.Mutex
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewPOS(srv.URL, "pos-secret")
	if err := s.Deliver(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer pos-secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if s.Name() != "pos" {
		t.Fatalf("unexpected sink name %q", s.Name())
	}
}

func TestWebhookDeliverHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client disconnect and
		// cancels r.Context(); otherwise the deferred srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s := NewWebhook("webhook", srv.URL)
	if err := s.Deliver(ctx, sampleRecord()); err == nil {
		t.Fatalf("expected context deadline error")
	}
}

func TestFormatSummary(t *testing.T) {
	got := formatSummary(sampleRecord())

	for _, want := range []string{
		"New phone order",
		"Dana",
		"1 x large pepperoni pizza: $20.99",
		"Deliver to: 12 Elm St",
		"*Total $22.83*",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("summary missing %q in:\n%s", want, got)
		}
	}
}
