package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func testClient(h *Hub, sub Subscription) *Client {
	return &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  sub,
	}
}

// ---------------------------------------------------------------------------
// Subscription filter tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := testClient(h, Subscription{AllEvents: true})

	event := &Event{Type: EventClaimPaid, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents subscription must receive everything")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()
	client := testClient(h, Subscription{EventTypes: []EventType{EventScoreUpdated}})

	if !h.shouldSend(client, &Event{Type: EventScoreUpdated}) {
		t.Error("subscribed event type must pass")
	}
	if h.shouldSend(client, &Event{Type: EventClaimPaid}) {
		t.Error("unsubscribed event type must be filtered")
	}
}

func TestShouldSend_WalletFilter(t *testing.T) {
	h := testHub()
	watched := "0xaaaa000000000000000000000000000000000001"
	client := testClient(h, Subscription{Wallets: []string{watched}})

	scoreEvent := &Event{
		Type: EventScoreUpdated,
		Data: map[string]interface{}{"wallet": watched, "score": 80},
	}
	if !h.shouldSend(client, scoreEvent) {
		t.Error("watched wallet's score event must pass")
	}

	claimEvent := &Event{
		Type: EventClaimPaid,
		Data: map[string]interface{}{"claimer": watched},
	}
	if !h.shouldSend(client, claimEvent) {
		t.Error("watched wallet's claim event must pass")
	}

	other := &Event{
		Type: EventScoreUpdated,
		Data: map[string]interface{}{"wallet": "0xbbbb000000000000000000000000000000000002"},
	}
	if h.shouldSend(client, other) {
		t.Error("unwatched wallet must be filtered")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastScoreToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := testClient(h, Subscription{AllEvents: true})
	if !h.add(client) {
		t.Fatal("add must succeed while the hub is running")
	}
	time.Sleep(50 * time.Millisecond)

	h.BroadcastScore("0xaaaa000000000000000000000000000000000001", 80, "high_failure_rate")

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for broadcast")
	}
}

func TestHub_AddRemove(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := testClient(h, Subscription{AllEvents: true})
	h.add(client)
	time.Sleep(50 * time.Millisecond)

	if n := h.Stats()["connectedClients"].(int); n != 1 {
		t.Errorf("expected 1 connected client, got %d", n)
	}

	h.remove(client)
	time.Sleep(50 * time.Millisecond)

	if n := h.Stats()["connectedClients"].(int); n != 0 {
		t.Errorf("expected 0 connected clients after remove, got %d", n)
	}
}

func TestHub_AddAfterShutdownDoesNotBlock(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	go h.Run(ctx)
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("hub did not shut down")
	}

	// A connection that raced shutdown must be turned away, not parked
	// on the register channel forever.
	result := make(chan bool, 1)
	go func() {
		result <- h.add(testClient(h, Subscription{AllEvents: true}))
	}()

	select {
	case ok := <-result:
		if ok {
			t.Error("add must report failure after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("add blocked after shutdown")
	}

	// Same for the read pump's cleanup path.
	removed := make(chan struct{})
	go func() {
		h.remove(testClient(h, Subscription{}))
		close(removed)
	}()

	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("remove blocked after shutdown")
	}
}
