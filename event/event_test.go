package event_test

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/Nitefawkes/TenzikCore/errors"
	"github.com/Nitefawkes/TenzikCore/event"
	"github.com/Nitefawkes/TenzikCore/receipt"
)

func testKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	key, err := receipt.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return key
}

func testReceipt(t *testing.T, key ed25519.PrivateKey, nonce uint64) *receipt.Receipt {
	t.Helper()
	r := receipt.New([]byte("capsule"), []byte("in"), []byte("out"), receipt.Metrics{FuelUsed: 9}, nonce)
	if err := r.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return r
}

func TestReceiptEventRoundTrip(t *testing.T) {
	key := testKey(t)
	r := testReceipt(t, key, 1)

	e, err := event.NewReceiptEvent(r, nil, 1, key)
	if err != nil {
		t.Fatalf("NewReceiptEvent() error: %v", err)
	}

	if e.Type != event.TypeReceipt {
		t.Errorf("Type = %q, want %q", e.Type, event.TypeReceipt)
	}
	if len(e.ID) != 64 {
		t.Errorf("ID length = %d, want 64 hex chars", len(e.ID))
	}
	if e.NodeID != r.NodeID {
		t.Errorf("event NodeID = %q, receipt NodeID = %q", e.NodeID, r.NodeID)
	}

	ok, err := e.Verify()
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if !ok {
		t.Fatal("Verify() = false for a freshly signed event")
	}

	wrapped, err := e.Receipt()
	if err != nil {
		t.Fatalf("Receipt() error: %v", err)
	}
	if *wrapped != *r {
		t.Fatalf("wrapped receipt differs:\n%+v\n%+v", wrapped, r)
	}
}

func TestEventVerifyTampered(t *testing.T) {
	key := testKey(t)

	tests := []struct {
		name   string
		mutate func(*event.Event)
	}{
		{"sequence", func(e *event.Event) { e.Sequence++ }},
		{"content", func(e *event.Event) { e.Content = json.RawMessage(`{"forged":true}`) }},
		{"parents", func(e *event.Event) { e.Parents = append(e.Parents, "someparent") }},
		{"timestamp", func(e *event.Event) { e.Timestamp = "2026-01-01T00:00:00.000Z" }},
		{"type", func(e *event.Event) { e.Type = event.TypeHeartbeat }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := event.NewLeaveEvent("shutting down", nil, 1, key)
			if err != nil {
				t.Fatalf("NewLeaveEvent() error: %v", err)
			}
			tt.mutate(e)

			ok, err := e.Verify()
			if err != nil {
				t.Fatalf("Verify() error: %v", err)
			}
			if ok {
				t.Fatal("Verify() accepted a tampered event")
			}
		})
	}
}

func TestEventVerifyMalformed(t *testing.T) {
	key := testKey(t)
	e, err := event.NewLeaveEvent("bye", nil, 1, key)
	if err != nil {
		t.Fatalf("NewLeaveEvent() error: %v", err)
	}

	bad := *e
	bad.NodeID = "not hex"
	if _, err := bad.Verify(); errors.PhaseOf(err) != errors.PhaseEvent {
		t.Errorf("bad node id: PhaseOf = %q, want %q", errors.PhaseOf(err), errors.PhaseEvent)
	}

	bad = *e
	bad.Signature = "abcd"
	if _, err := bad.Verify(); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("short signature: KindOf = %q, want %q", errors.KindOf(err), errors.KindInvalidInput)
	}
}

func TestReceiptFromWrongType(t *testing.T) {
	key := testKey(t)
	e, err := event.NewHeartbeatEvent(event.HeartbeatContent{Load: 0.5, UptimeSeconds: 60}, nil, 1, key)
	if err != nil {
		t.Fatalf("NewHeartbeatEvent() error: %v", err)
	}

	if _, err := e.Receipt(); errors.KindOf(err) != errors.KindInvalidInput {
		t.Fatalf("KindOf = %q, want %q", errors.KindOf(err), errors.KindInvalidInput)
	}
}

func TestTypedContent(t *testing.T) {
	key := testKey(t)

	announce, err := event.NewAnnounceEvent(event.AnnounceContent{
		Name:         "node-a",
		Address:      "10.0.0.1:7421",
		Version:      "0.3.0",
		Capabilities: []string{"hash", "json"},
	}, nil, 1, key)
	if err != nil {
		t.Fatalf("NewAnnounceEvent() error: %v", err)
	}
	var ac event.AnnounceContent
	if err := json.Unmarshal(announce.Content, &ac); err != nil {
		t.Fatalf("unmarshal announce content: %v", err)
	}
	if ac.Name != "node-a" || len(ac.Capabilities) != 2 {
		t.Errorf("announce content = %+v", ac)
	}

	hb, err := event.NewHeartbeatEvent(event.HeartbeatContent{Load: 0.25, UptimeSeconds: 900}, nil, 2, key)
	if err != nil {
		t.Fatalf("NewHeartbeatEvent() error: %v", err)
	}
	var hc event.HeartbeatContent
	if err := json.Unmarshal(hb.Content, &hc); err != nil {
		t.Fatalf("unmarshal heartbeat content: %v", err)
	}
	if hc.Load != 0.25 || hc.UptimeSeconds != 900 {
		t.Errorf("heartbeat content = %+v", hc)
	}

	leave, err := event.NewLeaveEvent("maintenance", nil, 3, key)
	if err != nil {
		t.Fatalf("NewLeaveEvent() error: %v", err)
	}
	var lc event.LeaveContent
	if err := json.Unmarshal(leave.Content, &lc); err != nil {
		t.Fatalf("unmarshal leave content: %v", err)
	}
	if lc.Reason != "maintenance" {
		t.Errorf("leave reason = %q", lc.Reason)
	}
}
