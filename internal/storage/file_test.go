package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "nutripush/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " None "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q) err = %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) should return nil store", driver)
		}
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should error")
	}
}

func TestSubscriptionSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	snap := map[string][]SubscriptionRecord{
		"u1": {{Endpoint: "ep1", P256dh: "p1", Auth: "a1"}, {Endpoint: "ep2", P256dh: "p2", Auth: "a2"}},
		"u2": {{Endpoint: "ep3", P256dh: "p3", Auth: "a3"}},
	}
	if err := st.SaveSubscriptions(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.LoadSubscriptions(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || len(got["u1"]) != 2 || got["u1"][1].Endpoint != "ep2" || got["u2"][0].Auth != "a3" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// A later save fully replaces the snapshot.
	if err := st.SaveSubscriptions(ctx, map[string][]SubscriptionRecord{}); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	got, err = st.LoadSubscriptions(ctx)
	if err != nil {
		t.Fatalf("load after replace: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("snapshot should be replaced, got %+v", got)
	}
}

func TestLoadSubscriptionsMissingFile(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	got, err := st.LoadSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("missing snapshot should load as empty map, got %v", got)
	}
}

func TestDeliveriesReverseChronologicalPaging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := DeliveryRecord{
			ID:     fmt.Sprintf("rec-%d", i),
			UserID: "u1",
			SentAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.AppendDelivery(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := st.AppendDelivery(ctx, DeliveryRecord{ID: "other", UserID: "u2", SentAt: base}); err != nil {
		t.Fatalf("append other user: %v", err)
	}

	page, err := st.Deliveries(ctx, "u1", 2, 0)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page) != 2 || page[0].ID != "rec-4" || page[1].ID != "rec-3" {
		t.Fatalf("page 1 = %+v, want [rec-4 rec-3]", page)
	}

	page, err = st.Deliveries(ctx, "u1", 2, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page) != 2 || page[0].ID != "rec-2" || page[1].ID != "rec-1" {
		t.Fatalf("page 2 = %+v, want [rec-2 rec-1]", page)
	}

	page, err = st.Deliveries(ctx, "u1", 10, 4)
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "rec-0" {
		t.Fatalf("last page = %+v, want [rec-0]", page)
	}

	page, err = st.Deliveries(ctx, "u2", 0, 0)
	if err != nil {
		t.Fatalf("other user: %v", err)
	}
	if len(page) != 1 || page[0].ID != "other" {
		t.Fatalf("other user page = %+v", page)
	}
}

func TestDeliveriesSkipsTornLines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	if err := st.AppendDelivery(ctx, DeliveryRecord{ID: "ok-1", UserID: "u1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	fs := st.(*fileStore)
	f, err := os.OpenFile(fs.deliveryPath, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	if _, err := f.WriteString("{\"id\":\"torn\",\"user_id\":\"u1\"\n"); err != nil {
		t.Fatalf("write torn line: %v", err)
	}
	_ = f.Close()

	if err := st.AppendDelivery(ctx, DeliveryRecord{ID: "ok-2", UserID: "u1"}); err != nil {
		t.Fatalf("append after torn: %v", err)
	}

	got, err := st.Deliveries(ctx, "u1", 10, 0)
	if err != nil {
		t.Fatalf("deliveries: %v", err)
	}
	if len(got) != 2 || got[0].ID != "ok-2" || got[1].ID != "ok-1" {
		t.Fatalf("torn line should be skipped, got %+v", got)
	}
}

func TestDeliveryRecordPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t)

	payload := json.RawMessage(`{"title":"Stay Hydrated! 💧"}`)
	rec := DeliveryRecord{
		ID:      "rec-1",
		UserID:  "u1",
		Payload: payload,
		SentAt:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Outcomes: []EndpointOutcome{
			{Endpoint: "ep1", Status: "sent"},
			{Endpoint: "ep2", Status: "gone", Error: "push service returned 410"},
		},
	}
	if err := st.AppendDelivery(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := st.Deliveries(ctx, "u1", 1, 0)
	if err != nil {
		t.Fatalf("deliveries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 record, got %d", len(got))
	}
	if string(got[0].Payload) != string(payload) {
		t.Fatalf("payload = %s, want %s", got[0].Payload, payload)
	}
	if len(got[0].Outcomes) != 2 || got[0].Outcomes[1].Status != "gone" {
		t.Fatalf("outcomes = %+v", got[0].Outcomes)
	}
}
