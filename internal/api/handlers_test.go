package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealthReturnsOK(t *testing.T) {
	t.Parallel()
	h := NewHandlers(NewRecorder(false, nil), slog.Default())

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestHandleSnapshotReportsRecordedActivity(t *testing.T) {
	t.Parallel()
	r := NewRecorder(true, []AccountStatus{{Exchange: "simex", Owner: "owner-1"}})
	r.RecordTrade(TradeSummary{Exchange: "simex", Owner: "owner-1", From: "BTC", To: "USD", State: "complete"})
	r.RecordWithdraw(WithdrawSummary{Exchange: "simex", Owner: "owner-1", Currency: "BTC", Status: "success"})
	r.RecordDustSweep(DustSummary{Exchange: "simex", Owner: "owner-1", Currency: "XRP", Outcome: "cleared"})

	h := NewHandlers(r, slog.Default())
	rec := httptest.NewRecorder()
	h.HandleSnapshot(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !snap.DryRun {
		t.Error("expected DryRun true to round-trip")
	}
	if len(snap.Accounts) != 1 || snap.Accounts[0].Exchange != "simex" {
		t.Errorf("Accounts = %+v", snap.Accounts)
	}
	if len(snap.RecentTrades) != 1 || snap.RecentTrades[0].State != "complete" {
		t.Errorf("RecentTrades = %+v", snap.RecentTrades)
	}
	if len(snap.RecentWithdraws) != 1 || snap.RecentWithdraws[0].Status != "success" {
		t.Errorf("RecentWithdraws = %+v", snap.RecentWithdraws)
	}
	if len(snap.RecentDustSweeps) != 1 || snap.RecentDustSweeps[0].Outcome != "cleared" {
		t.Errorf("RecentDustSweeps = %+v", snap.RecentDustSweeps)
	}
}

func TestRecorderBoundsRecentWindow(t *testing.T) {
	t.Parallel()
	r := NewRecorder(false, nil)
	for i := 0; i < recentWindow+10; i++ {
		r.RecordTrade(TradeSummary{Exchange: "simex"})
	}
	snap := r.Snapshot()
	if len(snap.RecentTrades) != recentWindow {
		t.Errorf("len(RecentTrades) = %d, want %d", len(snap.RecentTrades), recentWindow)
	}
}
