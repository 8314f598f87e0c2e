package status

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"arb-engine/internal/metrics"
	"arb-engine/internal/risk"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	summary metrics.Summary
	recent  []metrics.TradeRecord
	risk    risk.Snapshot
	assets  []string
}

func (f fakeProvider) MetricsSummary() metrics.Summary              { return f.summary }
func (f fakeProvider) RecentTrades(limit int) []metrics.TradeRecord { return f.recent }
func (f fakeProvider) RiskSnapshot() risk.Snapshot                  { return f.risk }
func (f fakeProvider) TrackedAssets() []string                      { return f.assets }

func TestHandleHealthReturnsOK(t *testing.T) {
	t.Parallel()

	h := newHandlers(fakeProvider{}, AllowedOrigins{}, newHub(testLogger()), testLogger())
	rec := httptest.NewRecorder()
	h.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body[status] = %q, want ok", body["status"])
	}
}

func TestHandleSnapshotEncodesProviderState(t *testing.T) {
	t.Parallel()

	p := fakeProvider{
		summary: metrics.Summary{TotalTrades: 3, Successful: 2},
		assets:  []string{"asset-a", "asset-b"},
		risk:    risk.Snapshot{RealizedPnL: decimal.NewFromFloat(-5), DailyLossBreach: true},
	}
	h := newHandlers(p, AllowedOrigins{}, newHub(testLogger()), testLogger())
	rec := httptest.NewRecorder()
	h.handleSnapshot(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Metrics.TotalTrades != 3 {
		t.Errorf("Metrics.TotalTrades = %d, want 3", snap.Metrics.TotalTrades)
	}
	if snap.TrackedAssets != 2 || len(snap.AssetIDs) != 2 {
		t.Errorf("TrackedAssets/AssetIDs = %d/%v, want 2 assets", snap.TrackedAssets, snap.AssetIDs)
	}
	if !snap.Risk.DailyLossBreach {
		t.Error("Risk.DailyLossBreach = false, want true")
	}
}

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		allowed AllowedOrigins
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			reqHost: "localhost:8090",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:8090",
			reqHost: "localhost:8090",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			reqHost: "localhost:8090",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://status.example.com",
			allowed: AllowedOrigins{Origins: []string{"https://status.example.com"}},
			reqHost: "0.0.0.0:8090",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "https://evil.example",
			allowed: AllowedOrigins{Origins: []string{"https://status.example.com"}},
			reqHost: "0.0.0.0:8090",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://engine.internal:8090",
			reqHost: "engine.internal:8090",
			want:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.allowed, tt.reqHost); got != tt.want {
				t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}
