package status

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"arb-engine/internal/metrics"
	"arb-engine/internal/risk"
)

// Provider supplies the live engine state the status surface serves. The
// orchestrator in cmd/engine wires its own metrics.Recorder, risk.Context
// and book.Store together to satisfy this.
type Provider interface {
	MetricsSummary() metrics.Summary
	RecentTrades(limit int) []metrics.TradeRecord
	RiskSnapshot() risk.Snapshot
	TrackedAssets() []string
}

// AllowedOrigins gates the websocket upgrade's Origin check.
type AllowedOrigins struct {
	Origins []string
}

type handlers struct {
	provider Provider
	origins  AllowedOrigins
	hub      *hub
	logger   *slog.Logger
}

func newHandlers(provider Provider, origins AllowedOrigins, h *hub, logger *slog.Logger) *handlers {
	return &handlers{provider: provider, origins: origins, hub: h, logger: logger.With("component", "status-handlers")}
}

func buildSnapshot(p Provider) Snapshot {
	assets := p.TrackedAssets()
	return Snapshot{
		Timestamp:     time.Now(),
		Metrics:       p.MetricsSummary(),
		Risk:          newRiskView(p.RiskSnapshot()),
		TrackedAssets: len(assets),
		AssetIDs:      assets,
		RecentTrades:  p.RecentTrades(20),
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *handlers) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := buildSnapshot(h.provider)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.logger.Error("failed to encode snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.origins, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h.hub, conn)

	evt := Event{Type: "snapshot", Timestamp: time.Now(), Data: buildSnapshot(h.provider)}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}

	select {
	case c.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client")
	}
}

func isOriginAllowed(origin string, allowed AllowedOrigins, reqHost string) bool {
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(allowed.Origins) > 0 {
		for _, a := range allowed.Origins {
			u, err := url.Parse(a)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
