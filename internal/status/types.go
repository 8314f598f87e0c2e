package status

import (
	"time"

	"github.com/shopspring/decimal"

	"arb-engine/internal/metrics"
	"arb-engine/internal/risk"
)

// Snapshot is the complete point-in-time engine state the status surface
// exposes as JSON.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Metrics metrics.Summary `json:"metrics"`
	Risk    RiskView        `json:"risk"`

	TrackedAssets int      `json:"tracked_assets"`
	AssetIDs      []string `json:"asset_ids"`

	RecentTrades []metrics.TradeRecord `json:"recent_trades"`
}

// RiskView is the JSON-friendly projection of risk.Snapshot.
type RiskView struct {
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	GrossExposure    decimal.Decimal `json:"gross_exposure"`
	MaxDailyLoss     decimal.Decimal `json:"max_daily_loss"`
	MaxGrossExposure decimal.Decimal `json:"max_gross_exposure"`
	DailyLossBreach  bool            `json:"daily_loss_breach"`
	ExposureBreach   bool            `json:"exposure_breach"`
}

func newRiskView(s risk.Snapshot) RiskView {
	return RiskView{
		RealizedPnL:      s.RealizedPnL,
		GrossExposure:    s.GrossExposure,
		MaxDailyLoss:     s.MaxDailyLoss,
		MaxGrossExposure: s.MaxGrossExposure,
		DailyLossBreach:  s.DailyLossBreach,
		ExposureBreach:   s.ExposureBreach,
	}
}

// Event is the wrapper broadcast to every websocket subscriber. Type is
// always "snapshot" today; the shape matches the teacher's dashboard event
// envelope so a future event type can be added without breaking clients.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
