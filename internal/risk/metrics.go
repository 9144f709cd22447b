package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KillSwitchActive indicates whether the kill switch is latched.
	KillSwitchActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parity_risk_kill_switch_active",
		Help: "Whether the kill switch is latched (1=active, 0=reset)",
	})

	// ConsecutiveFailures tracks the current consecutive-failure count.
	ConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parity_risk_consecutive_failures",
		Help: "Current count of consecutive failed trades",
	})

	// DailyRealizedPnL tracks today's realized P&L.
	DailyRealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parity_risk_daily_realized_pnl",
		Help: "Realized P&L for the current UTC trading day",
	})

	// GateRejectionsTotal counts pre-trade gate rejections by violation.
	GateRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parity_risk_gate_rejections_total",
			Help: "Total number of pre-trade gate rejections by violation",
		},
		[]string{"violation"},
	)

	// BalanceProbeEnabled indicates whether the wallet balance probe allows trading.
	BalanceProbeEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parity_risk_balance_probe_enabled",
		Help: "Whether wallet balance is above the trading threshold (1=ok, 0=disabled)",
	})

	// BalanceProbeBalance tracks the last checked USDC balance.
	BalanceProbeBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parity_risk_balance_probe_usdc",
		Help: "Last checked USDC balance in the trading wallet",
	})
)
