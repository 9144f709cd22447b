// Package risk implements the pre-trade risk governor: an ordered set of
// gate checks (kill-switch, cooldown, position limits, daily loss,
// consecutive failures) plus health monitoring for the orchestrator's
// health loop.
package risk

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/internal/ledger"
	"github.com/parityarb/parity-bot/pkg/money"
)

// Violation names a specific risk gate failure.
type Violation string

const (
	ViolationMaxDailyLoss        Violation = "max_daily_loss"
	ViolationMaxPositionValue    Violation = "max_position_value"
	ViolationMaxOpenPairs        Violation = "max_open_pairs"
	ViolationCooldownActive      Violation = "cooldown_active"
	ViolationKillSwitchTriggered Violation = "kill_switch_triggered"
	ViolationConsecutiveFailures Violation = "consecutive_failures"
)

// Check is the outcome of a risk gate evaluation.
type Check struct {
	Passed    bool
	Violation Violation
	Message   string
}

// Ok builds a passing check.
func Ok() Check { return Check{Passed: true} }

// Fail builds a failing check with a violation code and message,
// incrementing the gate-rejection metric for the violation.
func Fail(v Violation, message string) Check {
	GateRejectionsTotal.WithLabelValues(string(v)).Inc()
	return Check{Passed: false, Violation: v, Message: message}
}

// DailyStats tracks trading activity for a single UTC calendar day.
type DailyStats struct {
	Date         string // YYYY-MM-DD, UTC
	TradesCount  int
	TotalVolume  money.Decimal
	RealizedPnL  money.Decimal
	MaxDrawdown  money.Decimal
	PeakPnL      money.Decimal
}

// Config carries the thresholds the governor enforces.
type Config struct {
	MaxDailyLoss            money.Decimal
	MaxPositionValue        money.Decimal
	MaxConsecutiveFailures  int
	KillSwitchLossThreshold money.Decimal
	CooldownMillis          int64
	MaxNotionalPerTrade     money.Decimal
}

// Governor enforces the pre-trade risk gate and tracks the state that
// feeds it: kill-switch latch, cooldown timer, consecutive failure
// count, and rolling daily P&L.
type Governor struct {
	mu sync.Mutex

	cfg      Config
	ledger   *ledger.Ledger
	logger   *zap.Logger
	probe    *BalanceProbe

	killSwitchActive bool
	killSwitchReason string
	lastTradeTime    time.Time
	consecutiveFails int
	daily            *DailyStats

	wsConnected   bool
	lastWSMessage time.Time

	onKillSwitch []func(reason string)
}

// NewGovernor builds a risk governor backed by the given ledger for
// exposure/position-count reads.
func NewGovernor(cfg Config, l *ledger.Ledger, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{cfg: cfg, ledger: l, logger: logger}
}

// SetBalanceProbe attaches a wallet-balance health probe. Optional — a
// governor with no probe simply omits balance issues from RunHealthCheck().
func (g *Governor) SetBalanceProbe(p *BalanceProbe) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.probe = p
}

// OnKillSwitch registers a callback invoked when the kill switch
// activates.
func (g *Governor) OnKillSwitch(cb func(reason string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onKillSwitch = append(g.onKillSwitch, cb)
}

func (g *Governor) triggerKillSwitchLocked(reason string) {
	g.killSwitchActive = true
	g.killSwitchReason = reason
	KillSwitchActive.Set(1)
	g.logger.Error("kill switch triggered", zap.String("reason", reason))
	for _, cb := range g.onKillSwitch {
		cb(reason)
	}
}

// ResetKillSwitch clears the kill switch. Manual-reset only, per
// spec.md §4.6 — the governor never clears it on its own.
func (g *Governor) ResetKillSwitch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killSwitchActive = false
	g.killSwitchReason = ""
	KillSwitchActive.Set(0)
	g.logger.Info("kill switch reset")
}

// IsKillSwitchActive reports the kill-switch latch state.
func (g *Governor) IsKillSwitchActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.killSwitchActive
}

// CheckCanTrade runs the ordered pre-trade gate: kill-switch, cooldown,
// max open pairs, daily loss, max position value, consecutive failures.
func (g *Governor) CheckCanTrade() Check {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.killSwitchActive {
		return Fail(ViolationKillSwitchTriggered,
			fmt.Sprintf("kill switch active: %s", g.killSwitchReason))
	}

	if remaining := g.cooldownRemainingLocked(); remaining > 0 {
		return Fail(ViolationCooldownActive,
			fmt.Sprintf("cooldown active: %dms remaining", remaining))
	}

	if !g.ledger.CanOpenNew() {
		return Fail(ViolationMaxOpenPairs,
			fmt.Sprintf("max open pairs reached: %d", g.ledger.OpenCount()))
	}

	dailyPnL := g.dailyPnLLocked()
	if dailyPnL.LessThan(g.cfg.MaxDailyLoss.Neg()) {
		g.triggerKillSwitchLocked(fmt.Sprintf("daily loss limit exceeded: %s", dailyPnL))
		return Fail(ViolationMaxDailyLoss,
			fmt.Sprintf("daily loss limit exceeded: %s", dailyPnL))
	}

	exposure := g.ledger.TotalExposure()
	if exposure.GreaterThanOrEqual(g.cfg.MaxPositionValue) {
		return Fail(ViolationMaxPositionValue,
			fmt.Sprintf("max position value reached: %s", exposure))
	}

	if g.consecutiveFails >= g.cfg.MaxConsecutiveFailures {
		return Fail(ViolationConsecutiveFailures,
			fmt.Sprintf("too many consecutive failures: %d", g.consecutiveFails))
	}

	return Ok()
}

// CheckTradeSize validates a specific trade's notional against the
// per-trade cap and the remaining position-value headroom.
func (g *Governor) CheckTradeSize(size, combinedCost money.Decimal) Check {
	g.mu.Lock()
	defer g.mu.Unlock()

	notional := size.Mul(combinedCost)
	if notional.GreaterThan(g.cfg.MaxNotionalPerTrade) {
		return Fail(ViolationMaxPositionValue,
			fmt.Sprintf("trade notional %s exceeds max %s", notional, g.cfg.MaxNotionalPerTrade))
	}

	newTotal := g.ledger.TotalExposure().Add(notional)
	if newTotal.GreaterThan(g.cfg.MaxPositionValue) {
		return Fail(ViolationMaxPositionValue, "trade would exceed max position value")
	}

	return Ok()
}

func (g *Governor) cooldownRemainingLocked() int64 {
	if g.lastTradeTime.IsZero() {
		return 0
	}
	elapsedMs := time.Since(g.lastTradeTime).Milliseconds()
	remaining := g.cfg.CooldownMillis - elapsedMs
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordTrade logs a trade attempt's outcome, resetting or incrementing
// the consecutive-failure counter and starting the cooldown timer.
func (g *Governor) RecordTrade(success bool, pnl money.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastTradeTime = time.Now()

	if success {
		g.consecutiveFails = 0
		ConsecutiveFailures.Set(0)
		g.updateDailyStatsLocked(pnl)
		return
	}

	g.consecutiveFails++
	ConsecutiveFailures.Set(float64(g.consecutiveFails))
	if g.consecutiveFails >= g.cfg.MaxConsecutiveFailures {
		g.triggerKillSwitchLocked(fmt.Sprintf("consecutive failures: %d", g.consecutiveFails))
	}
}

// RecordPnL updates the daily P&L rollup and latches the kill switch if
// the configured loss threshold is breached.
func (g *Governor) RecordPnL(pnl money.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.updateDailyStatsLocked(pnl)

	dailyPnL := g.dailyPnLLocked()
	if dailyPnL.LessThan(g.cfg.KillSwitchLossThreshold.Neg()) {
		g.triggerKillSwitchLocked(fmt.Sprintf("loss threshold exceeded: %s", dailyPnL))
	}
}

func (g *Governor) dailyPnLLocked() money.Decimal {
	g.ensureDailyStatsLocked()
	return g.daily.RealizedPnL
}

func utcDateString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ensureDailyStatsLocked rolls DailyStats over at UTC midnight.
func (g *Governor) ensureDailyStatsLocked() {
	today := utcDateString(time.Now())
	if g.daily == nil || g.daily.Date != today {
		g.daily = &DailyStats{Date: today}
	}
}

func (g *Governor) updateDailyStatsLocked(pnl money.Decimal) {
	g.ensureDailyStatsLocked()

	g.daily.TradesCount++
	g.daily.RealizedPnL = g.daily.RealizedPnL.Add(pnl)

	if g.daily.RealizedPnL.GreaterThan(g.daily.PeakPnL) {
		g.daily.PeakPnL = g.daily.RealizedPnL
	}
	drawdown := g.daily.PeakPnL.Sub(g.daily.RealizedPnL)
	if drawdown.GreaterThan(g.daily.MaxDrawdown) {
		g.daily.MaxDrawdown = drawdown
	}
	DailyRealizedPnL.Set(g.daily.RealizedPnL.Float64())
}

// DailyStatsSnapshot returns a copy of today's stats (rolling the day
// over first, if needed).
func (g *Governor) DailyStatsSnapshot() DailyStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureDailyStatsLocked()
	return *g.daily
}

// UpdateWSStatus feeds WebSocket connectivity into the health check.
func (g *Governor) UpdateWSStatus(connected bool, lastMessage time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wsConnected = connected
	if !lastMessage.IsZero() {
		g.lastWSMessage = lastMessage
	}
}

// Health is the result of RunHealthCheck.
type Health struct {
	Healthy            bool
	Issues             []string
	WSConnected        bool
	KillSwitchActive   bool
	ConsecutiveFailures int
	DailyPnL           money.Decimal
	OpenPositions      int
	TotalExposure      money.Decimal
	CheckedAt          time.Time
}

// RunHealthCheck evaluates WS connectivity, data staleness, kill-switch
// state, consecutive failures, daily P&L, and (if attached) wallet
// balance health, returning a combined report.
func (g *Governor) RunHealthCheck() Health {
	g.mu.Lock()
	wsConnected := g.wsConnected
	lastWSMessage := g.lastWSMessage
	killSwitchActive := g.killSwitchActive
	killSwitchReason := g.killSwitchReason
	consecutiveFails := g.consecutiveFails
	dailyPnL := g.dailyPnLLocked()
	probe := g.probe
	g.mu.Unlock()

	now := time.Now()
	var issues []string

	if !wsConnected {
		issues = append(issues, "WebSocket disconnected")
	}
	if !lastWSMessage.IsZero() {
		age := now.Sub(lastWSMessage)
		if age > 60*time.Second {
			issues = append(issues, fmt.Sprintf("stale data: %.0fs since last update", age.Seconds()))
		}
	}
	if killSwitchActive {
		issues = append(issues, fmt.Sprintf("kill switch active: %s", killSwitchReason))
	}
	if consecutiveFails > 0 {
		issues = append(issues, fmt.Sprintf("consecutive failures: %d", consecutiveFails))
	}
	if dailyPnL.IsNegative() {
		issues = append(issues, fmt.Sprintf("daily P&L negative: %s", dailyPnL))
	}
	if probe != nil && !probe.IsEnabled() {
		issues = append(issues, "wallet balance below trading threshold")
	}

	return Health{
		Healthy:             len(issues) == 0,
		Issues:              issues,
		WSConnected:         wsConnected,
		KillSwitchActive:    killSwitchActive,
		ConsecutiveFailures: consecutiveFails,
		DailyPnL:            dailyPnL,
		OpenPositions:       g.ledger.OpenCount(),
		TotalExposure:       g.ledger.TotalExposure(),
		CheckedAt:           now,
	}
}
