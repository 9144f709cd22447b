package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/internal/convergence"
	"github.com/parityarb/parity-bot/internal/execution"
	"github.com/parityarb/parity-bot/internal/ledger"
	"github.com/parityarb/parity-bot/internal/parity"
	"github.com/parityarb/parity-bot/pkg/money"
)

const (
	tradingLoopInterval     = 100 * time.Millisecond
	exitLoopInterval        = 1 * time.Second
	persistenceLoopInterval = 60 * time.Second
)

// runTradingLoop scans every registered market for a parity signal and,
// if the risk governor clears it, enters a paired position.
func (a *App) runTradingLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(tradingLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.scanAndEnter()
		}
	}
}

func (a *App) scanAndEnter() {
	if !a.ledger.CanOpenNew() {
		return
	}

	signal, ok := a.parityDetector.Best()
	if !ok {
		return
	}

	if check := a.riskGovernor.CheckCanTrade(); !check.Passed {
		a.logger.Debug("trade-blocked-by-risk-gate",
			zap.String("condition-id", signal.ConditionID),
			zap.String("violation", string(check.Violation)),
			zap.String("message", check.Message))
		return
	}

	size := signal.MaxSize
	if check := a.riskGovernor.CheckTradeSize(size, signal.CombinedCost); !check.Passed {
		a.logger.Debug("trade-size-blocked-by-risk-gate",
			zap.String("condition-id", signal.ConditionID),
			zap.String("violation", string(check.Violation)))
		return
	}

	a.enterPosition(signal, size)
}

func (a *App) enterPosition(signal parity.Signal, size money.Decimal) {
	if a.executor == nil {
		a.logger.Info("signal-detected-dry-run",
			zap.String("condition-id", signal.ConditionID),
			zap.String("net-edge", signal.NetEdge.String()),
			zap.String("size", size.String()))
		return
	}

	result := a.executor.ExecuteEntry(a.ctx, signal, size)
	success := result.Status == execution.ExecutionComplete
	a.riskGovernor.RecordTrade(success, money.Zero)

	if !success {
		a.logger.Warn("entry-execution-failed",
			zap.String("condition-id", signal.ConditionID),
			zap.String("status", string(result.Status)))
		return
	}

	pos := a.ledger.Add(
		signal.ConditionID,
		signal.YesTokenID,
		signal.NoTokenID,
		result.ActualFilledSize,
		result.YesLeg.Price,
		result.NoLeg.Price,
		result.ExecutionID,
		result.CompletedAt,
	)

	a.logger.Info("position-opened",
		zap.String("position-id", pos.PositionID),
		zap.String("condition-id", pos.ConditionID),
		zap.String("size", pos.Size.String()),
		zap.String("expected-profit", result.ExpectedProfit.String()))
}

// runExitLoop checks every open position for a convergence-driven exit
// signal and closes it out when one fires.
func (a *App) runExitLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(exitLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.scanAndExit()
		}
	}
}

func (a *App) scanAndExit() {
	for _, pos := range a.ledger.ListOpen() {
		shouldExit, reason := a.convergenceDetector.ShouldExit(pos.ConditionID)
		if !shouldExit {
			continue
		}

		a.logger.Info("convergence-exit-triggered",
			zap.String("position-id", pos.PositionID),
			zap.String("condition-id", pos.ConditionID),
			zap.String("reason", string(reason)))

		a.exitPosition(pos, reason)
	}
}

func (a *App) exitPosition(pos *ledger.PairedPosition, reason convergence.Reason) {
	if err := a.ledger.MarkExiting(pos.PositionID); err != nil {
		a.logger.Warn("mark-exiting-failed", zap.String("position-id", pos.PositionID), zap.Error(err))
		return
	}

	if a.executor == nil {
		a.logger.Info("exit-signal-dry-run", zap.String("position-id", pos.PositionID))
		return
	}

	yesBid, okYesBid := money.Zero, false
	noBid, okNoBid := money.Zero, false
	if mb, ok := a.bookStore.GetMarket(pos.ConditionID); ok {
		yesBid, okYesBid = mb.Yes.BestBid()
		noBid, okNoBid = mb.No.BestBid()
	}

	// No live book (market_not_found or an empty ladder): fall back to a
	// REST quote rather than submit a sell at price 0.
	if !okYesBid {
		yesBid, okYesBid = a.executor.QuoteSellPrice(a.ctx, pos.YesTokenID)
	}
	if !okNoBid {
		noBid, okNoBid = a.executor.QuoteSellPrice(a.ctx, pos.NoTokenID)
	}
	if !okYesBid || !okNoBid {
		a.logger.Warn("exit-skipped-no-quote",
			zap.String("position-id", pos.PositionID),
			zap.String("reason", string(reason)))
		return
	}

	result := a.executor.ExecuteExit(a.ctx, pos.ConditionID, pos.YesTokenID, pos.NoTokenID, pos.Size, yesBid, noBid)
	proceeds := result.YesLeg.Price.Mul(result.YesLeg.FilledSize).Add(result.NoLeg.Price.Mul(result.NoLeg.FilledSize))

	if err := a.ledger.Close(pos.PositionID, result.YesLeg.Price, result.NoLeg.Price, proceeds, result.CompletedAt); err != nil {
		a.logger.Warn("close-position-failed", zap.String("position-id", pos.PositionID), zap.Error(err))
		return
	}

	closed, _ := a.ledger.Get(pos.PositionID)
	if closed != nil {
		a.riskGovernor.RecordPnL(closed.RealizedPnL)
	}

	a.logger.Info("position-closed",
		zap.String("position-id", pos.PositionID),
		zap.String("reason", string(reason)),
		zap.String("proceeds", proceeds.String()))
}

// runHealthLoop periodically reports the governor's combined health
// signal, latching the kill switch handler output into logs.
func (a *App) runHealthLoop() {
	defer a.wg.Done()

	interval := a.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			health := a.riskGovernor.RunHealthCheck()
			a.healthChecker.SetReady(health.Healthy)
			if !health.Healthy {
				a.logger.Warn("health-check-unhealthy",
					zap.Strings("issues", health.Issues),
					zap.Bool("kill-switch-active", health.KillSwitchActive))
			}
		}
	}
}

// runPersistenceLoop periodically snapshots every ledger position and the
// daily stats to durable storage so a restart can resume from the last state.
func (a *App) runPersistenceLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(persistenceLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.persistNow()
			return
		case <-ticker.C:
			a.persistNow()
		}
	}
}

func (a *App) persistNow() {
	if a.storage == nil {
		return
	}

	for _, pos := range a.ledger.ListAll() {
		if err := a.storage.SavePosition(a.ctx, pos); err != nil {
			a.logger.Warn("save-position-failed", zap.String("position-id", pos.PositionID), zap.Error(err))
		}
	}

	stats := a.riskGovernor.DailyStatsSnapshot()
	if err := a.storage.SaveDailyStats(a.ctx, stats); err != nil {
		a.logger.Warn("save-daily-stats-failed", zap.Error(err))
	}
}
