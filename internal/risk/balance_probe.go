package risk

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/pkg/wallet"
)

// BalanceFetcher fetches on-chain wallet balances. wallet.Client and test
// doubles both implement it.
type BalanceFetcher interface {
	GetBalances(ctx context.Context, address common.Address) (*wallet.Balances, error)
}

// BalanceProbe monitors on-chain USDC balance and feeds Governor.RunHealthCheck()
// with a balance-derived issue when funds run low relative to recent
// trade sizes. It augments the governor's health signal; it is not
// itself one of the ordered CheckCanTrade gates (spec.md §4.6 enumerates
// those exhaustively).
//
// Thresholds adapt to recent trade size with hysteresis, so a noisy
// balance near the boundary doesn't flap the signal every check.
type BalanceProbe struct {
	enabled atomic.Bool

	checkInterval   time.Duration
	walletClient    BalanceFetcher
	address         common.Address
	logger          *zap.Logger
	tradeMultiplier float64
	minAbsolute     float64
	hysteresisRatio float64

	mu               sync.RWMutex
	lastBalance      float64
	lastCheck        time.Time
	recentTrades     []float64
	disableThreshold float64
	enableThreshold  float64
}

// BalanceProbeConfig configures a BalanceProbe.
type BalanceProbeConfig struct {
	CheckInterval   time.Duration
	TradeMultiplier float64
	MinAbsolute     float64
	HysteresisRatio float64
	WalletClient    BalanceFetcher
	Address         common.Address
	Logger          *zap.Logger
}

// NewBalanceProbe builds a balance probe, starting enabled.
func NewBalanceProbe(cfg BalanceProbeConfig) (*BalanceProbe, error) {
	if cfg.WalletClient == nil {
		return nil, fmt.Errorf("wallet client cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive")
	}
	if cfg.TradeMultiplier <= 0 {
		return nil, fmt.Errorf("trade multiplier must be positive")
	}
	if cfg.MinAbsolute <= 0 {
		return nil, fmt.Errorf("min absolute must be positive")
	}
	if cfg.HysteresisRatio < 1.0 {
		return nil, fmt.Errorf("hysteresis ratio must be >= 1.0")
	}

	p := &BalanceProbe{
		checkInterval:    cfg.CheckInterval,
		walletClient:     cfg.WalletClient,
		address:          cfg.Address,
		logger:           cfg.Logger,
		tradeMultiplier:  cfg.TradeMultiplier,
		minAbsolute:      cfg.MinAbsolute,
		hysteresisRatio:  cfg.HysteresisRatio,
		recentTrades:     make([]float64, 0, 20),
		disableThreshold: cfg.MinAbsolute,
		enableThreshold:  cfg.MinAbsolute * cfg.HysteresisRatio,
	}
	p.enabled.Store(true)

	BalanceProbeEnabled.Set(1)
	return p, nil
}

// IsEnabled is a lock-free, hot-path-safe read of whether balance is
// above the current disable threshold.
func (p *BalanceProbe) IsEnabled() bool { return p.enabled.Load() }

// RecordTrade feeds a completed trade's notional into the rolling window
// used to compute the adaptive thresholds.
func (p *BalanceProbe) RecordTrade(notional float64) {
	if notional <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.recentTrades = append(p.recentTrades, notional)
	if len(p.recentTrades) > 20 {
		p.recentTrades = p.recentTrades[1:]
	}

	sum := 0.0
	for _, size := range p.recentTrades {
		sum += size
	}
	avg := sum / float64(len(p.recentTrades))

	p.disableThreshold = math.Max(avg*p.tradeMultiplier, p.minAbsolute)
	p.enableThreshold = p.disableThreshold * p.hysteresisRatio
}

// CheckBalance fetches the current USDC balance and applies hysteresis
// state transition logic.
func (p *BalanceProbe) CheckBalance(ctx context.Context) error {
	balances, err := p.walletClient.GetBalances(ctx, p.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	usdcFloat := new(big.Float).Quo(new(big.Float).SetInt(balances.USDC), big.NewFloat(1e6))
	balance, _ := usdcFloat.Float64()

	p.mu.Lock()
	disableThreshold := p.disableThreshold
	enableThreshold := p.enableThreshold
	p.lastBalance = balance
	p.lastCheck = time.Now()
	p.mu.Unlock()

	BalanceProbeBalance.Set(balance)

	currentlyEnabled := p.enabled.Load()
	shouldDisable := currentlyEnabled && balance < disableThreshold
	shouldEnable := !currentlyEnabled && balance >= enableThreshold

	switch {
	case shouldDisable:
		p.enabled.Store(false)
		BalanceProbeEnabled.Set(0)
		p.logger.Warn("balance probe disabled",
			zap.Float64("balance", balance),
			zap.Float64("disable_threshold", disableThreshold))
	case shouldEnable:
		p.enabled.Store(true)
		BalanceProbeEnabled.Set(1)
		p.logger.Info("balance probe enabled",
			zap.Float64("balance", balance),
			zap.Float64("enable_threshold", enableThreshold))
	}

	return nil
}

// Start runs an immediate check followed by a periodic monitor loop
// until ctx is cancelled.
func (p *BalanceProbe) Start(ctx context.Context) {
	if err := p.CheckBalance(ctx); err != nil {
		p.logger.Error("initial balance check failed", zap.Error(err))
	}
	go p.monitorLoop(ctx)
}

func (p *BalanceProbe) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.CheckBalance(ctx); err != nil {
				p.logger.Error("balance check error", zap.Error(err))
			}
		}
	}
}
