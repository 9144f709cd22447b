package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/polymarket/go-order-utils/pkg/model"
	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/internal/ledger"
	"github.com/parityarb/parity-bot/internal/parity"
	"github.com/parityarb/parity-bot/pkg/money"
)

// LegStatus is the lifecycle state of a single YES or NO leg order.
type LegStatus string

const (
	LegPending   LegStatus = "pending"
	LegSubmitted LegStatus = "submitted"
	LegPartial   LegStatus = "partial"
	LegFilled    LegStatus = "filled"
	LegCancelled LegStatus = "cancelled"
	LegFailed    LegStatus = "failed"
)

// ExecutionStatus is the lifecycle state of a paired entry or exit trade.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pending"
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionComplete   ExecutionStatus = "complete"
	ExecutionPartial    ExecutionStatus = "partial"
	ExecutionFailed     ExecutionStatus = "failed"
	ExecutionUnwinding  ExecutionStatus = "unwinding"
)

// LegOrder tracks one side (YES or NO) of a paired trade.
type LegOrder struct {
	LegID       string
	TokenID     string
	Outcome     string // "YES" or "NO"
	Side        string // "BUY" or "SELL"
	Price       money.Decimal
	Size        money.Decimal
	OrderID     string
	FilledSize  money.Decimal
	Status      LegStatus
	Err         error
	SubmittedAt time.Time
	FilledAt    time.Time
}

// ExecutionResult is the outcome of a paired entry or exit trade.
type ExecutionResult struct {
	ExecutionID      string
	ConditionID      string
	YesLeg           *LegOrder
	NoLeg            *LegOrder
	Status           ExecutionStatus
	EntryCost        money.Decimal
	ExpectedProfit   money.Decimal
	ActualFilledSize money.Decimal
	CreatedAt        time.Time
	CompletedAt      time.Time
	Err              error
}

// IsComplete reports whether the execution has reached a terminal state.
func (r *ExecutionResult) IsComplete() bool {
	switch r.Status {
	case ExecutionComplete, ExecutionPartial, ExecutionFailed:
		return true
	default:
		return false
	}
}

// NeedsUnwind reports whether the two legs filled by different amounts,
// leaving naked exposure on the side that filled more.
func (r *ExecutionResult) NeedsUnwind() bool {
	if r.YesLeg == nil || r.NoLeg == nil {
		return false
	}
	yesFilled, noFilled := r.YesLeg.FilledSize, r.NoLeg.FilledSize
	return !yesFilled.Equal(noFilled) && (yesFilled.IsPositive() || noFilled.IsPositive())
}

// MetadataClient resolves the tick size and minimum order size an order
// must round to before submission.
type MetadataClient interface {
	FetchTickSize(ctx context.Context, tokenID string) (float64, error)
	FetchMinOrderSize(ctx context.Context, tokenID string) (float64, error)
}

// Config configures an Executor.
type Config struct {
	OrderClient  *OrderClient
	FillTracker  *FillTracker
	Metadata     MetadataClient
	Ledger       *ledger.Ledger
	Logger       *zap.Logger
	OrderTimeout time.Duration
}

// Executor submits paired YES/NO trades and unwinds partial fills so the
// bot never carries naked single-leg exposure.
type Executor struct {
	orderClient  *OrderClient
	fillTracker  *FillTracker
	metadata     MetadataClient
	ledger       *ledger.Ledger
	logger       *zap.Logger
	orderTimeout time.Duration

	mu     sync.Mutex
	active map[string]*ExecutionResult
}

// NewExecutor builds an Executor from cfg, defaulting OrderTimeout to 30s.
func NewExecutor(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.OrderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		orderClient:  cfg.OrderClient,
		fillTracker:  cfg.FillTracker,
		metadata:     cfg.Metadata,
		ledger:       cfg.Ledger,
		logger:       logger,
		orderTimeout: timeout,
		active:       make(map[string]*ExecutionResult),
	}
}

// ExecuteEntry submits the YES and NO legs of signal concurrently, waits
// for fills, and unwinds any partial fill so no naked exposure remains.
func (e *Executor) ExecuteEntry(ctx context.Context, signal parity.Signal, size money.Decimal) *ExecutionResult {
	result := &ExecutionResult{
		ExecutionID: uuid.NewString(),
		ConditionID: signal.ConditionID,
		Status:      ExecutionPending,
		CreatedAt:   time.Now(),
		YesLeg: &LegOrder{
			LegID:   "yes",
			TokenID: signal.YesTokenID,
			Outcome: "YES",
			Side:    "BUY",
			Price:   signal.YesAsk,
			Size:    size,
			Status:  LegPending,
		},
		NoLeg: &LegOrder{
			LegID:   "no",
			TokenID: signal.NoTokenID,
			Outcome: "NO",
			Side:    "BUY",
			Price:   signal.NoAsk,
			Size:    size,
			Status:  LegPending,
		},
	}
	e.registerActive(result)
	defer e.completeActive(result)

	result.Status = ExecutionInProgress

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); e.submitAndWaitLeg(ctx, result.YesLeg) }()
	go func() { defer wg.Done(); e.submitAndWaitLeg(ctx, result.NoLeg) }()
	wg.Wait()

	switch {
	case result.YesLeg.Status == LegFilled && result.NoLeg.Status == LegFilled:
		result.EntryCost = result.YesLeg.Price.Mul(result.YesLeg.FilledSize).
			Add(result.NoLeg.Price.Mul(result.NoLeg.FilledSize))
		result.ActualFilledSize = money.Min(result.YesLeg.FilledSize, result.NoLeg.FilledSize)
		result.ExpectedProfit = signal.NetEdge.Mul(result.ActualFilledSize)
		result.Status = ExecutionComplete
		OpportunitiesExecuted.Inc()
		ProfitRealizedUSD.WithLabelValues("live").Add(result.ExpectedProfit.Float64())
	case result.NeedsUnwind():
		result.Status = ExecutionUnwinding
		e.unwindPartial(ctx, result)
	default:
		result.Status = ExecutionFailed
		result.Err = fmt.Errorf("both legs failed to execute")
		e.cancelOutstanding(ctx, result)
		ExecutionErrorsTotal.Inc()
	}

	result.CompletedAt = time.Now()
	e.logger.Info("entry-execution-finished",
		zap.String("execution-id", result.ExecutionID),
		zap.String("condition-id", result.ConditionID),
		zap.String("status", string(result.Status)))

	return result
}

// ExecuteExit sells both legs of a paired position to close it out,
// typically once convergence.Detector signals the spread has collapsed.
func (e *Executor) ExecuteExit(ctx context.Context, conditionID, yesTokenID, noTokenID string, size money.Decimal, yesBid, noBid money.Decimal) *ExecutionResult {
	result := &ExecutionResult{
		ExecutionID: uuid.NewString(),
		ConditionID: conditionID,
		Status:      ExecutionInProgress,
		CreatedAt:   time.Now(),
		YesLeg: &LegOrder{
			LegID:   "yes-exit",
			TokenID: yesTokenID,
			Outcome: "YES",
			Side:    "SELL",
			Price:   yesBid,
			Size:    size,
			Status:  LegPending,
		},
		NoLeg: &LegOrder{
			LegID:   "no-exit",
			TokenID: noTokenID,
			Outcome: "NO",
			Side:    "SELL",
			Price:   noBid,
			Size:    size,
			Status:  LegPending,
		},
	}
	e.registerActive(result)
	defer e.completeActive(result)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); e.submitAndWaitLeg(ctx, result.YesLeg) }()
	go func() { defer wg.Done(); e.submitAndWaitLeg(ctx, result.NoLeg) }()
	wg.Wait()

	result.ActualFilledSize = money.Min(result.YesLeg.FilledSize, result.NoLeg.FilledSize)
	if result.YesLeg.Status == LegFilled && result.NoLeg.Status == LegFilled {
		result.Status = ExecutionComplete
	} else {
		result.Status = ExecutionPartial
	}
	result.CompletedAt = time.Now()
	return result
}

// QuoteSellPrice fetches a token's current best bid over REST. Callers use
// this to quote an exit when the local twin-book store has no live book
// for the market (e.g. the market_not_found exit path), per decision (b)
// under SPEC_FULL.md's Open Question Decisions.
func (e *Executor) QuoteSellPrice(ctx context.Context, tokenID string) (money.Decimal, bool) {
	price, err := e.orderClient.GetPrice(ctx, tokenID, "sell")
	if err != nil || price <= 0 {
		return money.Zero, false
	}
	return money.NewFromFloat(price), true
}

// submitAndWaitLeg builds, signs and submits one leg, then blocks until it
// is filled, partially filled, or the order timeout elapses.
func (e *Executor) submitAndWaitLeg(ctx context.Context, leg *LegOrder) {
	side := model.BUY
	if leg.Side == "SELL" {
		side = model.SELL
	}

	tickSize, err := e.metadata.FetchTickSize(ctx, leg.TokenID)
	if err != nil {
		leg.Status = LegFailed
		leg.Err = fmt.Errorf("fetch tick size: %w", err)
		return
	}
	minSize, err := e.metadata.FetchMinOrderSize(ctx, leg.TokenID)
	if err != nil {
		leg.Status = LegFailed
		leg.Err = fmt.Errorf("fetch min order size: %w", err)
		return
	}

	notional := leg.Price.Mul(leg.Size).Float64()
	orderData, err := e.orderClient.buildOrderData(side, leg.TokenID, leg.Price.Float64(), notional, tickSize, minSize)
	if err != nil {
		leg.Status = LegFailed
		leg.Err = fmt.Errorf("build order: %w", err)
		return
	}

	leg.Status = LegSubmitted
	leg.SubmittedAt = time.Now()

	resp, err := e.orderClient.PlaceSingleOrder(ctx, orderData)
	if err != nil {
		leg.Status = LegFailed
		leg.Err = fmt.Errorf("submit order: %w", err)
		return
	}
	leg.OrderID = resp.OrderID

	ctx, cancel := context.WithTimeout(ctx, e.orderTimeout)
	defer cancel()

	statuses, err := e.fillTracker.VerifyFills(ctx, []string{leg.OrderID}, []string{leg.Outcome}, []float64{leg.Size.Float64()})
	if err != nil || len(statuses) == 0 {
		leg.Status = LegFailed
		leg.Err = fmt.Errorf("verify fills: %w", err)
		return
	}

	status := statuses[0]
	leg.FilledSize = money.NewFromFloat(status.SizeFilled)
	if status.FullyFilled {
		leg.Status = LegFilled
		leg.FilledAt = time.Now()
		return
	}

	// Not fully filled within the timeout: cancel the resting remainder and
	// keep whatever already matched.
	if cancelErr := e.orderClient.CancelOrder(context.Background(), leg.OrderID); cancelErr != nil {
		e.logger.Warn("leg-cancel-failed",
			zap.String("order-id", leg.OrderID), zap.Error(cancelErr))
	}
	if leg.FilledSize.IsPositive() {
		leg.Status = LegPartial
	} else {
		leg.Status = LegCancelled
	}
}

// unwindPartial sells off the side that over-filled so the position carries
// no naked exposure, falling back to flagging the excess for manual
// intervention if the unwind sale itself fails.
func (e *Executor) unwindPartial(ctx context.Context, result *ExecutionResult) {
	excessLeg := result.YesLeg
	if result.NoLeg.FilledSize.GreaterThan(result.YesLeg.FilledSize) {
		excessLeg = result.NoLeg
	}

	excess := excessLeg.FilledSize.Sub(money.Min(result.YesLeg.FilledSize, result.NoLeg.FilledSize))
	result.ActualFilledSize = money.Min(result.YesLeg.FilledSize, result.NoLeg.FilledSize)

	if !excess.IsPositive() {
		result.Status = ExecutionPartial
		return
	}

	bid, err := e.orderClient.GetPrice(ctx, excessLeg.TokenID, "sell")
	if err != nil || bid <= 0 {
		result.Err = fmt.Errorf("unwind failed: no bid available for %s: %w", excessLeg.TokenID, err)
		result.Status = ExecutionPartial
		e.flagUnpaired(result, excessLeg, excess)
		return
	}

	tickSize, tErr := e.metadata.FetchTickSize(ctx, excessLeg.TokenID)
	minSize, mErr := e.metadata.FetchMinOrderSize(ctx, excessLeg.TokenID)
	if tErr != nil || mErr != nil {
		result.Err = fmt.Errorf("unwind failed: metadata lookup: tick=%v min=%v", tErr, mErr)
		result.Status = ExecutionPartial
		e.flagUnpaired(result, excessLeg, excess)
		return
	}

	orderData, err := e.orderClient.buildOrderData(model.SELL, excessLeg.TokenID, bid, excess.Float64()*bid, tickSize, minSize)
	if err != nil {
		result.Err = fmt.Errorf("unwind failed: build order: %w", err)
		result.Status = ExecutionPartial
		e.flagUnpaired(result, excessLeg, excess)
		return
	}

	if _, err := e.orderClient.PlaceSingleOrder(ctx, orderData); err != nil {
		result.Err = fmt.Errorf("unwind failed: %w", err)
		result.Status = ExecutionPartial
		e.flagUnpaired(result, excessLeg, excess)
		return
	}

	result.Status = ExecutionPartial
	e.logger.Info("unwound-partial-fill",
		zap.String("execution-id", result.ExecutionID),
		zap.String("token-id", excessLeg.TokenID),
		zap.String("excess", excess.String()))
}

// flagUnpaired records the leftover single-sided exposure in the ledger as
// requiring manual intervention, per the bot's best-effort unwind contract.
func (e *Executor) flagUnpaired(result *ExecutionResult, excessLeg *LegOrder, excess money.Decimal) {
	if e.ledger == nil {
		return
	}
	e.ledger.AddUnpaired(result.ConditionID, excessLeg.TokenID, excess, excessLeg.Price, result.ExecutionID, time.Now())
	e.logger.Error("unwind-failed-flagged-unpaired",
		zap.String("execution-id", result.ExecutionID),
		zap.String("condition-id", result.ConditionID),
		zap.String("token-id", excessLeg.TokenID),
		zap.String("excess", excess.String()))
}

// cancelOutstanding cancels any leg left resting after a total failure.
func (e *Executor) cancelOutstanding(ctx context.Context, result *ExecutionResult) {
	for _, leg := range []*LegOrder{result.YesLeg, result.NoLeg} {
		if leg.OrderID == "" {
			continue
		}
		if leg.Status == LegSubmitted || leg.Status == LegPending {
			if err := e.orderClient.CancelOrder(ctx, leg.OrderID); err != nil {
				e.logger.Warn("cleanup-cancel-failed", zap.String("order-id", leg.OrderID), zap.Error(err))
			}
		}
	}
}

func (e *Executor) registerActive(result *ExecutionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[result.ExecutionID] = result
}

func (e *Executor) completeActive(result *ExecutionResult) {
	// kept in the active map after completion so GetExecution/ListActive can
	// still report terminal results until the caller evicts them.
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[result.ExecutionID] = result
}

// GetExecution returns a previously started execution by ID.
func (e *Executor) GetExecution(executionID string) (*ExecutionResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.active[executionID]
	return r, ok
}

// ListActive returns executions that have not yet reached a terminal state.
func (e *Executor) ListActive() []*ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*ExecutionResult, 0)
	for _, r := range e.active {
		if !r.IsComplete() {
			out = append(out, r)
		}
	}
	return out
}
