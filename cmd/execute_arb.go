package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parityarb/parity-bot/internal/book"
	"github.com/parityarb/parity-bot/internal/discovery"
	"github.com/parityarb/parity-bot/internal/orderbook"
	"github.com/parityarb/parity-bot/pkg/config"
	"github.com/parityarb/parity-bot/pkg/money"
	"github.com/parityarb/parity-bot/pkg/websocket"
)

//nolint:gochecknoglobals // Cobra boilerplate
var executeArbCmd = &cobra.Command{
	Use:   "execute-arb <market-slug>",
	Short: "Watch a single market's live parity edge",
	Long: `Connects to a market, streams its orderbook, and prints the combined ask
and parity edge as it updates. Useful for manually confirming an opportunity
before trusting the trading loop to act on it.

Example:
  parity-bot execute-arb fed-increases-interest-rates-by-25-bps-after-january-2026-meeting`,
	Args: cobra.ExactArgs(1),
	RunE: runExecuteArb,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(executeArbCmd)
	executeArbCmd.Flags().Float64P("threshold", "t", 0.995, "Combined-ask threshold (0.9-1.0) at or below which a tick is flagged")
	executeArbCmd.Flags().Float64P("size", "s", 100.0, "Trade size in USD, for the printed edge estimate")
	executeArbCmd.Flags().Float64P("fee", "f", 0.01, "Taker fee rate (0.01 = 1%)")
}

func runExecuteArb(cmd *cobra.Command, args []string) error {
	marketSlug := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tradeSize, _ := cmd.Flags().GetFloat64("size")
	takerFee, _ := cmd.Flags().GetFloat64("fee")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	if threshold < 0.9 || threshold > 1.0 {
		return fmt.Errorf("threshold %.4f out of range [0.9, 1.0]", threshold)
	}

	fmt.Printf("=== Parity Edge Watcher ===\n\n")
	fmt.Printf("Market: %s\n", marketSlug)
	fmt.Printf("Threshold: %.4f\n", threshold)
	fmt.Printf("Trade Size: $%.2f\n", tradeSize)
	fmt.Printf("Taker Fee: %.2f%%\n\n", takerFee*100)

	client := discovery.NewClient(cfg.PolymarketGammaURL, logger)
	market, err := client.FetchMarketBySlug(ctx, marketSlug)
	if err != nil {
		return fmt.Errorf("fetch market: %w", err)
	}

	fmt.Printf("Question: %s\n", market.Question)
	fmt.Printf("Market ID: %s\n\n", market.ID)

	yesToken := market.GetTokenByOutcome("YES")
	noToken := market.GetTokenByOutcome("NO")
	if yesToken == nil || noToken == nil {
		return fmt.Errorf("market missing YES or NO token")
	}
	if market.ConditionID == "" {
		return fmt.Errorf("market missing condition id")
	}

	fmt.Printf("YES Token: %s\n", yesToken.TokenID)
	fmt.Printf("NO Token: %s\n\n", noToken.TokenID)

	wsManager := websocket.New(websocket.Config{
		URL:                   cfg.PolymarketWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})

	if err := wsManager.Start(); err != nil {
		return fmt.Errorf("start websocket: %w", err)
	}
	defer wsManager.Close()

	tickSize := market.TickSize
	if tickSize <= 0 {
		tickSize = 0.01
	}

	bookStore := book.NewStore(logger)
	bookStore.AddMarket(market.ConditionID, yesToken.TokenID, noToken.TokenID, money.NewFromFloat(tickSize), market.NegRisk)

	obManager := orderbook.New(&orderbook.Config{
		Logger:         logger,
		MessageChannel: wsManager.MessageChan(),
		Store:          bookStore,
	})
	if err := obManager.Start(ctx); err != nil {
		return fmt.Errorf("start orderbook manager: %w", err)
	}
	defer obManager.Close()

	tokenIDs := []string{yesToken.TokenID, noToken.TokenID}
	if err := wsManager.Subscribe(ctx, tokenIDs); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Println("Subscribed to orderbook. Waiting for prices...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	feeRate := money.NewFromFloat(takerFee)
	size := money.NewFromFloat(tradeSize)
	thresholdDec := money.NewFromFloat(threshold)

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutdown requested")
			return nil

		case <-timeout:
			return fmt.Errorf("timeout waiting for orderbook data")

		case <-ticker.C:
			mb, ok := bookStore.GetMarket(market.ConditionID)
			if !ok {
				continue
			}

			combinedAsk, ok := mb.CombinedAsk()
			if !ok {
				continue
			}

			yesAsk, _ := mb.Yes.BestAsk()
			noAsk, _ := mb.No.BestAsk()
			grossEdge, _ := mb.ParityEdge()

			fees := feeRate.Mul(money.Min(yesAsk, money.One.Sub(yesAsk)).Add(money.Min(noAsk, money.One.Sub(noAsk)))).Mul(size)
			netEdge := grossEdge.Mul(size).Sub(fees)

			fmt.Printf("[%s] YES ask %s + NO ask %s = %s | gross edge %s | net edge on $%.0f: %s\n",
				time.Now().Format("15:04:05"),
				yesAsk.String(), noAsk.String(), combinedAsk.String(),
				grossEdge.String(), tradeSize, netEdge.String())

			if combinedAsk.LessThanOrEqual(thresholdDec) {
				fmt.Printf("  -> combined ask at or below threshold %s\n", thresholdDec.String())
			}
			if netEdge.IsPositive() {
				fmt.Printf("  -> profitable at current size\n")
			}
		}
	}
}
