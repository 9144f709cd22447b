package app

import (
	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/pkg/money"
	"github.com/parityarb/parity-bot/pkg/types"
)

// handleNewMarkets subscribes to new markets as they are discovered.
func (a *App) handleNewMarkets() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case market, ok := <-a.discoveryService.NewMarketsChan():
			if !ok {
				return
			}

			a.subscribeToMarket(market)
		}
	}
}

func (a *App) subscribeToMarket(market *types.Market) {
	yesToken := market.GetTokenByOutcome("YES")
	noToken := market.GetTokenByOutcome("NO")

	if yesToken == nil || noToken == nil {
		a.logger.Warn("market-missing-tokens",
			zap.String("market-id", market.ID),
			zap.String("slug", market.Slug))
		return
	}

	if market.ConditionID == "" {
		a.logger.Warn("market-missing-condition-id",
			zap.String("market-id", market.ID),
			zap.String("slug", market.Slug))
		return
	}

	tokenIDs := []string{yesToken.TokenID, noToken.TokenID}
	if err := a.wsPool.Subscribe(a.ctx, tokenIDs); err != nil {
		a.logger.Error("subscribe-failed",
			zap.String("market-id", market.ID),
			zap.String("slug", market.Slug),
			zap.Error(err))
		return
	}

	tickSize := market.TickSize
	if tickSize <= 0 {
		tickSize = 0.01
	}

	a.bookStore.AddMarket(market.ConditionID, yesToken.TokenID, noToken.TokenID, money.NewFromFloat(tickSize), market.NegRisk)

	a.logger.Info("subscribed-to-market",
		zap.String("slug", market.Slug),
		zap.String("question", market.Question),
		zap.String("condition-id", market.ConditionID))
}
