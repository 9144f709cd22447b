package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/internal/book"
	"github.com/parityarb/parity-bot/internal/convergence"
	"github.com/parityarb/parity-bot/internal/discovery"
	"github.com/parityarb/parity-bot/internal/execution"
	"github.com/parityarb/parity-bot/internal/ledger"
	"github.com/parityarb/parity-bot/internal/markets"
	"github.com/parityarb/parity-bot/internal/orderbook"
	"github.com/parityarb/parity-bot/internal/parity"
	"github.com/parityarb/parity-bot/internal/risk"
	"github.com/parityarb/parity-bot/internal/storage"
	"github.com/parityarb/parity-bot/pkg/config"
	"github.com/parityarb/parity-bot/pkg/healthprobe"
	"github.com/parityarb/parity-bot/pkg/httpserver"
	"github.com/parityarb/parity-bot/pkg/websocket"
)

// App wires together market discovery, the twin-book store, parity and
// convergence detection, the risk governor, dual-leg execution, and
// persistence into five concurrent loops: stream ingestion, entry
// scanning, exit scanning, health reporting, and position persistence.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	healthChecker    *healthprobe.HealthChecker
	httpServer       *httpserver.Server
	discoveryService *discovery.Service
	wsPool           *websocket.Pool
	obManager        *orderbook.Manager

	bookStore           *book.Store
	parityDetector      *parity.Detector
	convergenceDetector *convergence.Detector
	ledger              *ledger.Ledger
	riskGovernor        *risk.Governor
	executor            *execution.Executor
	metadataClient      *markets.CachedMetadataClient
	storage             storage.Storage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application options.
type Options struct {
	SingleMarket string // For debugging: slug of single market to track
}
