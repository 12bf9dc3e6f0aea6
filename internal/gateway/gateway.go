// Package gateway implements the Market Gateway: the single writer to
// the exchange account and single reader of its user-data stream.
//
// Shape mirrors the teacher's exchange.Client (REST dispatch + rate
// limiting) plus engine.Engine's mutex-guarded-map-only discipline for
// the correlation table: lookups and inserts happen under a plain
// sync.Mutex, exchange I/O never happens while the lock is held.
package gateway

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"sniper-engine/pkg/types"
)

// ResponseSink is where the gateway delivers domain-level MarketResponse
// events for one algo — the per-algo channel the Algo Container reads
// from, tagged with the algo_id that owns it.
type ResponseSink = chan<- types.MarketResponse

// exchangeAdapter is the subset of internal/exchange's Client API the
// gateway depends on, named here so it can be faked in tests without
// reaching for a real REST/WS connection.
type exchangeAdapter interface {
	GetSymbolInformation(ctx context.Context, symbol string) types.SymbolInformation
	CreateOrder(ctx context.Context, req types.OrderRequest) error
}

type correlationEntry struct {
	algoID string
	sink   ResponseSink
}

type getSymbolInfoCmd struct {
	symbol string
	algoID string
	sink   ResponseSink
	result chan types.SymbolInformation
}

type createOrderCmd struct {
	req    types.OrderRequest
	algoID string
	sink   ResponseSink
}

// Gateway is the Market Gateway actor.
type Gateway struct {
	adapter exchangeAdapter

	symbolInfoCh chan getSymbolInfoCmd
	createCh     chan createOrderCmd

	corrMu sync.Mutex
	corr   map[string]correlationEntry // client_order_id -> (algo_id, sink)

	workers chan struct{} // bounded worker-pool semaphore for blocking exchange calls

	logger *slog.Logger
}

// NewGateway creates a Market Gateway around an exchange adapter.
func NewGateway(adapter exchangeAdapter, logger *slog.Logger) *Gateway {
	workerCount := runtime.GOMAXPROCS(0)
	if workerCount < 2 {
		workerCount = 2
	}
	return &Gateway{
		adapter:      adapter,
		symbolInfoCh: make(chan getSymbolInfoCmd, 100),
		createCh:     make(chan createOrderCmd, 100),
		corr:         make(map[string]correlationEntry),
		workers:      make(chan struct{}, workerCount),
		logger:       logger.With("component", "market_gateway"),
	}
}

// Run is the gateway's command-dispatch loop. Both commands offload the
// actual blocking exchange call onto the bounded worker pool so the
// cooperative dispatch loop never stalls (spec.md §5).
func (g *Gateway) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-g.symbolInfoCh:
			wg.Add(1)
			g.workers <- struct{}{}
			go func(cmd getSymbolInfoCmd) {
				defer wg.Done()
				defer func() { <-g.workers }()
				cmd.result <- g.adapter.GetSymbolInformation(ctx, cmd.symbol)
			}(cmd)
		case cmd := <-g.createCh:
			wg.Add(1)
			g.workers <- struct{}{}
			go func(cmd createOrderCmd) {
				defer wg.Done()
				defer func() { <-g.workers }()
				g.submitOrder(ctx, cmd)
			}(cmd)
		}
	}
}

// GetSymbolInformation issues a blocking metadata lookup on a worker and
// always returns exactly one response (spec.md §4.2): on any failure the
// exchange adapter itself returns an all-absent SymbolInformation, never
// an error.
func (g *Gateway) GetSymbolInformation(ctx context.Context, symbol, algoID string) types.SymbolInformation {
	result := make(chan types.SymbolInformation, 1)
	cmd := getSymbolInfoCmd{symbol: symbol, algoID: algoID, result: result}

	select {
	case g.symbolInfoCh <- cmd:
	case <-ctx.Done():
		return types.SymbolInformation{}
	}

	select {
	case info := <-result:
		return info
	case <-ctx.Done():
		return types.SymbolInformation{}
	}
}

// CreateOrder installs the correlation entry before dispatching the
// order to a worker, per spec.md §4.2's "correlation entry before
// dispatch" ordering guarantee. On synchronous submission failure it
// synthesizes an OrderRejected onto sink immediately.
func (g *Gateway) CreateOrder(req types.OrderRequest, algoID string, sink ResponseSink) {
	g.corrMu.Lock()
	g.corr[req.ClientOrderID] = correlationEntry{algoID: algoID, sink: sink}
	g.corrMu.Unlock()

	g.createCh <- createOrderCmd{req: req, algoID: algoID, sink: sink}
}

func (g *Gateway) submitOrder(ctx context.Context, cmd createOrderCmd) {
	if err := g.adapter.CreateOrder(ctx, cmd.req); err != nil {
		g.logger.Warn("order submission failed", "client_order_id", cmd.req.ClientOrderID, "error", err)
		g.removeCorrelation(cmd.req.ClientOrderID)
		deliver(cmd.sink, types.MarketResponse{
			Kind:          types.OrderRejected,
			ClientOrderID: cmd.req.ClientOrderID,
			Reason:        err.Error(),
		})
	}
	// On success, the terminal/ack events arrive later over the
	// execution-report stream and are routed by ingestReports.
}

func (g *Gateway) removeCorrelation(clientOrderID string) {
	g.corrMu.Lock()
	delete(g.corr, clientOrderID)
	g.corrMu.Unlock()
}

func (g *Gateway) lookupCorrelation(clientOrderID string) (correlationEntry, bool) {
	g.corrMu.Lock()
	defer g.corrMu.Unlock()
	entry, ok := g.corr[clientOrderID]
	return entry, ok
}

func deliver(sink ResponseSink, resp types.MarketResponse) {
	select {
	case sink <- resp:
	default:
	}
}
