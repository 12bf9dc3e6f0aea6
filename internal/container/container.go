// Package container implements the Algo Container: it creates
// algorithms on demand, owns their per-algo state, and routes inbound
// feed updates and market responses to them.
//
// Grounded directly on the teacher's engine.Engine: algoSlot mirrors
// marketSlot, algos/algosMu mirrors slots/slotsMu, CreateAlgo/Reap
// mirror startMarketLocked/stopMarketLocked, and
// dispatchFeed/dispatchMarket mirrors dispatchMarketEvents/
// dispatchUserEvents — same lifecycle and routing shape, entirely new
// domain logic (algos and orders instead of markets and quotes).
package container

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"sniper-engine/internal/feed"
	"sniper-engine/internal/gateway"
	"sniper-engine/internal/report"
	"sniper-engine/pkg/types"
)

// Algo is the capability set every strategy implementation exposes to
// the container (spec.md §3): a private event loop started once at
// creation, feed and market-response handlers that feed that loop, and
// a way for the container to know the algo reached Done.
type Algo interface {
	Run(ctx context.Context)
	OnL1(data types.L1Data)
	OnL2(data types.L2Data)
	OnMarketResponse(resp types.MarketResponse)
	Done() <-chan struct{}
	Status() AlgoStatus
}

// AlgoStatus is the strategy-agnostic view of one algo's progress,
// surfaced to the status API. Every field is already string-formatted
// (decimal.Decimal.String()) so the container and the API package never
// need to import shopspring/decimal just to report a snapshot.
type AlgoStatus struct {
	AlgoID    string
	Symbol    string
	Side      string
	State     string
	Requested string
	Remaining string
	Executed  string
	Exposed   string
}

// AlgoFactory instantiates a strategy for one AlgoParameters entry,
// given its Feed Client, Market Client, and report Recorder handles.
// Currently only Sniper exists; the container doesn't need to know
// that.
type AlgoFactory func(params types.AlgoParameters, feedClient *feed.Client, marketClient *gateway.Client, recorder *report.Recorder) Algo

type marketResponseMsg struct {
	algoID string
	resp   types.MarketResponse
}

// algoSlot holds one running algorithm. respCh is where the gateway
// delivers its MarketResponse events; a dedicated forwarding goroutine
// tags each one with algo_id and pushes it onto the container's shared
// marketCh, so Run itself only ever selects over two channels
// regardless of how many algos are live.
type algoSlot struct {
	algo   Algo
	respCh chan types.MarketResponse
}

// Container is the Algo Container actor.
type Container struct {
	id          string // subscriber_id presented to the Feed Distributor
	distributor *feed.Distributor
	gateway     *gateway.Gateway
	recorder    *report.Recorder
	factory     AlgoFactory

	feedCh   chan types.FeedUpdate
	marketCh chan marketResponseMsg

	algosMu sync.RWMutex
	algos   map[string]*algoSlot

	logger *slog.Logger
}

// New creates an Algo Container identified by id (its subscriber_id to
// the Feed Distributor).
func New(id string, distributor *feed.Distributor, gw *gateway.Gateway, recorder *report.Recorder, factory AlgoFactory, logger *slog.Logger) *Container {
	return &Container{
		id:          id,
		distributor: distributor,
		gateway:     gw,
		recorder:    recorder,
		factory:     factory,
		feedCh:      make(chan types.FeedUpdate, 1000),
		marketCh:    make(chan marketResponseMsg, 1000),
		algos:       make(map[string]*algoSlot),
		logger:      logger.With("component", "algo_container", "container_id", id),
	}
}

// CreateAlgo instantiates a new algorithm, registers it under
// params.AlgoID, and starts its event loop in its own goroutine bound
// to ctx (spec.md §4.3).
func (c *Container) CreateAlgo(ctx context.Context, params types.AlgoParameters) {
	c.algosMu.Lock()
	defer c.algosMu.Unlock()

	if _, exists := c.algos[params.AlgoID]; exists {
		c.logger.Warn("algo_id already exists, ignoring CreateAlgo", "algo_id", params.AlgoID)
		return
	}

	respCh := make(chan types.MarketResponse, 16)
	marketClient := gateway.NewClient(c.gateway, params.AlgoID, respCh)
	feedClient := feed.NewClient(c.distributor, c.id, params.AlgoID, c.feedCh)

	algo := c.factory(params, feedClient, marketClient, c.recorder)

	slot := &algoSlot{algo: algo, respCh: respCh}
	c.algos[params.AlgoID] = slot

	go algo.Run(ctx)
	go c.forwardResponses(params.AlgoID, slot)

	c.logger.Info("algo created", "algo_id", params.AlgoID, "symbol", params.Symbol(), "side", params.Side)
}

// forwardResponses tags every response the gateway delivers to this
// algo's sink with its algo_id and relays it onto the container's
// shared marketCh. It exits once the algo reaches Done.
func (c *Container) forwardResponses(algoID string, slot *algoSlot) {
	for {
		select {
		case <-slot.algo.Done():
			return
		case resp := <-slot.respCh:
			c.marketCh <- marketResponseMsg{algoID: algoID, resp: resp}
		}
	}
}

// Run is the container's main dispatch loop: one select over the feed
// channel and the shared market-response channel. Feed updates fan
// out to every referenced algo in parallel and the container waits for
// all dispatches before processing the next message, preserving
// per-algo ordering (spec.md §5).
func (c *Container) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.feedCh:
			c.dispatchFeed(msg)
		case msg := <-c.marketCh:
			c.dispatchMarket(msg)
		}
	}
}

// dispatchFeed delivers one feed update to every referenced algo in
// parallel, waiting for all handlers to return before the caller
// proceeds to the next message.
func (c *Container) dispatchFeed(update types.FeedUpdate) {
	c.algosMu.RLock()
	slots := lo.FilterMap(update.AlgoIDs, func(algoID string, _ int) (*algoSlot, bool) {
		slot, ok := c.algos[algoID]
		return slot, ok
	})
	c.algosMu.RUnlock()

	var wg sync.WaitGroup
	for _, slot := range slots {
		wg.Add(1)
		go func(slot *algoSlot) {
			defer wg.Done()
			select {
			case <-slot.algo.Done():
				return
			default:
			}
			if update.L1 != nil {
				slot.algo.OnL1(*update.L1)
			}
			if update.L2 != nil {
				slot.algo.OnL2(*update.L2)
			}
		}(slot)
	}
	wg.Wait()
}

// dispatchMarket routes a market response to the algo identified by
// algo_id. Unknown algo_ids are dropped with a log (spec.md §4.3).
func (c *Container) dispatchMarket(msg marketResponseMsg) {
	c.algosMu.RLock()
	slot, ok := c.algos[msg.algoID]
	c.algosMu.RUnlock()
	if !ok {
		c.logger.Debug("dropping market response for unknown algo_id", "algo_id", msg.algoID)
		return
	}

	select {
	case <-slot.algo.Done():
		c.logger.Debug("dropping market response for completed algo", "algo_id", msg.algoID)
	default:
		slot.algo.OnMarketResponse(msg.resp)
	}
}

// Snapshot returns the set of currently-registered algo_ids.
func (c *Container) Snapshot() []string {
	c.algosMu.RLock()
	defer c.algosMu.RUnlock()
	return lo.Keys(c.algos)
}

// Statuses returns every registered algo's current AlgoStatus, for the
// status API.
func (c *Container) Statuses() []AlgoStatus {
	c.algosMu.RLock()
	defer c.algosMu.RUnlock()

	statuses := make([]AlgoStatus, 0, len(c.algos))
	for _, slot := range c.algos {
		statuses = append(statuses, slot.algo.Status())
	}
	return statuses
}

// Reap removes algo slots whose algo has reached Done. Not called
// automatically (spec.md §9's open question on terminal retention is
// left to the operator); exposed so a caller can invoke it
// periodically in deployments where unbounded retention matters.
func (c *Container) Reap() int {
	c.algosMu.Lock()
	defer c.algosMu.Unlock()

	removed := 0
	for id, slot := range c.algos {
		select {
		case <-slot.algo.Done():
			delete(c.algos, id)
			removed++
		default:
		}
	}
	return removed
}
