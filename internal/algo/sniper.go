// Package algo implements the Sniper strategy: the only algorithm type
// the system runs today. One Sniper instance tracks exactly one order
// at a time, watching top-of-book until price is favorable, firing an
// IOC limit order, and re-arming until its quantity is exhausted.
//
// Shape is grounded on the teacher's strategy.Maker.Run select loop and
// its handleFill/handleOrderEvent per-event-type dispatch — generalized
// from a continuous quoting loop to a state machine with an explicit
// terminal state, and from Maker's activeOrders map (many concurrent
// orders) down to a single outstanding client_order_id (Sniper never
// has more than one order resting).
package algo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sniper-engine/internal/container"
	"sniper-engine/internal/feed"
	"sniper-engine/internal/gateway"
	"sniper-engine/internal/report"
	"sniper-engine/pkg/types"
)

// State is one of the five states in the Sniper transition table.
type State int

const (
	New State = iota
	WaitingForMarketConditions
	PendingCreate
	Working
	Done
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case WaitingForMarketConditions:
		return "WaitingForMarketConditions"
	case PendingCreate:
		return "PendingCreate"
	case Working:
		return "Working"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Sniper is one running algorithm instance.
type Sniper struct {
	params types.AlgoParameters

	feedClient   *feed.Client
	marketClient *gateway.Client
	recorder     *report.Recorder

	feedCh   chan types.FeedUpdate
	marketCh chan types.MarketResponse

	mu sync.RWMutex

	state      State
	symbolInfo types.SymbolInformation

	remaining decimal.Decimal
	executed  decimal.Decimal
	exposed   decimal.Decimal

	outstandingOrderID string
	outstandingPrice   decimal.Decimal
	outstandingQty     decimal.Decimal

	done   chan struct{}
	logger *slog.Logger
}

// NewSniper builds a Sniper sitting in the New state; the Algo
// Container spawns Run in its own goroutine immediately after
// construction. recorder may be nil, in which case logging/summary
// writes are skipped (used by tests that don't care about the report
// artifact).
func NewSniper(params types.AlgoParameters, feedClient *feed.Client, marketClient *gateway.Client, recorder *report.Recorder, logger *slog.Logger) *Sniper {
	return &Sniper{
		params:       params,
		feedClient:   feedClient,
		marketClient: marketClient,
		recorder:     recorder,
		feedCh:       make(chan types.FeedUpdate, 32),
		marketCh:     make(chan types.MarketResponse, 32),
		state:        New,
		remaining:    params.Quantity,
		done:         make(chan struct{}),
		logger:       logger.With("component", "sniper", "algo_id", params.AlgoID, "symbol", params.Symbol()),
	}
}

// Done reports when the algo has reached its terminal state.
func (s *Sniper) Done() <-chan struct{} { return s.done }

// OnL1 implements container.Algo: it forwards the top-of-book update
// onto the algo's private event channel, matching the
// one-goroutine-per-algo isolation the container relies on.
func (s *Sniper) OnL1(data types.L1Data) {
	s.trySend(types.FeedUpdate{L1: &data})
}

// OnL2 implements container.Algo; Sniper only reacts to top-of-book, so
// depth updates are accepted but ignored.
func (s *Sniper) OnL2(data types.L2Data) {}

func (s *Sniper) trySend(update types.FeedUpdate) {
	select {
	case s.feedCh <- update:
	default:
		s.logger.Warn("feed channel full, dropping update")
	}
}

// OnMarketResponse implements container.Algo.
func (s *Sniper) OnMarketResponse(resp types.MarketResponse) {
	select {
	case s.marketCh <- resp:
	default:
		s.logger.Warn("market channel full, dropping response")
	}
}

// Run starts the Sniper's lifecycle: it issues the symbol-info lookup
// and then drives the state machine off feedCh/marketCh until Done.
// Call it in its own goroutine from the Algo Container.
func (s *Sniper) Run(ctx context.Context) {
	info := s.marketClient.GetSymbolInformation(ctx, s.params.Symbol())
	s.handleSymbolInformation(info)

	for {
		s.mu.RLock()
		state := s.state
		s.mu.RUnlock()
		if state == Done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case update := <-s.feedCh:
			s.handleFeedUpdate(update)
		case resp := <-s.marketCh:
			s.handleMarketResponse(resp)
		}
	}
}

// handleSymbolInformation is the New -> {Done, WaitingForMarketConditions}
// transition.
func (s *Sniper) handleSymbolInformation(info types.SymbolInformation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info.MinQuantity != nil && s.params.Quantity.LessThan(*info.MinQuantity) {
		s.logger.Info("rejecting algo: requested quantity below exchange minimum",
			"quantity", s.params.Quantity, "min_quantity", *info.MinQuantity)
		s.finalizeLocked()
		return
	}

	s.symbolInfo = info
	s.state = WaitingForMarketConditions
	s.feedClient.SubscribeL1(s.params.Base, s.params.Quote)
}

func (s *Sniper) handleFeedUpdate(update types.FeedUpdate) {
	if update.L1 == nil {
		return
	}

	s.mu.Lock()
	if s.state != WaitingForMarketConditions {
		s.mu.Unlock()
		return
	}

	feedPrice, feedQty, ok := s.bestPriceAndQty(*update.L1)
	if !ok {
		s.mu.Unlock()
		return
	}

	if !shouldReact(s.params.Side, feedPrice, s.params.Price) {
		s.mu.Unlock()
		return
	}

	orderQty, orderPrice, submit := s.computeOrder(feedQty, feedPrice)
	if !submit {
		s.mu.Unlock()
		return
	}

	clientOrderID := uuid.NewString()
	s.outstandingOrderID = clientOrderID
	s.outstandingPrice = orderPrice
	s.outstandingQty = orderQty
	s.state = PendingCreate
	s.mu.Unlock()

	s.logLine(fmt.Sprintf("submitting %s IOC qty=%s price=%s client_order_id=%s",
		s.params.Side, orderQty, orderPrice, clientOrderID))

	s.marketClient.CreateOrder(types.OrderRequest{
		ClientOrderID: clientOrderID,
		Symbol:        s.params.Symbol(),
		Side:          s.params.Side,
		TimeInForce:   types.IOC,
		Price:         orderPrice,
		Quantity:      orderQty,
	})
}

// bestPriceAndQty picks the side of the book Sniper reacts against: a
// Buy algo watches the ask (it buys at the offer), a Sell algo watches
// the bid (it sells at the bid).
func (s *Sniper) bestPriceAndQty(l1 types.L1Data) (price, qty decimal.Decimal, ok bool) {
	var level types.Level
	if s.params.Side == types.Buy {
		level = l1.BestAsk
	} else {
		level = l1.BestBid
	}
	if level.Quantity.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	return level.Price, level.Quantity, true
}

// shouldReact implements spec.md §4.4's strict reactivity rule.
func shouldReact(side types.Side, feedPrice, limitPrice decimal.Decimal) bool {
	if side == types.Buy {
		return feedPrice.LessThan(limitPrice)
	}
	return feedPrice.GreaterThan(limitPrice)
}

// computeOrder applies the pre-submit filter chain exactly per
// spec.md §4.4, including the two preserved quirks: rounding is floor
// in both directions for both sides (a Sell may round its price down
// against its own favor), and the min_amount check is evaluated
// against the unclamped feed quantity, not the clamped order quantity.
// Must be called with s.mu held.
func (s *Sniper) computeOrder(feedQty, feedPrice decimal.Decimal) (orderQty, orderPrice decimal.Decimal, submit bool) {
	orderQty = decimal.Min(feedQty, s.remaining)
	orderPrice = feedPrice

	info := s.symbolInfo

	if info.LotSize != nil && !info.LotSize.IsZero() {
		orderQty = floorToStep(orderQty, *info.LotSize)
	}
	if info.TickSize != nil && !info.TickSize.IsZero() {
		orderPrice = floorToStep(orderPrice, *info.TickSize)
	}

	if info.MinPrice != nil && orderPrice.LessThanOrEqual(*info.MinPrice) {
		s.logger.Debug("skipping: price at or below min_price", "price", orderPrice, "min_price", *info.MinPrice)
		return decimal.Zero, decimal.Zero, false
	}

	if info.MinAmount != nil {
		notional := orderPrice.Mul(feedQty)
		if notional.LessThanOrEqual(*info.MinAmount) {
			s.logger.Debug("skipping: notional at or below min_amount (unclamped feed quantity)",
				"clamped_notional", orderPrice.Mul(orderQty), "unclamped_notional", notional, "min_amount", *info.MinAmount)
			return decimal.Zero, decimal.Zero, false
		}
	}

	if orderQty.IsZero() || orderQty.IsNegative() {
		return decimal.Zero, decimal.Zero, false
	}

	return orderQty, orderPrice, true
}

// floorToStep implements floor(value/step)*step, rounding toward
// negative infinity as spec.md §4.4 requires (applied to price on both
// Buy and Sell sides — the preserved Sell-side quirk).
func floorToStep(value, step decimal.Decimal) decimal.Decimal {
	return value.Div(step).Floor().Mul(step)
}

func (s *Sniper) handleMarketResponse(resp types.MarketResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp.ClientOrderID != s.outstandingOrderID {
		s.logger.Debug("ignoring response for stale or unknown order",
			"client_order_id", resp.ClientOrderID, "outstanding", s.outstandingOrderID, "kind", resp.Kind)
		return
	}

	switch s.state {
	case PendingCreate:
		s.handlePendingCreateLocked(resp)
	case Working:
		s.handleWorkingLocked(resp)
	default:
		s.logger.Debug("ignoring market response in unexpected state", "state", s.state, "kind", resp.Kind)
	}
}

func (s *Sniper) handlePendingCreateLocked(resp types.MarketResponse) {
	switch resp.Kind {
	case types.CreateOrderAck:
		s.exposed = s.exposed.Add(s.outstandingQty)
		s.remaining = s.remaining.Sub(s.outstandingQty)
		s.state = Working
		s.logLine(fmt.Sprintf("ack client_order_id=%s", resp.ClientOrderID))
	case types.OrderRejected:
		s.logger.Info("order rejected", "reason", resp.Reason)
		s.logLine(fmt.Sprintf("rejected client_order_id=%s reason=%s", resp.ClientOrderID, resp.Reason))
		s.state = WaitingForMarketConditions
	default:
		s.logger.Debug("ignoring unexpected response in PendingCreate", "kind", resp.Kind)
	}
}

func (s *Sniper) handleWorkingLocked(resp types.MarketResponse) {
	switch resp.Kind {
	case types.OrderPartiallyFilled:
		s.executed = s.executed.Add(resp.FilledQty)
		s.exposed = s.exposed.Sub(resp.FilledQty)
		s.logLine(fmt.Sprintf("partial fill client_order_id=%s filled_qty=%s", resp.ClientOrderID, resp.FilledQty))

	case types.OrderFullyFilled:
		s.executed = s.executed.Add(resp.FilledQty)
		s.exposed = s.exposed.Sub(resp.FilledQty)
		s.logLine(fmt.Sprintf("full fill client_order_id=%s filled_qty=%s", resp.ClientOrderID, resp.FilledQty))
		if s.isCompleteLocked() {
			s.finalizeLocked()
			return
		}
		s.state = WaitingForMarketConditions

	case types.OrderExpired:
		s.exposed = s.exposed.Sub(resp.LeavesQty)
		s.remaining = s.remaining.Add(resp.LeavesQty)
		s.logLine(fmt.Sprintf("expired client_order_id=%s leaves_qty=%s", resp.ClientOrderID, resp.LeavesQty))
		s.state = WaitingForMarketConditions

	default:
		s.logger.Debug("ignoring unexpected response in Working", "kind", resp.Kind)
	}
}

// isCompleteLocked implements spec.md §4.4's completion criterion.
// Must be called with s.mu held.
func (s *Sniper) isCompleteLocked() bool {
	if s.remaining.IsZero() {
		return true
	}
	if s.symbolInfo.MinQuantity != nil && s.remaining.LessThan(*s.symbolInfo.MinQuantity) {
		return true
	}
	return false
}

// finalizeLocked transitions to Done: unsubscribes from the feed,
// writes the terminal summary report, and closes done so the container
// can retire the slot. Must be called with s.mu held.
func (s *Sniper) finalizeLocked() {
	s.state = Done
	s.feedClient.UnsubscribeL1(s.params.Base, s.params.Quote)

	if s.recorder != nil {
		summary := report.Summary{
			AlgoID:    s.params.AlgoID,
			AlgoType:  s.params.AlgoType,
			Symbol:    s.params.Symbol(),
			Side:      s.params.Side,
			Requested: s.params.Quantity,
			Executed:  s.executed,
			Remaining: s.remaining,
			State:     s.state.String(),
		}
		if err := s.recorder.Finalize(summary); err != nil {
			s.logger.Warn("failed to write summary report", "error", err)
		}
	}

	close(s.done)
	s.logger.Info("algo done", "executed", s.executed, "remaining", s.remaining)
}

// logLine appends one line to the algo's log file when a recorder is
// attached; failures are logged but never block the state machine.
func (s *Sniper) logLine(line string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.AppendLine(s.params.AlgoType, s.params.AlgoID, line); err != nil {
		s.logger.Warn("failed to append algo log line", "error", err)
	}
}

// Status implements container.Algo for the status API.
func (s *Sniper) Status() container.AlgoStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return container.AlgoStatus{
		AlgoID:    s.params.AlgoID,
		Symbol:    s.params.Symbol(),
		Side:      string(s.params.Side),
		State:     s.state.String(),
		Requested: s.params.Quantity.String(),
		Remaining: s.remaining.String(),
		Executed:  s.executed.String(),
		Exposed:   s.exposed.String(),
	}
}

// Snapshot reports the algo's current counters and state as typed
// decimals, used directly by tests.
func (s *Sniper) Snapshot() (state State, remaining, executed, exposed decimal.Decimal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.remaining, s.executed, s.exposed
}
