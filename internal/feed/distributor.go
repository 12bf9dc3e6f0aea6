// Package feed implements the Feed Distributor: it owns a small number
// of upstream L1/L2 websocket streams and fans each update out to the
// algo containers subscribed to it.
//
// Shape mirrors the teacher's engine.go token-routing design: one
// long-lived actor with an inbound command mailbox (subscribe/
// unsubscribe) and per-instrument subscription tables, plus one
// independent reconnecting ingestion goroutine per upstream stream
// (grounded on exchange.MarketStream's Run/connectAndRead shape).
// Every read and write of the subscription tables happens on the
// distributor's own goroutine — ingestion goroutines only decode and
// forward frames, they never touch the tables directly — so there is
// a single owner and no locking is needed around them (same discipline
// as engine.Engine.slots, just enforced structurally instead of by mutex).
package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/StudioSol/set"

	"sniper-engine/pkg/types"
)

// Stream is the subset of exchange.MarketStream's API the distributor
// depends on — exported so callers outside this package can supply a
// factory closure (cmd/sniperbot wires it to exchange.NewMarketStream)
// and so tests can supply a fake stream instead of dialing a real
// websocket.
type Stream interface {
	L1Frames() <-chan types.L1Data
	L2Frames() <-chan types.L2Data
	Run(ctx context.Context) error
}

// Subscriber identifies an Algo Container: a stable id plus the sink it
// currently wants updates delivered to. Equality is by ID only — a
// fresh Subscribe call with the same ID and a new Sink replaces the
// prior registration cleanly (per spec.md §9).
type Subscriber struct {
	ID   string
	Sink chan<- types.FeedUpdate
}

type commandKind int

const (
	cmdSubscribeL1 commandKind = iota
	cmdSubscribeL2
	cmdUnsubscribeL1
	cmdUnsubscribeL2
)

type command struct {
	kind       commandKind
	algoID     string
	instrument string
	symbol     string
	subscriber Subscriber
	done       chan struct{}
}

// subscriberEntry pairs a subscriber's current sink with the set of
// algo_ids it has registered for one instrument.
type subscriberEntry struct {
	sink chan<- types.FeedUpdate
	algo *set.LinkedHashSetString
}

type upstreamHandle struct {
	cancel context.CancelFunc
	refs   int
}

type frame struct {
	instrument string
	depth      string // "l1" or "l2"
	l1         types.L1Data
	l2         types.L2Data
}

// Distributor is the Feed Distributor actor.
type Distributor struct {
	cmdCh   chan command
	frameCh chan frame

	l1Subs map[string]map[string]*subscriberEntry // instrument -> subscriberID -> entry
	l2Subs map[string]map[string]*subscriberEntry

	l1Streams map[string]*upstreamHandle // instrument -> handle
	l2Streams map[string]*upstreamHandle

	book *Book

	newStream func(symbol, depth string) Stream

	logger *slog.Logger
	ctx    context.Context
	wg     sync.WaitGroup
}

// NewDistributor creates a Feed Distributor. newStream constructs a
// reconnecting market stream for a given symbol+depth; production callers
// pass a function wrapping exchange.NewMarketStream bound to a websocket
// base URL.
func NewDistributor(newStream func(symbol, depth string) Stream, logger *slog.Logger) *Distributor {
	return &Distributor{
		cmdCh:     make(chan command, 128),
		frameCh:   make(chan frame, 256),
		l1Subs:    make(map[string]map[string]*subscriberEntry),
		l2Subs:    make(map[string]map[string]*subscriberEntry),
		l1Streams: make(map[string]*upstreamHandle),
		l2Streams: make(map[string]*upstreamHandle),
		book:      NewBook(),
		newStream: newStream,
		logger:    logger.With("component", "feed_distributor"),
	}
}

// Run is the distributor's command loop. Blocks until ctx is cancelled;
// tears down every upstream stream before returning.
func (d *Distributor) Run(ctx context.Context) {
	d.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return
		case cmd := <-d.cmdCh:
			d.handle(cmd)
			if cmd.done != nil {
				close(cmd.done)
			}
		case f := <-d.frameCh:
			d.dispatch(f)
		}
	}
}

func (d *Distributor) shutdown() {
	for _, h := range d.l1Streams {
		h.cancel()
	}
	for _, h := range d.l2Streams {
		h.cancel()
	}
	d.wg.Wait()
}

func instrumentID(base, quote string) string {
	return strings.ToLower(base + quote)
}

// SubscribeL1 registers algoID's interest in L1 updates for (base, quote)
// under subscriber. Idempotent: a repeat call leaves the tables unchanged
// beyond refreshing the subscriber's sink, and re-sends the cached
// snapshot (if any) just as the first call does.
func (d *Distributor) SubscribeL1(algoID, base, quote string, subscriber Subscriber) {
	d.send(command{kind: cmdSubscribeL1, algoID: algoID, instrument: instrumentID(base, quote), symbol: strings.ToUpper(base + quote), subscriber: subscriber})
}

// SubscribeL2 registers algoID's interest in L2 updates for (base, quote).
func (d *Distributor) SubscribeL2(algoID, base, quote string, subscriber Subscriber) {
	d.send(command{kind: cmdSubscribeL2, algoID: algoID, instrument: instrumentID(base, quote), symbol: strings.ToUpper(base + quote), subscriber: subscriber})
}

// UnsubscribeL1 removes algoID's interest in L1 updates for (base, quote)
// under subscriberID. Missing keys are silently ignored.
func (d *Distributor) UnsubscribeL1(algoID, base, quote, subscriberID string) {
	d.send(command{kind: cmdUnsubscribeL1, algoID: algoID, instrument: instrumentID(base, quote), subscriber: Subscriber{ID: subscriberID}})
}

// UnsubscribeL2 removes algoID's interest in L2 updates for (base, quote).
func (d *Distributor) UnsubscribeL2(algoID, base, quote, subscriberID string) {
	d.send(command{kind: cmdUnsubscribeL2, algoID: algoID, instrument: instrumentID(base, quote), subscriber: Subscriber{ID: subscriberID}})
}

// send enqueues a command and blocks until the distributor's loop has
// applied it, so callers (and tests) observe a consistent table state
// immediately after the call returns.
func (d *Distributor) send(cmd command) {
	cmd.done = make(chan struct{})
	d.cmdCh <- cmd
	<-cmd.done
}

func (d *Distributor) handle(cmd command) {
	switch cmd.kind {
	case cmdSubscribeL1:
		d.subscribe(d.l1Subs, d.l1Streams, cmd, "l1")
	case cmdSubscribeL2:
		d.subscribe(d.l2Subs, d.l2Streams, cmd, "l2")
	case cmdUnsubscribeL1:
		d.unsubscribe(d.l1Subs, d.l1Streams, cmd)
	case cmdUnsubscribeL2:
		d.unsubscribe(d.l2Subs, d.l2Streams, cmd)
	}
}

func (d *Distributor) subscribe(table map[string]map[string]*subscriberEntry, streams map[string]*upstreamHandle, cmd command, depth string) {
	bySubscriber, ok := table[cmd.instrument]
	if !ok {
		bySubscriber = make(map[string]*subscriberEntry)
		table[cmd.instrument] = bySubscriber
	}

	entry, ok := bySubscriber[cmd.subscriber.ID]
	if !ok {
		entry = &subscriberEntry{algo: set.NewLinkedHashSetString()}
		bySubscriber[cmd.subscriber.ID] = entry
	}
	entry.sink = cmd.subscriber.Sink // re-registration always refreshes the sink
	newAlgo := !entry.algo.In(cmd.algoID)
	entry.algo.Add(cmd.algoID)

	d.ensureStream(streams, cmd.instrument, cmd.symbol, depth, newAlgo)
	d.deliverCachedSnapshot(cmd, depth)
}

func (d *Distributor) deliverCachedSnapshot(cmd command, depth string) {
	update := types.FeedUpdate{AlgoIDs: []string{cmd.algoID}}
	switch depth {
	case "l1":
		data, ok := d.book.L1(cmd.instrument)
		if !ok {
			return
		}
		update.L1 = &data
	case "l2":
		data, ok := d.book.L2(cmd.instrument)
		if !ok {
			return
		}
		update.L2 = &data
	}

	select {
	case cmd.subscriber.Sink <- update:
	default:
		d.logger.Warn("subscriber sink full, dropping initial snapshot",
			"subscriber", cmd.subscriber.ID, "instrument", cmd.instrument)
	}
}

func (d *Distributor) unsubscribe(table map[string]map[string]*subscriberEntry, streams map[string]*upstreamHandle, cmd command) {
	bySubscriber, ok := table[cmd.instrument]
	if !ok {
		return
	}
	entry, ok := bySubscriber[cmd.subscriber.ID]
	if !ok || !entry.algo.In(cmd.algoID) {
		return
	}
	entry.algo.Remove(cmd.algoID)

	if entry.algo.Size() == 0 {
		delete(bySubscriber, cmd.subscriber.ID)
	}
	if len(bySubscriber) == 0 {
		delete(table, cmd.instrument)
	}

	d.releaseStream(streams, cmd.instrument)
}

func (d *Distributor) ensureStream(streams map[string]*upstreamHandle, instrument, symbol, depth string, newAlgo bool) {
	if h, ok := streams[instrument]; ok {
		if newAlgo {
			h.refs++
		}
		return
	}

	streamCtx, cancel := context.WithCancel(d.ctx)
	stream := d.newStream(symbol, depth)
	streams[instrument] = &upstreamHandle{cancel: cancel, refs: 1}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := stream.Run(streamCtx); err != nil && streamCtx.Err() == nil {
			d.logger.Warn("upstream stream exited", "instrument", instrument, "depth", depth, "error", err)
		}
	}()
	go func() {
		defer d.wg.Done()
		d.ingest(streamCtx, instrument, depth, stream)
	}()
}

func (d *Distributor) releaseStream(streams map[string]*upstreamHandle, instrument string) {
	h, ok := streams[instrument]
	if !ok {
		return
	}
	h.refs--
	if h.refs <= 0 {
		h.cancel()
		delete(streams, instrument)
	}
}

// ingest is the per-upstream-stream cooperative loop: it only decodes
// and forwards. Caching and fan-out happen on the distributor's own
// goroutine (via frameCh) so subscription tables stay single-owner.
func (d *Distributor) ingest(ctx context.Context, instrument, depth string, stream Stream) {
	if depth == "l1" {
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-stream.L1Frames():
				if !ok {
					return
				}
				select {
				case d.frameCh <- frame{instrument: instrument, depth: "l1", l1: data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-stream.L2Frames():
			if !ok {
				return
			}
			select {
			case d.frameCh <- frame{instrument: instrument, depth: "l2", l2: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// dispatch caches the frame and fans it out to every subscriber of this
// instrument concurrently, waiting for all sends to complete before the
// next frame is processed — bounding per-algo lag to one update (spec.md §5).
func (d *Distributor) dispatch(f frame) {
	if f.depth == "l1" {
		d.book.SetL1(f.instrument, f.l1)
		d.fanOut(d.l1Subs[f.instrument], func(algoIDs []string) types.FeedUpdate {
			return types.FeedUpdate{AlgoIDs: algoIDs, L1: &f.l1}
		})
		return
	}

	d.book.SetL2(f.instrument, f.l2)
	d.fanOut(d.l2Subs[f.instrument], func(algoIDs []string) types.FeedUpdate {
		return types.FeedUpdate{AlgoIDs: algoIDs, L2: &f.l2}
	})
}

func (d *Distributor) fanOut(bySubscriber map[string]*subscriberEntry, build func([]string) types.FeedUpdate) {
	if len(bySubscriber) == 0 {
		return
	}

	var wg sync.WaitGroup
	for subscriberID, entry := range bySubscriber {
		algoIDs := entry.algo.AsSlice()
		if len(algoIDs) == 0 || entry.sink == nil {
			continue
		}
		update := build(algoIDs)
		sink := entry.sink
		wg.Add(1)
		go func(sink chan<- types.FeedUpdate, sid string) {
			defer wg.Done()
			select {
			case sink <- update:
			default:
				d.logger.Warn("subscriber sink full, dropping update", "subscriber", sid)
			}
		}(sink, subscriberID)
	}
	wg.Wait()
}
