package container

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"sniper-engine/internal/feed"
	"sniper-engine/internal/gateway"
	"sniper-engine/internal/report"
	"sniper-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeAlgo records every callback it receives and closes done when
// told to, so tests can assert both routing and completion cleanup.
type fakeAlgo struct {
	mu        sync.Mutex
	l1Calls   []types.L1Data
	l2Calls   []types.L2Data
	respCalls []types.MarketResponse
	done      chan struct{}
}

func newFakeAlgo() *fakeAlgo {
	return &fakeAlgo{done: make(chan struct{})}
}

func (f *fakeAlgo) OnL1(data types.L1Data) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.l1Calls = append(f.l1Calls, data)
}

func (f *fakeAlgo) OnL2(data types.L2Data) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.l2Calls = append(f.l2Calls, data)
}

func (f *fakeAlgo) OnMarketResponse(resp types.MarketResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respCalls = append(f.respCalls, resp)
}

func (f *fakeAlgo) Done() <-chan struct{} { return f.done }

func (f *fakeAlgo) Status() AlgoStatus { return AlgoStatus{} }

// Run is a no-op: these tests drive fakeAlgo purely through its
// OnL1/OnL2/OnMarketResponse callbacks, invoked directly by the
// container, so there is no internal event loop to start.
func (f *fakeAlgo) Run(ctx context.Context) {}

func (f *fakeAlgo) l1Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.l1Calls)
}

func (f *fakeAlgo) respCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.respCalls)
}

func newTestContainer(t *testing.T, algos map[string]*fakeAlgo) (*Container, context.Context, context.CancelFunc) {
	t.Helper()

	factory := func(params types.AlgoParameters, feedClient *feed.Client, marketClient *gateway.Client, recorder *report.Recorder) Algo {
		return algos[params.AlgoID]
	}

	// A real Feed Client/Market Client/Recorder is never exercised in
	// these tests: feed updates and market responses are injected
	// directly onto the container's internal channels, so the
	// distributor, gateway, and recorder the factory would otherwise
	// need all stay nil.
	c := New("test-container", nil, nil, nil, factory, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	return c, ctx, cancel
}

func TestCreateAlgoThenFeedUpdateRoutesToReferencedAlgos(t *testing.T) {
	t.Parallel()

	a1, a2 := newFakeAlgo(), newFakeAlgo()
	c, ctx, cancel := newTestContainer(t, map[string]*fakeAlgo{"algo-1": a1, "algo-2": a2})
	defer cancel()

	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-1", Side: types.Buy})
	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-2", Side: types.Sell})

	l1 := types.L1Data{}
	c.feedCh <- types.FeedUpdate{AlgoIDs: []string{"algo-1", "algo-2"}, L1: &l1}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a1.l1Count() == 1 && a2.l1Count() == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected both algos to receive the L1 update, got a1=%d a2=%d", a1.l1Count(), a2.l1Count())
}

func TestFeedUpdateOnlyRoutesToReferencedAlgo(t *testing.T) {
	t.Parallel()

	a1, a2 := newFakeAlgo(), newFakeAlgo()
	c, ctx, cancel := newTestContainer(t, map[string]*fakeAlgo{"algo-1": a1, "algo-2": a2})
	defer cancel()

	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-1", Side: types.Buy})
	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-2", Side: types.Sell})

	l1 := types.L1Data{}
	c.feedCh <- types.FeedUpdate{AlgoIDs: []string{"algo-1"}, L1: &l1}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a1.l1Count() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if a1.l1Count() != 1 {
		t.Fatalf("expected algo-1 to receive the update, got %d", a1.l1Count())
	}
	if a2.l1Count() != 0 {
		t.Fatalf("expected algo-2 to receive nothing, got %d", a2.l1Count())
	}
}

func TestMarketResponseRoutesToExactlyOneAlgo(t *testing.T) {
	t.Parallel()

	a1, a2 := newFakeAlgo(), newFakeAlgo()
	c, ctx, cancel := newTestContainer(t, map[string]*fakeAlgo{"algo-1": a1, "algo-2": a2})
	defer cancel()

	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-1", Side: types.Buy})
	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-2", Side: types.Sell})

	c.marketCh <- marketResponseMsg{algoID: "algo-1", resp: types.MarketResponse{Kind: types.CreateOrderAck}}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if a1.respCount() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if a1.respCount() != 1 {
		t.Fatalf("expected algo-1 to receive the response, got %d", a1.respCount())
	}
	if a2.respCount() != 0 {
		t.Fatalf("expected algo-2 to receive nothing, got %d", a2.respCount())
	}
}

func TestMarketResponseForUnknownAlgoIDIsDropped(t *testing.T) {
	t.Parallel()

	c, _, cancel := newTestContainer(t, map[string]*fakeAlgo{})
	defer cancel()

	// Should not panic or block; there is no algo registered at all.
	c.marketCh <- marketResponseMsg{algoID: "ghost", resp: types.MarketResponse{Kind: types.CreateOrderAck}}
	time.Sleep(20 * time.Millisecond)
}

func TestCreateAlgoIsIdempotentPerAlgoID(t *testing.T) {
	t.Parallel()

	a1 := newFakeAlgo()
	c, ctx, cancel := newTestContainer(t, map[string]*fakeAlgo{"algo-1": a1})
	defer cancel()

	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-1", Side: types.Buy})
	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-1", Side: types.Buy})

	if got := len(c.Snapshot()); got != 1 {
		t.Fatalf("Snapshot() len = %d, want 1", got)
	}
}

func TestReapRemovesCompletedAlgos(t *testing.T) {
	t.Parallel()

	a1, a2 := newFakeAlgo(), newFakeAlgo()
	c, ctx, cancel := newTestContainer(t, map[string]*fakeAlgo{"algo-1": a1, "algo-2": a2})
	defer cancel()

	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-1", Side: types.Buy})
	c.CreateAlgo(ctx, types.AlgoParameters{AlgoID: "algo-2", Side: types.Sell})
	close(a1.done)

	if removed := c.Reap(); removed != 1 {
		t.Fatalf("Reap() = %d, want 1", removed)
	}
	if got := len(c.Snapshot()); got != 1 {
		t.Fatalf("Snapshot() len after reap = %d, want 1", got)
	}
}
