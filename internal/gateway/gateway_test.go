package gateway

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sniper-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeAdapter struct {
	symbolInfo   types.SymbolInformation
	createOrders []types.OrderRequest
	createErr    error
}

func (f *fakeAdapter) GetSymbolInformation(ctx context.Context, symbol string) types.SymbolInformation {
	return f.symbolInfo
}

func (f *fakeAdapter) CreateOrder(ctx context.Context, req types.OrderRequest) error {
	f.createOrders = append(f.createOrders, req)
	return f.createErr
}

func newTestGateway(t *testing.T, adapter *fakeAdapter) (*Gateway, context.CancelFunc) {
	t.Helper()
	g := NewGateway(adapter, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go g.Run(ctx)
	return g, cancel
}

func TestGetSymbolInformationReturnsAdapterResult(t *testing.T) {
	t.Parallel()

	minQty := decimal.RequireFromString("0.1")
	adapter := &fakeAdapter{symbolInfo: types.SymbolInformation{MinQuantity: &minQty}}
	g, cancel := newTestGateway(t, adapter)
	defer cancel()

	info := g.GetSymbolInformation(context.Background(), "BTCUSDT", "algo-1")
	if info.MinQuantity == nil || !info.MinQuantity.Equal(minQty) {
		t.Errorf("MinQuantity = %v, want %v", info.MinQuantity, minQty)
	}
}

func TestCreateOrderSuccessInstallsCorrelationWithoutImmediateResponse(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{}
	g, cancel := newTestGateway(t, adapter)
	defer cancel()

	sink := make(chan types.MarketResponse, 4)
	req := types.OrderRequest{ClientOrderID: "co-1", Symbol: "BTCUSDT", Side: types.Buy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	g.CreateOrder(req, "algo-1", sink)

	select {
	case resp := <-sink:
		t.Fatalf("expected no immediate response on success, got %+v", resp)
	case <-time.After(100 * time.Millisecond):
	}

	if _, ok := g.lookupCorrelation("co-1"); !ok {
		t.Error("expected correlation entry to be installed on successful submission")
	}
}

func TestCreateOrderFailureEmitsRejectionAndClearsCorrelation(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{createErr: errors.New("insufficient balance")}
	g, cancel := newTestGateway(t, adapter)
	defer cancel()

	sink := make(chan types.MarketResponse, 4)
	req := types.OrderRequest{ClientOrderID: "co-2", Symbol: "BTCUSDT", Side: types.Buy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)}
	g.CreateOrder(req, "algo-1", sink)

	select {
	case resp := <-sink:
		if resp.Kind != types.OrderRejected {
			t.Errorf("Kind = %v, want OrderRejected", resp.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rejection")
	}

	if _, ok := g.lookupCorrelation("co-2"); ok {
		t.Error("expected correlation entry removed after synchronous submission failure")
	}
}

func TestExecutionReportMappingTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		frame      types.ExecutionReportFrame
		wantKind   types.MarketResponseKind
		wantDrop   bool
		wantLeaves decimal.Decimal
	}{
		{
			name:     "new is ack",
			frame:    types.ExecutionReportFrame{ExecutionType: types.ExecNew},
			wantKind: types.CreateOrderAck,
		},
		{
			name: "trade filled is full fill",
			frame: types.ExecutionReportFrame{
				ExecutionType: types.ExecTrade, OrderStatus: types.StatusFilled,
				OrderQuantity: decimal.NewFromInt(10), LastFillQty: decimal.NewFromInt(10),
			},
			wantKind:   types.OrderFullyFilled,
			wantLeaves: decimal.Zero,
		},
		{
			name: "trade partially filled",
			frame: types.ExecutionReportFrame{
				ExecutionType: types.ExecTrade, OrderStatus: types.StatusPartiallyFilled,
				OrderQuantity: decimal.NewFromInt(10), LastFillQty: decimal.NewFromInt(4),
			},
			wantKind:   types.OrderPartiallyFilled,
			wantLeaves: decimal.NewFromInt(6),
		},
		{
			name:     "expired",
			frame:    types.ExecutionReportFrame{ExecutionType: types.ExecExpired, OrderQuantity: decimal.NewFromInt(10), CumulativeQty: decimal.NewFromInt(3)},
			wantKind: types.OrderExpired, wantLeaves: decimal.NewFromInt(7),
		},
		{
			name:     "rejected",
			frame:    types.ExecutionReportFrame{ExecutionType: types.ExecRejected, RejectReason: "filter"},
			wantKind: types.OrderRejected,
		},
		{
			name:     "canceled",
			frame:    types.ExecutionReportFrame{ExecutionType: types.ExecCanceled, OrderQuantity: decimal.NewFromInt(10), LastFillQty: decimal.NewFromInt(2)},
			wantKind: types.OrderCanceled, wantLeaves: decimal.NewFromInt(8),
		},
		{
			name:     "replaced is dropped",
			frame:    types.ExecutionReportFrame{ExecutionType: "REPLACED"},
			wantDrop: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _, recognized := mapExecutionReport(tt.frame)
			if tt.wantDrop {
				if recognized {
					t.Fatalf("expected unrecognized, got kind %v", resp.Kind)
				}
				return
			}
			if !recognized {
				t.Fatal("expected recognized")
			}
			if resp.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", resp.Kind, tt.wantKind)
			}
			if !tt.wantLeaves.Equal(decimal.Zero) && !resp.LeavesQty.Equal(tt.wantLeaves) {
				t.Errorf("LeavesQty = %v, want %v", resp.LeavesQty, tt.wantLeaves)
			}
		})
	}
}

func TestUnknownClientOrderIDIsDropped(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{}
	g, cancel := newTestGateway(t, adapter)
	defer cancel()

	g.handleReport(types.ExecutionReportFrame{ClientOrderID: "never-submitted", ExecutionType: types.ExecNew})
}
