package gateway

import (
	"context"

	"sniper-engine/pkg/types"
)

// userDataStream is the subset of internal/exchange's UserStream API the
// gateway depends on, named so tests can supply a fake instead of a
// real authenticated websocket.
type userDataStream interface {
	Reports() <-chan types.ExecutionReportFrame
	Run(ctx context.Context) error
}

// RunExecutionReports is the dedicated execution-report ingestion
// worker (spec.md §4.2): it consumes the user-data stream, maps each
// wire frame onto a domain MarketResponse via mapExecutionReport, and
// routes it to the originating algo via the correlation table. Run it
// alongside Gateway.Run in its own goroutine.
func (g *Gateway) RunExecutionReports(ctx context.Context, stream userDataStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-stream.Reports():
			if !ok {
				return
			}
			g.handleReport(frame)
		}
	}
}

func (g *Gateway) handleReport(frame types.ExecutionReportFrame) {
	resp, terminal, recognized := mapExecutionReport(frame)
	if !recognized {
		g.logger.Debug("dropping unrecognized execution report",
			"client_order_id", frame.ClientOrderID, "execution_type", frame.ExecutionType, "order_status", frame.OrderStatus)
		return
	}

	entry, ok := g.lookupCorrelation(frame.ClientOrderID)
	if !ok {
		g.logger.Debug("dropping execution report for unknown client_order_id", "client_order_id", frame.ClientOrderID)
		return
	}

	if terminal {
		g.removeCorrelation(frame.ClientOrderID)
	}

	deliver(entry.sink, resp)
}

// mapExecutionReport translates one wire execution report into a domain
// MarketResponse per spec.md §4.2's mapping table. recognized is false
// for REPLACED/TRADE_PREVENTION/UNKNOWN and anything else unmapped,
// which callers must drop rather than deliver.
func mapExecutionReport(frame types.ExecutionReportFrame) (resp types.MarketResponse, terminal bool, recognized bool) {
	resp.ClientOrderID = frame.ClientOrderID

	switch frame.ExecutionType {
	case types.ExecNew:
		resp.Kind = types.CreateOrderAck
		return resp, false, true

	case types.ExecTrade:
		resp.FilledQty = frame.LastFillQty
		resp.LeavesQty = frame.OrderQuantity.Sub(frame.LastFillQty)
		if frame.OrderStatus == types.StatusFilled {
			resp.Kind = types.OrderFullyFilled
			return resp, true, true
		}
		resp.Kind = types.OrderPartiallyFilled
		return resp, false, true

	case types.ExecExpired:
		resp.Kind = types.OrderExpired
		resp.LeavesQty = frame.OrderQuantity.Sub(frame.CumulativeQty)
		return resp, true, true

	case types.ExecRejected:
		resp.Kind = types.OrderRejected
		resp.Reason = frame.RejectReason
		return resp, true, true

	case types.ExecCanceled:
		resp.Kind = types.OrderCanceled
		resp.LeavesQty = frame.OrderQuantity.Sub(frame.LastFillQty)
		return resp, true, true

	default:
		return types.MarketResponse{}, false, false
	}
}
