package gateway

import (
	"context"

	"sniper-engine/pkg/types"
)

// Client is the thin per-algo handle the Algo Container constructs on
// CreateAlgo (spec.md §4.3): it captures the gateway, the owning
// algo_id, and the response sink the algo reads from.
type Client struct {
	gateway *Gateway
	algoID  string
	sink    ResponseSink
}

// NewClient builds a Market Client for one algorithm, delivering
// responses on sink.
func NewClient(g *Gateway, algoID string, sink ResponseSink) *Client {
	return &Client{gateway: g, algoID: algoID, sink: sink}
}

// GetSymbolInformation issues a blocking symbol-metadata lookup.
func (c *Client) GetSymbolInformation(ctx context.Context, symbol string) types.SymbolInformation {
	return c.gateway.GetSymbolInformation(ctx, symbol, c.algoID)
}

// CreateOrder submits an order; the terminal/ack MarketResponse stream
// arrives asynchronously on the sink this client was built with.
func (c *Client) CreateOrder(req types.OrderRequest) {
	c.gateway.CreateOrder(req, c.algoID, c.sink)
}
