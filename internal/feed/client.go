package feed

import "sniper-engine/pkg/types"

// Client is the thin per-algo handle the Algo Container constructs on
// CreateAlgo (spec.md §4.3): it captures the distributor, the
// container's subscriber identity and shared sink, and the owning
// algo_id, so the Sniper state machine can Subscribe/Unsubscribe
// without knowing anything about the distributor's internals. sink is
// the container's single inbound feed channel — every algo living in
// the same container shares it, since the distributor fans updates out
// per-subscriber (one Subscriber.Sink), not per-algo.
type Client struct {
	distributor  *Distributor
	subscriberID string
	algoID       string
	sink         chan<- types.FeedUpdate
}

// NewClient builds a Feed Client for one algorithm living in the
// container identified by subscriberID, delivering to the container's
// shared sink.
func NewClient(d *Distributor, subscriberID, algoID string, sink chan<- types.FeedUpdate) *Client {
	return &Client{distributor: d, subscriberID: subscriberID, algoID: algoID, sink: sink}
}

// SubscribeL1 subscribes this algo to L1 updates for (base, quote).
func (c *Client) SubscribeL1(base, quote string) {
	c.distributor.SubscribeL1(c.algoID, base, quote, Subscriber{ID: c.subscriberID, Sink: c.sink})
}

// SubscribeL2 subscribes this algo to L2 updates for (base, quote).
func (c *Client) SubscribeL2(base, quote string) {
	c.distributor.SubscribeL2(c.algoID, base, quote, Subscriber{ID: c.subscriberID, Sink: c.sink})
}

// UnsubscribeL1 removes this algo's L1 interest in (base, quote).
func (c *Client) UnsubscribeL1(base, quote string) {
	c.distributor.UnsubscribeL1(c.algoID, base, quote, c.subscriberID)
}

// UnsubscribeL2 removes this algo's L2 interest in (base, quote).
func (c *Client) UnsubscribeL2(base, quote string) {
	c.distributor.UnsubscribeL2(c.algoID, base, quote, c.subscriberID)
}
