// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the engine — algo parameters,
// symbol metadata, order book levels, and wire-level execution events. It
// has no dependencies on internal packages, so it can be imported by any
// layer. All prices and quantities use decimal.Decimal rather than float64:
// exchange wire values arrive as strings and must round-trip exactly
// through comparisons and arithmetic that drive order-submission decisions.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// TimeInForce enumerates supported order lifecycles. Sniper only ever
// submits IOC, but the gateway's wire layer needs the full set named.
type TimeInForce string

const (
	IOC TimeInForce = "IOC"
	GTC TimeInForce = "GTC"
	FOK TimeInForce = "FOK"
)

// AlgoType identifies which strategy implementation an AlgoParameters
// entry should be instantiated as. Sniper is the only variant today.
type AlgoType string

const (
	AlgoSniper AlgoType = "SNIPER"
)

// ————————————————————————————————————————————————————————————————————————
// Algo parameters and symbol metadata
// ————————————————————————————————————————————————————————————————————————

// AlgoParameters fully describes one algorithm instance as configured by
// the operator. Read once at CreateAlgo time; never mutated afterward.
type AlgoParameters struct {
	Base     string
	Quote    string
	AlgoType AlgoType
	AlgoID   string
	Side     Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// Symbol returns the base/quote pair joined the way the exchange adapter
// expects it on the wire (e.g. "BTCUSDT").
func (p AlgoParameters) Symbol() string {
	return p.Base + p.Quote
}

// SymbolInformation carries exchange-side trading constraints for a
// symbol. Every field is optional: an absent constraint means "no limit
// known," not "unlimited" — callers must treat a nil pointer as "skip
// this filter," matching GetSymbolInformation's all-or-nothing failure
// contract (spec.md §4.2).
type SymbolInformation struct {
	MinQuantity *decimal.Decimal
	MaxQuantity *decimal.Decimal
	LotSize     *decimal.Decimal
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	TickSize    *decimal.Decimal
	MinAmount   *decimal.Decimal
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// Level is a single price/quantity point in an order book side, indexed
// from best (0) outward.
type Level struct {
	Index    int
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// L1Data is top-of-book: best bid and best ask for a symbol.
type L1Data struct {
	Symbol   string
	BestBid  Level
	BestAsk  Level
}

// L2Data is a full depth snapshot for a symbol. BidSide is sorted best
// (highest price) first; AskSide is sorted best (lowest price) first.
type L2Data struct {
	Symbol  string
	BidSide []Level
	AskSide []Level
}

// ————————————————————————————————————————————————————————————————————————
// Orders and execution reports
// ————————————————————————————————————————————————————————————————————————

// OrderRequest is what the Market Gateway submits to the exchange
// adapter on CreateOrder. Sniper always fills in LIMIT+IOC with a fresh
// ClientOrderID.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	TimeInForce   TimeInForce
	Price         decimal.Decimal
	Quantity      decimal.Decimal
}

// ExecutionType is the wire-level execution_type field on a user-data
// stream frame, before it's mapped to a domain event.
type ExecutionType string

const (
	ExecNew      ExecutionType = "NEW"
	ExecTrade    ExecutionType = "TRADE"
	ExecCanceled ExecutionType = "CANCELED"
	ExecExpired  ExecutionType = "EXPIRED"
	ExecRejected ExecutionType = "REJECTED"
)

// OrderStatus is the wire-level order_status field accompanying an
// ExecutionType, disambiguating e.g. a TRADE that partially vs. fully
// fills an order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusRejected        OrderStatus = "REJECTED"
)

// ExecutionReportFrame is the raw user-data-stream frame as decoded off
// the wire, before the gateway maps it onto a domain event and routes it
// by ClientOrderID via the correlation table.
type ExecutionReportFrame struct {
	ClientOrderID   string
	Symbol          string
	Side            Side
	ExecutionType   ExecutionType
	OrderStatus     OrderStatus
	Price           decimal.Decimal
	OrderQuantity   decimal.Decimal
	LastFillQty     decimal.Decimal
	CumulativeQty   decimal.Decimal
	RejectReason    string
	Timestamp       time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Domain events delivered to an Algorithm's on_market_response
// ————————————————————————————————————————————————————————————————————————

// MarketResponse is the sealed set of domain events the Market Gateway
// delivers to an algo after translating a wire execution report (or a
// synchronous submission failure) per the mapping table in spec.md §4.2.
type MarketResponse struct {
	Kind          MarketResponseKind
	ClientOrderID string
	FilledQty     decimal.Decimal // quantity covered by this event (Ack: 0)
	LeavesQty     decimal.Decimal // quantity still resting after this event
	Reason        string          // populated on Rejected
}

// MarketResponseKind enumerates the domain events spec.md §4.2 names.
type MarketResponseKind int

const (
	CreateOrderAck MarketResponseKind = iota
	OrderPartiallyFilled
	OrderFullyFilled
	OrderExpired
	OrderRejected
	OrderCanceled
)

func (k MarketResponseKind) String() string {
	switch k {
	case CreateOrderAck:
		return "CreateOrderAck"
	case OrderPartiallyFilled:
		return "OrderPartiallyFilled"
	case OrderFullyFilled:
		return "OrderFullyFilled"
	case OrderExpired:
		return "OrderExpired"
	case OrderRejected:
		return "OrderRejected"
	case OrderCanceled:
		return "OrderCanceled"
	default:
		return "Unknown"
	}
}

// FeedUpdate is what the Feed Distributor delivers to a Tracked
// Subscriber's sink: the decoded market data plus the set of algo_ids on
// whose behalf this subscriber should re-dispatch it.
type FeedUpdate struct {
	AlgoIDs []string
	L1      *L1Data // set for an L1 stream update
	L2      *L2Data // set for an L2 stream update
}
