package exchange

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"sniper-engine/internal/config"
	"sniper-engine/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c := &Client{
		http:   resty.New().SetBaseURL(srv.URL),
		auth:   NewAuth(config.MarketConfig{APIKey: "key", APISecret: "secret"}),
		rl:     NewRateLimiter(),
		dryRun: false,
		logger: logger,
	}
	return c, srv
}

func TestGetSymbolInformationAllFieldsPresent(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"minQty":"0.001","maxQty":"1000","lotSize":"0.001","minPrice":"0.01","maxPrice":"100000","tickSize":"0.01","minAmount":"10"}`))
	})
	defer srv.Close()

	info := c.GetSymbolInformation(context.Background(), "BTCUSDT")

	if info.MinQuantity == nil || !info.MinQuantity.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("MinQuantity = %v, want 0.001", info.MinQuantity)
	}
	if info.MinAmount == nil || !info.MinAmount.Equal(decimal.RequireFromString("10")) {
		t.Errorf("MinAmount = %v, want 10", info.MinAmount)
	}
}

func TestGetSymbolInformationFailureReturnsAllAbsent(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	info := c.GetSymbolInformation(context.Background(), "BTCUSDT")

	if info.MinQuantity != nil || info.MaxQuantity != nil || info.LotSize != nil ||
		info.MinPrice != nil || info.MaxPrice != nil || info.TickSize != nil || info.MinAmount != nil {
		t.Errorf("expected all-absent SymbolInformation on failure, got %+v", info)
	}
}

func TestCreateOrderDryRunNeverHitsNetwork(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c := &Client{dryRun: true, rl: NewRateLimiter(), logger: logger}

	err := c.CreateOrder(context.Background(), types.OrderRequest{
		ClientOrderID: "abc",
		Symbol:        "BTCUSDT",
		Side:          types.Buy,
		TimeInForce:   types.IOC,
		Price:         decimal.RequireFromString("50000"),
		Quantity:      decimal.RequireFromString("0.01"),
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
}

func TestCreateOrderSubmissionFailureReturnsError(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"insufficient balance"}`))
	})
	defer srv.Close()

	err := c.CreateOrder(context.Background(), types.OrderRequest{
		ClientOrderID: "abc",
		Symbol:        "BTCUSDT",
		Side:          types.Buy,
		TimeInForce:   types.IOC,
		Price:         decimal.RequireFromString("50000"),
		Quantity:      decimal.RequireFromString("0.01"),
	})
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
