package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAlgoParametersSymbol(t *testing.T) {
	t.Parallel()

	p := AlgoParameters{Base: "BTC", Quote: "USDT"}
	if got, want := p.Symbol(), "BTCUSDT"; got != want {
		t.Errorf("Symbol() = %q, want %q", got, want)
	}
}

func TestMarketResponseKindString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind MarketResponseKind
		want string
	}{
		{CreateOrderAck, "CreateOrderAck"},
		{OrderPartiallyFilled, "OrderPartiallyFilled"},
		{OrderFullyFilled, "OrderFullyFilled"},
		{OrderExpired, "OrderExpired"},
		{OrderRejected, "OrderRejected"},
		{OrderCanceled, "OrderCanceled"},
		{MarketResponseKind(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("MarketResponseKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestSymbolInformationAbsentFieldsAreNil(t *testing.T) {
	t.Parallel()

	var info SymbolInformation
	if info.MinQuantity != nil || info.MinAmount != nil || info.TickSize != nil {
		t.Error("zero-value SymbolInformation must have all-nil optional fields")
	}
}

func TestLevelZeroValueIsZeroQuantity(t *testing.T) {
	t.Parallel()

	var lvl Level
	if !lvl.Quantity.Equal(decimal.Zero) {
		t.Errorf("zero-value Level.Quantity = %v, want 0", lvl.Quantity)
	}
}
