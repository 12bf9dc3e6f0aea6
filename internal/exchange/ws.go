// ws.go implements reconnecting WebSocket streams for market data and
// execution reports.
//
// Two independent stream kinds run concurrently:
//
//   - Market streams (public): one per (symbol, depth) the Feed
//     Distributor subscribes to, emitting L1Data or L2Data frames.
//
//   - The user-data stream (authenticated): a single connection per
//     process, emitting ExecutionReportFrame events the Market Gateway
//     maps onto domain responses and routes via the correlation table.
//
// Both reconnect with exponential backoff and resubscribe on
// reconnection. A read deadline ensures silent server failures are
// detected within a couple of missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"sniper-engine/pkg/types"
)

const (
	pingInterval   = 30 * time.Second
	readTimeout    = 90 * time.Second
	writeTimeout   = 10 * time.Second
	frameBufSize   = 256
)

// MarketStream is a single reconnecting WebSocket connection carrying
// L1 or L2 frames for one (symbol, depth) pair.
type MarketStream struct {
	url     string
	symbol  string
	depth   string // "l1" or "l2"
	conn    *websocket.Conn
	connMu  sync.Mutex

	l1Ch chan types.L1Data
	l2Ch chan types.L2Data

	logger *slog.Logger
}

// NewMarketStream creates a reconnecting market-data stream for one
// symbol at the given depth ("l1" or "l2").
func NewMarketStream(wsURL, symbol, depth string, logger *slog.Logger) *MarketStream {
	return &MarketStream{
		url:    wsURL,
		symbol: symbol,
		depth:  depth,
		l1Ch:   make(chan types.L1Data, frameBufSize),
		l2Ch:   make(chan types.L2Data, frameBufSize),
		logger: logger.With("component", "market_stream", "symbol", symbol, "depth", depth),
	}
}

// L1Frames returns the channel of decoded L1 frames (empty unless depth == "l1").
func (s *MarketStream) L1Frames() <-chan types.L1Data { return s.l1Ch }

// L2Frames returns the channel of decoded L2 frames (empty unless depth == "l2").
func (s *MarketStream) L2Frames() <-chan types.L2Data { return s.l2Ch }

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (s *MarketStream) Run(ctx context.Context) error {
	bo := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2}

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.Duration()
		s.logger.Warn("market stream disconnected, reconnecting", "error", err, "backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Close gracefully closes the connection.
func (s *MarketStream) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *MarketStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	s.logger.Info("market stream connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		s.dispatchMessage(msg)
	}
}

// l1Wire and l2Wire are the wire shapes for book-ticker and depth
// frames. Prices/quantities are strings, per exchange convention.
type levelWire struct {
	Price    string `json:"price"`
	Quantity string `json:"qty"`
}

type l1Wire struct {
	Symbol  string    `json:"symbol"`
	BestBid levelWire `json:"bid"`
	BestAsk levelWire `json:"ask"`
}

type l2Wire struct {
	Symbol string      `json:"symbol"`
	Bids   []levelWire `json:"bids"`
	Asks   []levelWire `json:"asks"`
}

func (s *MarketStream) dispatchMessage(data []byte) {
	if s.depth == "l1" {
		var wire l1Wire
		if err := json.Unmarshal(data, &wire); err != nil {
			s.logger.Debug("drop malformed l1 frame", "error", err)
			return
		}
		bid, bidErr := decodeLevel(0, wire.BestBid)
		ask, askErr := decodeLevel(0, wire.BestAsk)
		if bidErr != nil || askErr != nil {
			s.logger.Debug("drop l1 frame with undecodable level", "bid_err", bidErr, "ask_err", askErr)
			return
		}
		l1 := types.L1Data{Symbol: wire.Symbol, BestBid: bid, BestAsk: ask}
		select {
		case s.l1Ch <- l1:
		default:
			s.logger.Warn("l1 channel full, dropping frame")
		}
		return
	}

	var wire l2Wire
	if err := json.Unmarshal(data, &wire); err != nil {
		s.logger.Debug("drop malformed l2 frame", "error", err)
		return
	}
	l2 := types.L2Data{
		Symbol:  wire.Symbol,
		BidSide: decodeLevels(wire.Bids),
		AskSide: decodeLevels(wire.Asks),
	}
	select {
	case s.l2Ch <- l2:
	default:
		s.logger.Warn("l2 channel full, dropping frame")
	}
}

func decodeLevel(index int, w levelWire) (types.Level, error) {
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return types.Level{}, err
	}
	qty, err := decimal.NewFromString(w.Quantity)
	if err != nil {
		return types.Level{}, err
	}
	return types.Level{Index: index, Price: price, Quantity: qty}, nil
}

// decodeLevels decodes each level independently: a single malformed
// level substitutes a zero-quantity level rather than dropping the
// whole L2 update, per spec.md §4.1.
func decodeLevels(wires []levelWire) []types.Level {
	levels := make([]types.Level, len(wires))
	for i, w := range wires {
		lvl, err := decodeLevel(i, w)
		if err != nil {
			lvl = types.Level{Index: i, Price: decimal.Zero, Quantity: decimal.Zero}
		}
		levels[i] = lvl
	}
	return levels
}

func (s *MarketStream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			s.connMu.Unlock()
			if err != nil {
				s.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// UserStream is the reconnecting WebSocket connection carrying
// execution reports for every order this process has submitted.
type UserStream struct {
	url    string
	auth   *Auth
	conn   *websocket.Conn
	connMu sync.Mutex

	reportCh chan types.ExecutionReportFrame

	logger *slog.Logger
}

// NewUserStream creates the user-data execution-report stream.
func NewUserStream(wsURL string, auth *Auth, logger *slog.Logger) *UserStream {
	return &UserStream{
		url:      wsURL,
		auth:     auth,
		reportCh: make(chan types.ExecutionReportFrame, frameBufSize),
		logger:   logger.With("component", "user_stream"),
	}
}

// Reports returns the channel of decoded execution reports.
func (u *UserStream) Reports() <-chan types.ExecutionReportFrame { return u.reportCh }

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled.
func (u *UserStream) Run(ctx context.Context) error {
	bo := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2}

	for {
		err := u.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.Duration()
		u.logger.Warn("user stream disconnected, reconnecting", "error", err, "backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Close gracefully closes the connection.
func (u *UserStream) Close() error {
	u.connMu.Lock()
	defer u.connMu.Unlock()
	if u.conn != nil {
		return u.conn.Close()
	}
	return nil
}

func (u *UserStream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	u.connMu.Lock()
	u.conn = conn
	u.connMu.Unlock()

	defer func() {
		u.connMu.Lock()
		conn.Close()
		u.conn = nil
		u.connMu.Unlock()
	}()

	if err := conn.WriteJSON(u.auth.Headers("GET", "/userDataStream", "")); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	u.logger.Info("user stream connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		u.dispatchMessage(msg)
	}
}

type executionReportWire struct {
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	ExecutionType string `json:"executionType"`
	OrderStatus   string `json:"orderStatus"`
	Price         string `json:"price"`
	OrderQuantity string `json:"orderQty"`
	LastFillQty   string `json:"lastFillQty"`
	CumulativeQty string `json:"cumulativeQty"`
	RejectReason  string `json:"rejectReason"`
}

func (u *UserStream) dispatchMessage(data []byte) {
	var wire executionReportWire
	if err := json.Unmarshal(data, &wire); err != nil {
		u.logger.Debug("ignoring non-json execution report", "error", err)
		return
	}

	frame := types.ExecutionReportFrame{
		ClientOrderID: wire.ClientOrderID,
		Symbol:        wire.Symbol,
		Side:          types.Side(wire.Side),
		ExecutionType: types.ExecutionType(wire.ExecutionType),
		OrderStatus:   types.OrderStatus(wire.OrderStatus),
		RejectReason:  wire.RejectReason,
		Timestamp:     time.Now(),
	}
	frame.Price = parseDecimalOrZero(wire.Price)
	frame.OrderQuantity = parseDecimalOrZero(wire.OrderQuantity)
	frame.LastFillQty = parseDecimalOrZero(wire.LastFillQty)
	frame.CumulativeQty = parseDecimalOrZero(wire.CumulativeQty)

	select {
	case u.reportCh <- frame:
	default:
		u.logger.Warn("execution report channel full, dropping frame", "client_order_id", wire.ClientOrderID)
	}
}

func parseDecimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
