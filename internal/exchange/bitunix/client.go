// Package bitunix implements the bitunix venue adapter: REST kline fetch
// and market order placement via resty, double-SHA256 request signing, and a
// WebSocket last-price cache behind CurrentPrice. HTTP outcomes are
// classified into exchange.TransientError / exchange.PermanentError so
// the retry wrapper knows what is safe to repeat.
package bitunix

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Inkedup1114/bitrader/internal/bar"
	"github.com/Inkedup1114/bitrader/internal/exchange"
)

// Client is the bitunix REST+WS venue adapter.
type Client struct {
	key, secret, base string
	rest              *resty.Client
	prices            *priceCache
	ws                *WS
	wsCancel          context.CancelFunc
}

// New creates a bitunix Client. If wsURL is non-empty a background
// WebSocket connection feeds the last-price cache; otherwise CurrentPrice
// falls back to the REST depth endpoint.
func New(key, secret, base, wsURL string, timeout time.Duration, symbols []string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	r := resty.New()
	r.SetTransport(transport)
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}

	c := &Client{key: key, secret: secret, base: base, rest: r, prices: newPriceCache()}

	if wsURL != "" {
		ctx, cancel := context.WithCancel(context.Background())
		c.wsCancel = cancel
		c.ws = NewWS(wsURL)
		go func() {
			if err := c.ws.Stream(ctx, symbols, c.prices); err != nil && ctx.Err() == nil {
				// Connection loss degrades CurrentPrice to the REST fallback;
				// logged at the WS layer.
				_ = err
			}
		}()
	}

	return c
}

// Close stops the background WebSocket stream and releases the HTTP
// transport's idle connections.
func (c *Client) Close() error {
	if c.wsCancel != nil {
		c.wsCancel()
	}
	c.rest.GetClient().CloseIdleConnections()
	return nil
}

type orderResp struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// orderReq mirrors the bitunix place-order wire payload. ClientID is the
// engine's idempotency key: resubmitting the same intent after a transient
// failure can never record a second fill venue-side.
type orderReq struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	TradeSide string `json:"tradeSide"`
	Qty       string `json:"qty"`
	OrderType string `json:"orderType"`
	ClientID  string `json:"clientId,omitempty"`
}

func (c *Client) sign(ts string) (string, string) {
	nonce := ts
	return nonce, Sign(c.secret, nonce, c.key, ts)
}

// classify maps a resty/HTTP failure into the Exchange Port's two error
// kinds: network errors and 5xx/429 are transient, everything else (4xx,
// auth, malformed request) is permanent.
func classify(op string, err error, statusCode int) error {
	if err != nil {
		return exchange.NewTransient(op, err)
	}
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return exchange.NewTransient(op, fmt.Errorf("status %d", statusCode))
	}
	if statusCode >= 400 {
		return exchange.NewPermanent(op, fmt.Errorf("status %d", statusCode))
	}
	return nil
}

// SubmitMarketOrder places a market order against the bitunix REST API.
func (c *Client) SubmitMarketOrder(ctx context.Context, intent exchange.OrderIntent) (exchange.Fill, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce, sign := c.sign(ts)

	req := orderReq{
		Symbol:    intent.Symbol,
		Side:      string(intent.Side),
		TradeSide: "OPEN",
		Qty:       intent.Quantity.String(),
		OrderType: "MARKET",
		ClientID:  intent.ClientOrderID,
	}
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	if intent.Reason != exchange.ReasonEntry {
		req.TradeSide = "CLOSE"
	}

	resp := &orderResp{}
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("api-key", c.key).
		SetHeader("nonce", nonce).
		SetHeader("timestamp", ts).
		SetHeader("sign", sign).
		SetBody(req).
		SetResult(resp).
		Post(c.base + "/api/v1/futures/trade/place_order")

	statusCode := 0
	if httpResp != nil {
		statusCode = httpResp.StatusCode()
	}
	if cerr := classify("submit_market_order", err, statusCode); cerr != nil {
		return exchange.Fill{}, cerr
	}
	if resp.Code != 0 {
		return exchange.Fill{}, exchange.NewPermanent("submit_market_order", fmt.Errorf("bitunix: %d %s", resp.Code, resp.Msg))
	}

	price := intent.ReferencePrice
	if price.IsZero() {
		if cached, ok := c.prices.get(intent.Symbol); ok {
			price = cached
		}
	}

	return exchange.Fill{
		OrderID:        fmt.Sprintf("%s-%s", intent.Symbol, ts),
		Symbol:         intent.Symbol,
		Side:           intent.Side,
		FilledQuantity: intent.Quantity,
		AveragePrice:   price,
		Timestamp:      time.Now(),
		Fees:           decimal.Zero,
	}, nil
}

// kline is the bitunix candlestick wire shape.
type kline struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
	CloseTime int64   `json:"closeTime"`
}

var timeframeToInterval = map[exchange.Timeframe]string{
	exchange.TF1m:  "1m",
	exchange.TF5m:  "5m",
	exchange.TF15m: "15m",
	exchange.TF1h:  "1h",
	exchange.TF4h:  "4h",
	exchange.TF1d:  "1d",
}

// FetchBars retrieves the last `limit` klines for symbol/timeframe.
func (c *Client) FetchBars(ctx context.Context, symbol string, timeframe exchange.Timeframe, limit int) ([]bar.Bar, error) {
	interval, ok := timeframeToInterval[timeframe]
	if !ok {
		return nil, exchange.NewPermanent("fetch_bars", fmt.Errorf("bitunix: unknown timeframe %q", timeframe))
	}

	var klines []kline
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&klines).
		Get(c.base + "/api/v1/market/klines")

	statusCode := 0
	if httpResp != nil {
		statusCode = httpResp.StatusCode()
	}
	if cerr := classify("fetch_bars", err, statusCode); cerr != nil {
		return nil, cerr
	}

	out := make([]bar.Bar, len(klines))
	for i, k := range klines {
		out[i] = bar.Bar{
			Timestamp: time.UnixMilli(k.OpenTime),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		}
	}
	return out, nil
}

// CurrentPrice prefers the WebSocket last-price cache and falls back to the
// REST depth endpoint's best bid when the cache has nothing yet.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if price, ok := c.prices.get(symbol); ok {
		return price, nil
	}

	var depthResp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	httpResp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "limit": "5"}).
		SetResult(&depthResp).
		Get(c.base + "/api/v1/market/depth")

	statusCode := 0
	if httpResp != nil {
		statusCode = httpResp.StatusCode()
	}
	if cerr := classify("current_price", err, statusCode); cerr != nil {
		return decimal.Zero, cerr
	}
	if len(depthResp.Bids) == 0 {
		return decimal.Zero, exchange.NewPermanent("current_price", fmt.Errorf("bitunix: empty depth for %s", symbol))
	}
	price, perr := decimal.NewFromString(depthResp.Bids[0][0])
	if perr != nil {
		return decimal.Zero, exchange.NewPermanent("current_price", perr)
	}
	return price, nil
}

// GetRemotePosition is not implemented against the bitunix REST API and
// always returns exchange.ErrUnsupported. No book/venue reconciliation
// runs in the engine.
func (c *Client) GetRemotePosition(ctx context.Context, symbol string) (*exchange.RemotePosition, error) {
	return nil, exchange.ErrUnsupported
}

var _ exchange.Port = (*Client)(nil)
