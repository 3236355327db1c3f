package bitunix

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// priceCache is a thread-safe last-traded-price cache keyed by symbol, fed
// by the WebSocket stream and read by Client.CurrentPrice. The engine
// trades on closed bars only, so the cache holds just the last observed
// price per symbol.
type priceCache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func newPriceCache() *priceCache {
	return &priceCache{prices: make(map[string]decimal.Decimal)}
}

func (c *priceCache) set(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
}

func (c *priceCache) get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[symbol]
	return p, ok
}

// WS is a reconnecting WebSocket client for the bitunix public trade
// stream, used only to keep CurrentPrice fresh between bar closes.
type WS struct {
	url      string
	pingFreq time.Duration
}

// NewWS creates a WS client for the given public stream URL.
func NewWS(url string) *WS {
	return &WS{url: url, pingFreq: 15 * time.Second}
}

type tradeMsg struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Stream connects, subscribes to `symbols`, and feeds every trade price
// into cache until ctx is cancelled, reconnecting with backoff on drop.
func (w *WS) Stream(ctx context.Context, symbols []string, cache *priceCache) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := w.connectOnce(ctx, symbols, cache); err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("bitunix ws: connection lost, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (w *WS) connectOnce(ctx context.Context, symbols []string, cache *priceCache) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, sym := range symbols {
		sub := map[string]any{"op": "subscribe", "args": []string{"trade:" + sym}}
		if err := conn.WriteJSON(sub); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg tradeMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Symbol == "" || msg.Price == "" {
			continue
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			continue
		}
		cache.set(msg.Symbol, price)
	}
}
