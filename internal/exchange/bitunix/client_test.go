package bitunix

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Inkedup1114/bitrader/internal/exchange"
)

func TestClassifyNetworkErrorIsTransient(t *testing.T) {
	err := classify("fetch_bars", errors.New("dial tcp: timeout"), 0)
	assert.True(t, exchange.IsTransient(err))
}

func TestClassify5xxIsTransient(t *testing.T) {
	err := classify("fetch_bars", nil, 503)
	assert.True(t, exchange.IsTransient(err))
}

func TestClassify429IsTransient(t *testing.T) {
	err := classify("submit_market_order", nil, 429)
	assert.True(t, exchange.IsTransient(err))
}

func TestClassify4xxIsPermanent(t *testing.T) {
	err := classify("fetch_bars", nil, 404)
	assert.True(t, exchange.IsPermanent(err))
}

func TestClassifyOKIsNil(t *testing.T) {
	err := classify("fetch_bars", nil, 200)
	assert.NoError(t, err)
}

func TestSignDeterministic(t *testing.T) {
	a := Sign("secret", "nonce1", "key1", "1000")
	b := Sign("secret", "nonce1", "key1", "1000")
	assert.Equal(t, a, b)
	c := Sign("secret", "nonce2", "key1", "1000")
	assert.NotEqual(t, a, c)
}
