package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient returns an authenticated spot client.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
