package clients

import (
	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// DefaultSimulateQuoteBalance quote-currency balance a fresh simulated wallet starts with.
var DefaultSimulateQuoteBalance = decimal.NewFromInt(10000)

// SimulateClient prices orders with the public Binance API and fills them in memory.
type SimulateClient struct {
	// no API keys, public market data only
	binanceClient *binance.Client
	stateDir      string
}

// NewSimulateClient creates a new simulate client. An empty stateDir keeps the wallet in memory only.
func NewSimulateClient(stateDir string) *SimulateClient {
	return &SimulateClient{
		binanceClient: binance.NewClient("", ""),
		stateDir:      stateDir,
	}
}

// GetBinanceClient returns the underlying Binance client.
func (c *SimulateClient) GetBinanceClient() *binance.Client {
	return c.binanceClient
}

// StateDir directory where wallets are persisted between runs.
func (c *SimulateClient) StateDir() string {
	return c.stateDir
}
