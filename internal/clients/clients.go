// Package clients builds vendor SDK clients from environment credentials.
package clients

import (
	"github.com/vadiminshakov/rangebot/internal/domain"
)

// Platform identifiers accepted in configuration.
const (
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"
	PlatformSimulate    = "simulate"
)

// BybitSpotStreamURL public V5 spot websocket.
const BybitSpotStreamURL = "wss://stream.bybit.com/v5/public/spot"

// Environment variables holding credentials.
const (
	EnvBinanceAPIKey         = "BINANCE_API_KEY"
	EnvBinanceAPISecret      = "BINANCE_API_SECRET"
	EnvBybitAPIKey           = "BYBIT_API_KEY"
	EnvBybitAPISecret        = "BYBIT_API_SECRET"
	EnvHyperliquidPrivateKey = "HYPERLIQUID_PRIVATE_KEY"
	EnvHyperliquidBaseURL    = "HYPERLIQUID_BASE_URL"
	EnvSimulateStateDir      = "RANGEBOT_SIMULATE_STATE_DIR"
)

// New returns the vendor client of platform. The result is one of *binance.Client,
// *BybitClient, *HyperliquidClient or *SimulateClient.
func New(platform string, getenv func(string) string) (any, error) {
	switch platform {
	case PlatformBinance:
		apiKey, apiSecret := getenv(EnvBinanceAPIKey), getenv(EnvBinanceAPISecret)
		if apiKey == "" || apiSecret == "" {
			return nil, domain.NewValidationError("%s and %s environment variables must be set", EnvBinanceAPIKey, EnvBinanceAPISecret)
		}
		return NewBinanceClient(apiKey, apiSecret), nil
	case PlatformBybit:
		apiKey, apiSecret := getenv(EnvBybitAPIKey), getenv(EnvBybitAPISecret)
		if apiKey == "" || apiSecret == "" {
			return nil, domain.NewValidationError("%s and %s environment variables must be set", EnvBybitAPIKey, EnvBybitAPISecret)
		}
		return NewBybitClient(apiKey, apiSecret), nil
	case PlatformHyperliquid:
		privateKey := getenv(EnvHyperliquidPrivateKey)
		if privateKey == "" {
			return nil, domain.NewValidationError("%s environment variable must be set", EnvHyperliquidPrivateKey)
		}
		return NewHyperliquidClient(privateKey, getenv(EnvHyperliquidBaseURL))
	case PlatformSimulate:
		return NewSimulateClient(getenv(EnvSimulateStateDir)), nil
	default:
		return nil, domain.NewValidationError("unsupported platform %q", platform)
	}
}
