package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// BybitClient bundles the REST client with the credentials the private websocket would need.
type BybitClient struct {
	rest *bybit.Client
}

// NewBybitClient returns an authenticated V5 client.
func NewBybitClient(apiKey, apiSecret string) *BybitClient {
	return &BybitClient{rest: bybit.NewClient().WithAuth(apiKey, apiSecret)}
}

// REST returns the underlying V5 REST client.
func (c *BybitClient) REST() *bybit.Client { return c.rest }

// PublicStreamURL spot public websocket endpoint.
func (c *BybitClient) PublicStreamURL() string { return BybitSpotStreamURL }
