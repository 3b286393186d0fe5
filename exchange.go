package dashboard

import (
	"context"
)

type ExchangeCandleService interface {
	// Candles returns the most recent candles matching the filter,
	// ascending by open time.
	Candles(ctx context.Context, filter *CandleFilter) ([]*Candle, error)

	// CandlesTicker streams candle updates for the filter until the
	// context is done. Both channels are closed once the stream ends.
	CandlesTicker(
		ctx context.Context,
		filter *CandleFilter,
	) (<-chan *CandleTick, <-chan error)
}

type ExchangeTickerService interface {
	// MarketTicker streams ticker updates of all given symbols over a single
	// connection until the context is done. Both channels are closed once
	// the stream ends.
	MarketTicker(
		ctx context.Context,
		symbols []string,
	) (<-chan *Ticker, <-chan error)
}

type ExchangeService interface {
	ExchangeCandleService
	ExchangeTickerService

	ExchangeName() string
}
