package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	"github.com/shopspring/decimal"
	"strings"
)

// combinedEvent is the envelope of a multiplexed stream message.
type combinedEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tickerEvent is the 24h rolling window ticker payload. Keys differing only
// by case must be declared together, otherwise the JSON decoder matches
// them case-insensitively.
type tickerEvent struct {
	Event              string `json:"e"`
	Time               int64  `json:"E"`
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	LastPrice          string `json:"c"`
	CloseTime          int64  `json:"C"`
	OpenPrice          string `json:"o"`
	OpenTime           int64  `json:"O"`
}

func (es *ExchangeService) MarketTicker(
	ctx context.Context,
	symbols []string,
) (<-chan *dashboard.Ticker, <-chan error) {
	tickerChannel := make(chan *dashboard.Ticker)
	errorChannel := make(chan error, 1)

	streams := make([]string, len(symbols))
	for index, symbol := range symbols {
		streams[index] = strings.ToLower(symbol) + "@ticker"
	}

	endpoint := fmt.Sprintf(
		"%s/stream?streams=%s",
		es.streamURL,
		strings.Join(streams, "/"),
	)

	contextLogger := es.logger.WithField("streams", len(streams))

	go func() {
		defer close(errorChannel)
		defer close(tickerChannel)

		err := es.serve(ctx, contextLogger, endpoint, func(message []byte) bool {
			ticker, err := parseTickerMessage(message)
			if err != nil {
				contextLogger.Debugf("dropping ticker message: [%v]", err)
				return true
			}

			select {
			case tickerChannel <- ticker:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			errorChannel <- err
		}
	}()

	return tickerChannel, errorChannel
}

func parseTickerMessage(message []byte) (*dashboard.Ticker, error) {
	envelope := new(combinedEvent)
	if err := json.Unmarshal(message, envelope); err != nil {
		return nil, fmt.Errorf("%w: [%v]", errMalformedMessage, err)
	}

	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", errMalformedMessage)
	}

	event := new(tickerEvent)
	if err := json.Unmarshal(envelope.Data, event); err != nil {
		return nil, fmt.Errorf("%w: [%v]", errMalformedMessage, err)
	}

	if len(event.Symbol) == 0 || len(event.LastPrice) == 0 {
		return nil, fmt.Errorf(
			"%w: missing symbol or price",
			errMalformedMessage,
		)
	}

	lastPrice, err := decimal.NewFromString(event.LastPrice)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: invalid price [%v]",
			errMalformedMessage,
			event.LastPrice,
		)
	}

	changePercent := decimal.Zero
	if len(event.PriceChangePercent) > 0 {
		changePercent, err = decimal.NewFromString(event.PriceChangePercent)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: invalid change percent [%v]",
				errMalformedMessage,
				event.PriceChangePercent,
			)
		}
	}

	return &dashboard.Ticker{
		Symbol:        event.Symbol,
		LastPrice:     lastPrice,
		ChangePercent: changePercent,
		EventTime:     parseMilliseconds(event.Time),
	}, nil
}
