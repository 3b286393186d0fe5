package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/adshao/go-binance"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	"github.com/shopspring/decimal"
	"strings"
)

var errMalformedMessage = errors.New("malformed stream message")

func (es *ExchangeService) Candles(
	ctx context.Context,
	filter *dashboard.CandleFilter,
) ([]*dashboard.Candle, error) {
	requestCtx, cancelRequestCtx := context.WithTimeout(ctx, requestTimeout)
	defer cancelRequestCtx()

	limit := filter.Limit
	if limit <= 0 || limit > dashboard.CandleHistoryLimit {
		limit = dashboard.CandleHistoryLimit
	}

	klines, err := es.client.
		NewKlinesService().
		Symbol(filter.Pair).
		Interval(filter.Interval).
		Limit(limit).
		Do(requestCtx)
	if err != nil {
		return nil, fmt.Errorf("could not get klines: [%w]", err)
	}

	candles := make([]*dashboard.Candle, len(klines))
	for index := range candles {
		kline := klines[index]

		candle, err := parseCandle(
			kline.OpenTime,
			kline.Open,
			kline.High,
			kline.Low,
			kline.Close,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"could not parse kline [%v]: [%w]",
				index,
				err,
			)
		}

		candles[index] = candle
	}

	return candles, nil
}

func (es *ExchangeService) CandlesTicker(
	ctx context.Context,
	filter *dashboard.CandleFilter,
) (<-chan *dashboard.CandleTick, <-chan error) {
	tickChannel := make(chan *dashboard.CandleTick)
	errorChannel := make(chan error, 1)

	contextLogger := es.logger.WithFields(
		map[string]interface{}{
			"pair":     filter.Pair,
			"interval": filter.Interval,
		},
	)

	endpoint := fmt.Sprintf(
		"%s/ws/%s@kline_%s",
		es.streamURL,
		strings.ToLower(filter.Pair),
		filter.Interval,
	)

	go func() {
		defer close(errorChannel)
		defer close(tickChannel)

		err := es.serve(ctx, contextLogger, endpoint, func(message []byte) bool {
			tick, err := parseKlineMessage(message, filter)
			if err != nil {
				contextLogger.Debugf("dropping kline message: [%v]", err)
				return true
			}

			select {
			case tickChannel <- tick:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			errorChannel <- err
		}
	}()

	return tickChannel, errorChannel
}

func parseKlineMessage(
	message []byte,
	filter *dashboard.CandleFilter,
) (*dashboard.CandleTick, error) {
	event := new(binance.WsKlineEvent)
	if err := json.Unmarshal(message, event); err != nil {
		return nil, fmt.Errorf("%w: [%v]", errMalformedMessage, err)
	}

	if event.Kline.StartTime == 0 {
		return nil, fmt.Errorf("%w: missing kline", errMalformedMessage)
	}

	candle, err := parseCandle(
		event.Kline.StartTime,
		event.Kline.Open,
		event.Kline.High,
		event.Kline.Low,
		event.Kline.Close,
	)
	if err != nil {
		return nil, err
	}

	pair := event.Symbol
	if len(pair) == 0 {
		pair = filter.Pair
	}

	interval := event.Kline.Interval
	if len(interval) == 0 {
		interval = filter.Interval
	}

	return &dashboard.CandleTick{
		Candle:   candle,
		Pair:     pair,
		Interval: interval,
		TickTime: parseMilliseconds(event.Time),
	}, nil
}

func parseCandle(
	openTime int64,
	openPrice, highPrice, lowPrice, closePrice string,
) (*dashboard.Candle, error) {
	prices := make([]decimal.Decimal, 4)

	for index, value := range []string{
		openPrice,
		highPrice,
		lowPrice,
		closePrice,
	} {
		price, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf(
				"%w: invalid price [%v]",
				errMalformedMessage,
				value,
			)
		}

		prices[index] = price
	}

	return &dashboard.Candle{
		OpenTime:   parseOpenTime(openTime),
		OpenPrice:  prices[0],
		MaxPrice:   prices[1],
		MinPrice:   prices[2],
		ClosePrice: prices[3],
	}, nil
}
