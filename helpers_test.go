package dashboard

import (
	"context"
	"github.com/shopspring/decimal"
	"sync"
	"testing"
	"time"
)

const awaitTimeout = 5 * time.Second

type nopLogger struct{}

func (nl nopLogger) Debugf(format string, args ...interface{}) {}

func (nl nopLogger) Infof(format string, args ...interface{}) {}

func (nl nopLogger) Warningf(format string, args ...interface{}) {}

func (nl nopLogger) Errorf(format string, args ...interface{}) {}

func (nl nopLogger) Fatalf(format string, args ...interface{}) {}

func (nl nopLogger) WithField(key string, value interface{}) Logger {
	return nl
}

func (nl nopLogger) WithFields(fields map[string]interface{}) Logger {
	return nl
}

type fakeCandleStream struct {
	ctx   context.Context
	ticks chan *CandleTick
	errs  chan error
}

type fakeCandleExchange struct {
	mutex        sync.Mutex
	history      map[string][]*Candle
	historyErr   error
	historyDelay time.Duration
	streamErr    error
	streams      map[string]*fakeCandleStream
	requests     []string
}

func newFakeCandleExchange() *fakeCandleExchange {
	return &fakeCandleExchange{
		history: make(map[string][]*Candle),
		streams: make(map[string]*fakeCandleStream),
	}
}

func (fce *fakeCandleExchange) setHistory(
	filter *CandleFilter,
	candles ...*Candle,
) {
	fce.mutex.Lock()
	defer fce.mutex.Unlock()

	fce.history[filter.String()] = candles
}

func (fce *fakeCandleExchange) Candles(
	ctx context.Context,
	filter *CandleFilter,
) ([]*Candle, error) {
	fce.mutex.Lock()

	fce.requests = append(fce.requests, filter.String())

	historyErr := fce.historyErr
	delay := fce.historyDelay

	history := fce.history[filter.String()]
	candles := make([]*Candle, len(history))
	copy(candles, history)

	fce.mutex.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if historyErr != nil {
		return nil, historyErr
	}

	return candles, nil
}

func (fce *fakeCandleExchange) CandlesTicker(
	ctx context.Context,
	filter *CandleFilter,
) (<-chan *CandleTick, <-chan error) {
	fce.mutex.Lock()
	defer fce.mutex.Unlock()

	stream := &fakeCandleStream{
		ctx:   ctx,
		ticks: make(chan *CandleTick, 16),
		errs:  make(chan error, 1),
	}

	fce.streams[filter.String()] = stream

	if fce.streamErr != nil {
		stream.errs <- fce.streamErr
		close(stream.errs)
		close(stream.ticks)
	}

	return stream.ticks, stream.errs
}

func (fce *fakeCandleExchange) stream(filter *CandleFilter) *fakeCandleStream {
	fce.mutex.Lock()
	defer fce.mutex.Unlock()

	return fce.streams[filter.String()]
}

func (fce *fakeCandleExchange) requestCount() int {
	fce.mutex.Lock()
	defer fce.mutex.Unlock()

	return len(fce.requests)
}

func candle(openTime int64, closePrice string) *Candle {
	price := decimal.RequireFromString(closePrice)

	return &Candle{
		OpenTime:   time.Unix(openTime, 0),
		OpenPrice:  price,
		MaxPrice:   price,
		MinPrice:   price,
		ClosePrice: price,
	}
}

func candleTick(
	filter *CandleFilter,
	openTime int64,
	closePrice string,
) *CandleTick {
	return &CandleTick{
		Candle:   candle(openTime, closePrice),
		Pair:     filter.Pair,
		Interval: filter.Interval,
		TickTime: time.Unix(openTime, 0),
	}
}

func openTimes(candles []*Candle) []int64 {
	times := make([]int64, len(candles))
	for index, candle := range candles {
		times[index] = candle.OpenTime.Unix()
	}

	return times
}

func assertOpenTimes(t *testing.T, expected []int64, candles []*Candle) {
	t.Helper()

	actual := openTimes(candles)

	if len(expected) != len(actual) {
		t.Fatalf(
			"unexpected candles count\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			expected,
			actual,
		)
	}

	for index := range expected {
		if expected[index] != actual[index] {
			t.Errorf(
				"unexpected open times\n"+
					"expected: [%v]\n"+
					"actual:   [%v]",
				expected,
				actual,
			)
			return
		}
	}
}

func assertDecimal(t *testing.T, name string, expected string, actual decimal.Decimal) {
	t.Helper()

	if !decimal.RequireFromString(expected).Equal(actual) {
		t.Errorf(
			"unexpected %v\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			name,
			expected,
			actual,
		)
	}
}
