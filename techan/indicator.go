package techan

import (
	"fmt"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	techanbig "github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
	"github.com/shopspring/decimal"
	"strings"
)

const DefaultEMAWindow = 50

// pricePlaces matches the price precision of the exchange.
const pricePlaces = 8

// ChartOverlay computes moving averages over a synchronized candle series.
type ChartOverlay struct {
	window int
}

func NewChartOverlay(window int) *ChartOverlay {
	if window <= 0 {
		window = DefaultEMAWindow
	}

	return &ChartOverlay{window: window}
}

func (co *ChartOverlay) Window() int {
	return co.window
}

// EMA returns the exponential moving average of close prices at the last
// candle. The second value is false when the series is shorter than the
// window.
func (co *ChartOverlay) EMA(candles []*dashboard.Candle) (decimal.Decimal, bool) {
	if len(candles) < co.window {
		return decimal.Zero, false
	}

	series := toTimeSeries(candles)
	ema := techan.NewEMAIndicator(techan.NewClosePriceIndicator(series), co.window)

	return toDecimal(ema.Calculate(series.LastIndex())), true
}

// Describe renders the last close prices and their average, e.g. for logs.
func (co *ChartOverlay) Describe(candles []*dashboard.Candle) string {
	if len(candles) < co.window {
		return fmt.Sprintf("ema(%v)=n/a", co.window)
	}

	series := toTimeSeries(candles)
	price := techan.NewClosePriceIndicator(series)
	ema := techan.NewEMAIndicator(price, co.window)
	lastIndex := series.LastIndex()

	components := make([]string, 0)
	for _, index := range []int{lastIndex, lastIndex - 1} {
		if index < 0 {
			continue
		}

		components = append(
			components,
			fmt.Sprintf(
				"%v=%v/%v",
				index,
				price.Calculate(index).FormattedString(2),
				ema.Calculate(index).FormattedString(2),
			),
		)
	}

	return fmt.Sprintf("ema(%v) %v", co.window, strings.Join(components, " "))
}

func toTimeSeries(candles []*dashboard.Candle) *techan.TimeSeries {
	series := techan.NewTimeSeries()

	for _, candle := range candles {
		series.AddCandle(toTechanCandle(candle))
	}

	return series
}

func toTechanCandle(candle *dashboard.Candle) *techan.Candle {
	period := techan.TimePeriod{
		Start: candle.OpenTime,
		End:   candle.OpenTime,
	}

	techanCandle := techan.NewCandle(period)

	techanCandle.OpenPrice = techanbig.NewFromString(candle.OpenPrice.String())
	techanCandle.ClosePrice = techanbig.NewFromString(candle.ClosePrice.String())
	techanCandle.MaxPrice = techanbig.NewFromString(candle.MaxPrice.String())
	techanCandle.MinPrice = techanbig.NewFromString(candle.MinPrice.String())

	return techanCandle
}

// toDecimal keeps the full precision of the indicator value. String of
// techanbig.Decimal keeps ten significant digits and Float goes through
// float64, MarshalJSON renders the underlying big.Float exactly.
func toDecimal(value techanbig.Decimal) decimal.Decimal {
	text, err := value.MarshalJSON()
	if err == nil {
		converted, err := decimal.NewFromString(strings.Trim(string(text), `"`))
		if err == nil {
			return converted.Round(pricePlaces)
		}
	}

	return decimal.NewFromFloat(value.Float()).Round(pricePlaces)
}
