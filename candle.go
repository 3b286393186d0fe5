package dashboard

import (
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"sort"
	"strings"
	"time"
)

const (
	DefaultCandleInterval = "1h"
	CandleHistoryLimit    = 1000
)

// CandleIntervals lists the intervals the chart can be switched to.
var CandleIntervals = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

var (
	ErrInvalidFilter    = errors.New("invalid candle filter")
	ErrCandleOutOfOrder = errors.New("candle is older than the last one")
)

type Candle struct {
	OpenTime   time.Time
	OpenPrice  decimal.Decimal
	MaxPrice   decimal.Decimal
	MinPrice   decimal.Decimal
	ClosePrice decimal.Decimal
}

func (c *Candle) Equal(other *Candle) bool {
	return c.OpenTime.Equal(other.OpenTime)
}

func (c *Candle) String() string {
	return fmt.Sprintf(
		"time: %v, price: %v",
		c.OpenTime.UTC().Format(time.RFC3339),
		c.ClosePrice,
	)
}

type CandleTick struct {
	*Candle
	Pair     string
	Interval string
	TickTime time.Time
}

func (ct *CandleTick) String() string {
	return fmt.Sprintf("%v@%v %v", ct.Pair, ct.Interval, ct.Candle.String())
}

type CandleFilter struct {
	Pair     string
	Interval string
	Limit    int
}

func NewCandleFilter(pair, interval string) *CandleFilter {
	return &CandleFilter{
		Pair:     strings.ToUpper(pair),
		Interval: interval,
		Limit:    CandleHistoryLimit,
	}
}

func (cf *CandleFilter) Validate() error {
	if len(cf.Pair) == 0 {
		return fmt.Errorf("%w: pair must be set", ErrInvalidFilter)
	}

	for _, interval := range CandleIntervals {
		if cf.Interval == interval {
			return nil
		}
	}

	return fmt.Errorf(
		"%w: unsupported interval [%v]",
		ErrInvalidFilter,
		cf.Interval,
	)
}

func (cf *CandleFilter) Equal(other *CandleFilter) bool {
	if cf == nil || other == nil {
		return cf == other
	}

	return cf.Pair == other.Pair && cf.Interval == other.Interval
}

// Matches tells whether the tick was produced for this filter.
func (cf *CandleFilter) Matches(tick *CandleTick) bool {
	return strings.EqualFold(cf.Pair, tick.Pair) && cf.Interval == tick.Interval
}

func (cf *CandleFilter) String() string {
	return fmt.Sprintf("%v@%v", cf.Pair, cf.Interval)
}

type MergeResult int

const (
	MergeAppended MergeResult = iota
	MergeReplaced
)

func (mr MergeResult) String() string {
	if mr == MergeReplaced {
		return "replaced"
	}

	return "appended"
}

// CandleSeries is an ordered sequence of candles keyed by open time.
// It is not safe for concurrent use.
type CandleSeries struct {
	candles []*Candle
}

// NewCandleSeries builds a series out of a history snapshot. Candles are
// sorted ascending by open time and a later record with the same open time
// wins over an earlier one.
func NewCandleSeries(candles ...*Candle) *CandleSeries {
	sorted := make([]*Candle, len(candles))
	copy(sorted, candles)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	series := &CandleSeries{candles: make([]*Candle, 0, len(sorted))}

	for _, candle := range sorted {
		last := series.Last()

		if last != nil && last.Equal(candle) {
			series.candles[len(series.candles)-1] = candle
			continue
		}

		series.candles = append(series.candles, candle)
	}

	return series
}

// Merge replaces the last candle when the open times match and appends
// the candle when it is newer than the last one.
func (cs *CandleSeries) Merge(candle *Candle) (MergeResult, error) {
	last := cs.Last()

	if last != nil && last.Equal(candle) {
		cs.candles[len(cs.candles)-1] = candle
		return MergeReplaced, nil
	}

	if last != nil && candle.OpenTime.Before(last.OpenTime) {
		return 0, fmt.Errorf(
			"%w: [%v] is before [%v]",
			ErrCandleOutOfOrder,
			candle.OpenTime.UTC().Format(time.RFC3339),
			last.OpenTime.UTC().Format(time.RFC3339),
		)
	}

	cs.candles = append(cs.candles, candle)

	return MergeAppended, nil
}

func (cs *CandleSeries) Last() *Candle {
	if len(cs.candles) == 0 {
		return nil
	}

	return cs.candles[len(cs.candles)-1]
}

func (cs *CandleSeries) Len() int {
	return len(cs.candles)
}

func (cs *CandleSeries) Candles() []*Candle {
	snapshot := make([]*Candle, len(cs.candles))
	copy(snapshot, cs.candles)

	return snapshot
}
