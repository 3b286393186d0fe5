package main

import (
	"fmt"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	"github.com/lukasz-zimnoch/dexly/dashboard/techan"
	"io"
	"strings"
	"sync"
	"time"
)

// terminal renders the market table and the chart header. Both components
// notify it from their own goroutines so writes are serialized.
type terminal struct {
	outMutex sync.Mutex
	out      io.Writer

	overlay *techan.ChartOverlay
}

func newTerminal(out io.Writer, overlay *techan.ChartOverlay) *terminal {
	return &terminal{
		out:     out,
		overlay: overlay,
	}
}

func (t *terminal) renderTicker(entry *dashboard.TickerEntry) {
	t.println(formatTickerRow(entry))
}

func (t *terminal) renderChart(snapshot *dashboard.CandleSnapshot) {
	t.println(formatChartHeader(snapshot, t.overlay))
}

func (t *terminal) println(line string) {
	t.outMutex.Lock()
	defer t.outMutex.Unlock()

	_, _ = fmt.Fprintln(t.out, line)
}

func formatTickerRow(entry *dashboard.TickerEntry) string {
	direction := entry.TickDirection()

	return strings.TrimSpace(fmt.Sprintf(
		"%-10s %16s %-1s %8s",
		dashboard.PairLabel(entry.Symbol),
		dashboard.FormatPrice(entry.LastPrice, entry.Symbol),
		direction.Arrow(),
		dashboard.FormatChange(entry.ChangePercent),
	))
}

func formatChartHeader(
	snapshot *dashboard.CandleSnapshot,
	overlay *techan.ChartOverlay,
) string {
	header := fmt.Sprintf(
		"[%v %v] %v",
		snapshot.Filter.Pair,
		snapshot.Filter.Interval,
		snapshot.State,
	)

	if !snapshot.HasPrice {
		return header + " loading..."
	}

	header = fmt.Sprintf(
		"%v %v %v candles=%v",
		header,
		dashboard.FormatUSD(snapshot.CurrentPrice),
		snapshot.PriceDirection().Arrow(),
		len(snapshot.Candles),
	)

	if last := snapshot.LastCandle(); last != nil {
		header = fmt.Sprintf(
			"%v last=%v",
			header,
			last.OpenTime.UTC().Format(time.RFC3339),
		)
	}

	if overlay != nil {
		if ema, ok := overlay.EMA(snapshot.Candles); ok {
			header = fmt.Sprintf(
				"%v ema(%v)=%v",
				header,
				overlay.Window(),
				dashboard.FormatUSD(ema),
			)
		}
	}

	return header
}
