package dashboard

import (
	"context"
	"fmt"
	"github.com/shopspring/decimal"
	"strings"
	"sync"
	"time"
)

// DefaultTickerSymbols is the symbol set of the market table.
var DefaultTickerSymbols = []string{
	"BTCUSDT",
	"ETHUSDT",
	"ETHUSDC",
	"BNBUSDT",
	"ETHCTSI",
	"SOLUSDT",
	"XRPUSDT",
	"ADAUSDT",
	"DOGEUSDT",
	"DOTUSDT",
	"TRXUSDT",
	"LTCUSDT",
}

// Ticker is a single update of the running 24h summary of a symbol.
type Ticker struct {
	Symbol        string
	LastPrice     decimal.Decimal
	ChangePercent decimal.Decimal
	EventTime     time.Time
}

func (t *Ticker) String() string {
	return fmt.Sprintf(
		"%v: %v (%v%%)",
		t.Symbol,
		t.LastPrice,
		t.ChangePercent.StringFixed(2),
	)
}

type TickerEntry struct {
	Symbol        string
	LastPrice     decimal.Decimal
	PreviousPrice decimal.Decimal
	ChangePercent decimal.Decimal
	UpdateTime    time.Time
}

// TickDirection compares the last price with the one immediately before it.
func (te *TickerEntry) TickDirection() Direction {
	return PriceDirection(te.LastPrice, te.PreviousPrice)
}

// ChangeDirection is the direction of the 24h change.
func (te *TickerEntry) ChangeDirection() Direction {
	return DirectionOf(te.ChangePercent)
}

// TickerBoard keeps the latest entry of every tracked symbol.
// It is not safe for concurrent use.
type TickerBoard struct {
	symbols []string
	entries map[string]*TickerEntry
}

func NewTickerBoard(symbols []string) *TickerBoard {
	normalized := make([]string, 0, len(symbols))
	entries := make(map[string]*TickerEntry, len(symbols))

	for _, symbol := range symbols {
		symbol = strings.ToUpper(symbol)

		if _, exists := entries[symbol]; exists {
			continue
		}

		normalized = append(normalized, symbol)
		entries[symbol] = nil
	}

	return &TickerBoard{
		symbols: normalized,
		entries: entries,
	}
}

// Apply records the ticker and returns the resulting entry. Tickers of
// symbols which are not tracked by the board are ignored.
func (tb *TickerBoard) Apply(ticker *Ticker) (*TickerEntry, bool) {
	symbol := strings.ToUpper(ticker.Symbol)

	current, tracked := tb.entries[symbol]
	if !tracked {
		return nil, false
	}

	previousPrice := ticker.LastPrice
	if current != nil {
		previousPrice = current.LastPrice
	}

	entry := &TickerEntry{
		Symbol:        symbol,
		LastPrice:     ticker.LastPrice,
		PreviousPrice: previousPrice,
		ChangePercent: ticker.ChangePercent,
		UpdateTime:    ticker.EventTime,
	}

	tb.entries[symbol] = entry

	return entry, true
}

func (tb *TickerBoard) Entry(symbol string) (*TickerEntry, bool) {
	entry := tb.entries[strings.ToUpper(symbol)]
	return entry, entry != nil
}

// Entries returns the known entries in the order the symbols were given.
func (tb *TickerBoard) Entries() []*TickerEntry {
	entries := make([]*TickerEntry, 0, len(tb.symbols))

	for _, symbol := range tb.symbols {
		if entry := tb.entries[symbol]; entry != nil {
			entries = append(entries, entry)
		}
	}

	return entries
}

func (tb *TickerBoard) Symbols() []string {
	symbols := make([]string, len(tb.symbols))
	copy(symbols, tb.symbols)

	return symbols
}

// TickerListener is notified with every entry update, after the entry has
// been recorded.
type TickerListener func(entry *TickerEntry)

type TickerAggregator struct {
	logger   Logger
	exchange ExchangeTickerService
	listener TickerListener

	boardMutex sync.RWMutex
	board      *TickerBoard

	errChan  chan error
	doneChan chan struct{}
}

func RunTickerAggregator(
	ctx context.Context,
	logger Logger,
	exchange ExchangeTickerService,
	symbols []string,
	listener TickerListener,
) *TickerAggregator {
	aggregator := &TickerAggregator{
		logger:   logger.WithField("component", "ticker-aggregator"),
		exchange: exchange,
		listener: listener,
		board:    NewTickerBoard(symbols),
		errChan:  make(chan error, 1),
		doneChan: make(chan struct{}),
	}

	go aggregator.loop(ctx)

	return aggregator
}

func (ta *TickerAggregator) loop(ctx context.Context) {
	defer close(ta.doneChan)

	subscription := OpenSubscription(ctx)
	defer subscription.Close()

	symbols := ta.board.Symbols()

	subscriptionLogger := ta.logger.WithFields(
		map[string]interface{}{
			"subscription": subscription.String(),
			"symbols":      len(symbols),
		},
	)

	subscriptionLogger.Infof("opening ticker stream")
	defer subscriptionLogger.Infof("closing ticker stream")

	tickerChan, tickerErrChan := ta.exchange.MarketTicker(
		subscription.Context(),
		symbols,
	)

	for tickerChan != nil || tickerErrChan != nil {
		select {
		case ticker, ok := <-tickerChan:
			if !ok {
				tickerChan = nil
				continue
			}

			entry, applied := ta.apply(ticker)
			if !applied {
				subscriptionLogger.Debugf(
					"dropping ticker of untracked symbol [%v]",
					ticker.Symbol,
				)
				continue
			}

			if ta.listener != nil {
				ta.listener(entry)
			}
		case err, ok := <-tickerErrChan:
			if !ok {
				tickerErrChan = nil
				continue
			}

			subscriptionLogger.Errorf("ticker stream error: [%v]", err)

			select {
			case ta.errChan <- fmt.Errorf("ticker stream error: [%w]", err):
			default:
			}

			return
		case <-ctx.Done():
			return
		}
	}

	subscriptionLogger.Warningf("ticker stream has been terminated")
}

func (ta *TickerAggregator) apply(ticker *Ticker) (*TickerEntry, bool) {
	ta.boardMutex.Lock()
	defer ta.boardMutex.Unlock()

	return ta.board.Apply(ticker)
}

func (ta *TickerAggregator) Entry(symbol string) (*TickerEntry, bool) {
	ta.boardMutex.RLock()
	defer ta.boardMutex.RUnlock()

	return ta.board.Entry(symbol)
}

func (ta *TickerAggregator) Entries() []*TickerEntry {
	ta.boardMutex.RLock()
	defer ta.boardMutex.RUnlock()

	return ta.board.Entries()
}

func (ta *TickerAggregator) Symbols() []string {
	return ta.board.Symbols()
}

func (ta *TickerAggregator) ErrChan() <-chan error {
	return ta.errChan
}

// Done is closed once the aggregator released its stream.
func (ta *TickerAggregator) Done() <-chan struct{} {
	return ta.doneChan
}
