package dashboard

import (
	"context"
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"sync"
)

var ErrSynchronizerStopped = errors.New("candle synchronizer is stopped")

type SyncState int

const (
	SyncIdle SyncState = iota
	SyncFetchingHistory
	SyncStreaming
)

func (ss SyncState) String() string {
	switch ss {
	case SyncFetchingHistory:
		return "fetching-history"
	case SyncStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

type CandleSnapshot struct {
	Filter        CandleFilter
	State         SyncState
	Candles       []*Candle
	CurrentPrice  decimal.Decimal
	PreviousPrice decimal.Decimal
	HasPrice      bool
}

func (cs *CandleSnapshot) PriceDirection() Direction {
	return PriceDirection(cs.CurrentPrice, cs.PreviousPrice)
}

func (cs *CandleSnapshot) LastCandle() *Candle {
	if len(cs.Candles) == 0 {
		return nil
	}

	return cs.Candles[len(cs.Candles)-1]
}

// CandleListener is notified from the synchronizer goroutine after every
// change of the series. The listener blocks the synchronizer while it runs.
// It may call SetFilter, the new filter is applied once the listener
// returns.
type CandleListener func(snapshot *CandleSnapshot)

type historyResult struct {
	subscription *Subscription
	candles      []*Candle
	err          error
}

// CandleSynchronizer keeps a candle series of a single pair and interval
// consistent with the exchange: the series is seeded with a history
// snapshot and then updated by the candle stream.
//
// All state changes happen on the synchronizer goroutine. Any history
// result or candle tick which was not issued for the active subscription
// is discarded. The history request lives as long as the subscription, the
// stream may end earlier without affecting it.
type CandleSynchronizer struct {
	logger   Logger
	exchange ExchangeCandleService
	listener CandleListener

	filterChan  chan *CandleFilter
	historyChan chan *historyResult

	stateMutex    sync.RWMutex
	filter        *CandleFilter
	state         SyncState
	subscription  *Subscription
	series        *CandleSeries
	currentPrice  decimal.Decimal
	previousPrice decimal.Decimal
	hasPrice      bool

	// Owned by the synchronizer goroutine.
	cancelStream context.CancelFunc
	streamActive bool
	tickChan     <-chan *CandleTick
	tickErrChan  <-chan error
	pendingTicks []*CandleTick

	errChan  chan error
	doneChan chan struct{}
}

func RunCandleSynchronizer(
	ctx context.Context,
	logger Logger,
	exchange ExchangeCandleService,
	filter *CandleFilter,
	listener CandleListener,
) (*CandleSynchronizer, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	synchronizer := newCandleSynchronizer(logger, exchange, listener)

	go synchronizer.loop(ctx, filter)

	return synchronizer, nil
}

func newCandleSynchronizer(
	logger Logger,
	exchange ExchangeCandleService,
	listener CandleListener,
) *CandleSynchronizer {
	return &CandleSynchronizer{
		logger:      logger.WithField("component", "candle-synchronizer"),
		exchange:    exchange,
		listener:    listener,
		filterChan:  make(chan *CandleFilter, 1),
		historyChan: make(chan *historyResult),
		series:      NewCandleSeries(),
		errChan:     make(chan error, 1),
		doneChan:    make(chan struct{}),
	}
}

func (cs *CandleSynchronizer) loop(ctx context.Context, filter *CandleFilter) {
	defer close(cs.doneChan)
	defer cs.unsubscribe()

	cs.subscribe(ctx, filter)

	for {
		select {
		case filter := <-cs.filterChan:
			if filter.Equal(cs.filter) && cs.streamActive {
				cs.logger.Debugf("filter [%v] is already active", filter)
				continue
			}

			cs.subscribe(ctx, filter)
		case result := <-cs.historyChan:
			cs.applyHistory(result)
		case tick, ok := <-cs.tickChan:
			if !ok {
				cs.terminateStream(cs.pendingStreamErr())
				continue
			}

			cs.applyTick(cs.subscription, tick)
		case err, ok := <-cs.tickErrChan:
			if !ok {
				cs.tickErrChan = nil
				continue
			}

			cs.terminateStream(err)
		case <-ctx.Done():
			cs.logger.Infof("synchronizer context is done")
			return
		}
	}
}

// SetFilter switches the synchronizer to another pair or interval. It does
// not wait for the synchronizer goroutine: a filter which has not been
// picked up yet is replaced by the newer one.
func (cs *CandleSynchronizer) SetFilter(filter *CandleFilter) error {
	if err := filter.Validate(); err != nil {
		return err
	}

	for {
		select {
		case <-cs.doneChan:
			return ErrSynchronizerStopped
		default:
		}

		select {
		case cs.filterChan <- filter:
			return nil
		default:
		}

		select {
		case superseded := <-cs.filterChan:
			cs.logger.Debugf("filter [%v] superseded by [%v]", superseded, filter)
		default:
		}
	}
}

func (cs *CandleSynchronizer) subscribe(
	ctx context.Context,
	filter *CandleFilter,
) {
	cs.unsubscribe()

	subscription := OpenSubscription(ctx)

	subscriptionLogger := cs.logger.WithFields(
		map[string]interface{}{
			"subscription": subscription.String(),
			"pair":         filter.Pair,
			"interval":     filter.Interval,
		},
	)

	subscriptionLogger.Infof("opening candle subscription")

	cs.stateMutex.Lock()
	cs.filter = filter
	cs.state = SyncFetchingHistory
	cs.subscription = subscription
	cs.series = NewCandleSeries()
	cs.currentPrice = decimal.Zero
	cs.previousPrice = decimal.Zero
	cs.hasPrice = false
	cs.stateMutex.Unlock()

	streamCtx, cancelStream := context.WithCancel(subscription.Context())

	cs.pendingTicks = nil
	cs.cancelStream = cancelStream
	cs.streamActive = true
	cs.tickChan, cs.tickErrChan = cs.exchange.CandlesTicker(streamCtx, filter)

	go cs.fetchHistory(subscription, filter)

	cs.notify()
}

func (cs *CandleSynchronizer) fetchHistory(
	subscription *Subscription,
	filter *CandleFilter,
) {
	candles, err := cs.exchange.Candles(subscription.Context(), filter)

	select {
	case cs.historyChan <- &historyResult{
		subscription: subscription,
		candles:      candles,
		err:          err,
	}:
	case <-subscription.Context().Done():
	}
}

func (cs *CandleSynchronizer) applyHistory(result *historyResult) {
	if !result.subscription.Is(cs.subscription) {
		cs.logger.Debugf(
			"discarding history of stale subscription [%v]",
			result.subscription,
		)
		return
	}

	if cs.State() != SyncFetchingHistory {
		return
	}

	cs.stateMutex.Lock()

	if result.err != nil {
		cs.logger.Errorf(
			"could not fetch candle history for [%v]: [%v]",
			cs.filter,
			result.err,
		)
	} else {
		cs.series = NewCandleSeries(result.candles...)

		if last := cs.series.Last(); last != nil {
			cs.currentPrice = last.ClosePrice
			cs.previousPrice = last.ClosePrice
			cs.hasPrice = true
		}

		cs.logger.Debugf(
			"fetched [%v] historical candles for [%v]",
			cs.series.Len(),
			cs.filter,
		)
	}

	for _, tick := range cs.pendingTicks {
		cs.mergeTick(tick)
	}
	cs.pendingTicks = nil

	streamActive := cs.streamActive
	if streamActive {
		cs.state = SyncStreaming
	} else {
		cs.state = SyncIdle
	}

	cs.stateMutex.Unlock()

	if !streamActive {
		cs.logger.Warningf(
			"candle stream for [%v] ended before the history arrived",
			cs.filter,
		)
		cs.unsubscribe()
	}

	cs.notify()
}

func (cs *CandleSynchronizer) applyTick(
	subscription *Subscription,
	tick *CandleTick,
) {
	if !subscription.Is(cs.subscription) || !cs.filter.Matches(tick) {
		cs.logger.Debugf("discarding stale candle tick [%v]", tick)
		return
	}

	switch cs.State() {
	case SyncFetchingHistory:
		cs.pendingTicks = append(cs.pendingTicks, tick)

		if len(cs.pendingTicks) > CandleHistoryLimit {
			cs.pendingTicks[0] = nil
			cs.pendingTicks = cs.pendingTicks[1:]
		}
	case SyncStreaming:
		cs.stateMutex.Lock()
		merged := cs.mergeTick(tick)
		cs.stateMutex.Unlock()

		if merged {
			cs.notify()
		}
	default:
		cs.logger.Debugf("discarding candle tick [%v] of idle synchronizer", tick)
	}
}

// mergeTick must be called with the state mutex held.
func (cs *CandleSynchronizer) mergeTick(tick *CandleTick) bool {
	result, err := cs.series.Merge(tick.Candle)
	if err != nil {
		cs.logger.Warningf("dropping candle tick [%v]: [%v]", tick, err)
		return false
	}

	cs.logger.Debugf("candle tick [%v] %v", tick, result)

	if cs.hasPrice {
		cs.previousPrice = cs.currentPrice
	} else {
		cs.previousPrice = tick.ClosePrice
	}
	cs.currentPrice = tick.ClosePrice
	cs.hasPrice = true

	return true
}

func (cs *CandleSynchronizer) terminateStream(err error) {
	if err != nil {
		cs.logger.Errorf("candle stream error for [%v]: [%v]", cs.filter, err)

		select {
		case cs.errChan <- fmt.Errorf("candle stream error: [%w]", err):
		default:
		}
	} else {
		cs.logger.Warningf("candle stream for [%v] has been terminated", cs.filter)
	}

	cs.closeStream()

	// The history request still owns the subscription, the state changes
	// once it is applied.
	if cs.State() == SyncFetchingHistory {
		return
	}

	cs.unsubscribe()

	cs.stateMutex.Lock()
	cs.state = SyncIdle
	cs.stateMutex.Unlock()

	cs.notify()
}

func (cs *CandleSynchronizer) pendingStreamErr() error {
	select {
	case err, ok := <-cs.tickErrChan:
		if ok {
			return err
		}
	default:
	}

	return nil
}

func (cs *CandleSynchronizer) closeStream() {
	if cs.cancelStream != nil {
		cs.cancelStream()
		cs.cancelStream = nil
	}

	cs.streamActive = false
	cs.tickChan = nil
	cs.tickErrChan = nil
}

func (cs *CandleSynchronizer) unsubscribe() {
	cs.closeStream()
	cs.pendingTicks = nil

	if cs.subscription != nil {
		cs.subscription.Close()
	}
}

func (cs *CandleSynchronizer) notify() {
	if cs.listener != nil {
		cs.listener(cs.Snapshot())
	}
}

func (cs *CandleSynchronizer) Snapshot() *CandleSnapshot {
	cs.stateMutex.RLock()
	defer cs.stateMutex.RUnlock()

	snapshot := &CandleSnapshot{
		State:         cs.state,
		Candles:       cs.series.Candles(),
		CurrentPrice:  cs.currentPrice,
		PreviousPrice: cs.previousPrice,
		HasPrice:      cs.hasPrice,
	}

	if cs.filter != nil {
		snapshot.Filter = *cs.filter
	}

	return snapshot
}

func (cs *CandleSynchronizer) State() SyncState {
	cs.stateMutex.RLock()
	defer cs.stateMutex.RUnlock()

	return cs.state
}

func (cs *CandleSynchronizer) ErrChan() <-chan error {
	return cs.errChan
}

// Done is closed once the synchronizer released its subscription.
func (cs *CandleSynchronizer) Done() <-chan struct{} {
	return cs.doneChan
}
