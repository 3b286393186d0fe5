package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func awaitSnapshot(
	t *testing.T,
	snapshots <-chan *CandleSnapshot,
	condition func(snapshot *CandleSnapshot) bool,
) *CandleSnapshot {
	t.Helper()

	timeout := time.After(awaitTimeout)

	for {
		select {
		case snapshot := <-snapshots:
			if condition(snapshot) {
				return snapshot
			}
		case <-timeout:
			t.Fatal("timeout while waiting for candle snapshot")
			return nil
		}
	}
}

func TestCandleSynchronizer_HistoryThenTicks(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	filter := NewCandleFilter("BTCUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.setHistory(filter, candle(100, "1"), candle(200, "2"))

	synchronizer := newCandleSynchronizer(nopLogger{}, exchange, nil)
	synchronizer.subscribe(ctx, filter)

	if state := synchronizer.State(); state != SyncFetchingHistory {
		t.Errorf(
			"unexpected state\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			SyncFetchingHistory,
			state,
		)
	}

	synchronizer.applyHistory(<-synchronizer.historyChan)

	snapshot := synchronizer.Snapshot()
	if snapshot.State != SyncStreaming {
		t.Errorf(
			"unexpected state\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			SyncStreaming,
			snapshot.State,
		)
	}
	assertOpenTimes(t, []int64{100, 200}, snapshot.Candles)
	assertDecimal(t, "current price", "2", snapshot.CurrentPrice)
	assertDecimal(t, "previous price", "2", snapshot.PreviousPrice)

	synchronizer.applyTick(synchronizer.subscription, candleTick(filter, 200, "2.5"))

	snapshot = synchronizer.Snapshot()
	assertOpenTimes(t, []int64{100, 200}, snapshot.Candles)
	assertDecimal(t, "last close price", "2.5", snapshot.LastCandle().ClosePrice)
	assertDecimal(t, "current price", "2.5", snapshot.CurrentPrice)
	assertDecimal(t, "previous price", "2", snapshot.PreviousPrice)

	if direction := snapshot.PriceDirection(); direction != DirectionUp {
		t.Errorf(
			"unexpected direction\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			DirectionUp,
			direction,
		)
	}

	synchronizer.applyTick(synchronizer.subscription, candleTick(filter, 300, "1.5"))

	snapshot = synchronizer.Snapshot()
	assertOpenTimes(t, []int64{100, 200, 300}, snapshot.Candles)
	assertDecimal(t, "current price", "1.5", snapshot.CurrentPrice)
	assertDecimal(t, "previous price", "2.5", snapshot.PreviousPrice)

	if direction := snapshot.PriceDirection(); direction != DirectionDown {
		t.Errorf(
			"unexpected direction\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			DirectionDown,
			direction,
		)
	}
}

func TestCandleSynchronizer_TicksBufferedWhileFetchingHistory(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	filter := NewCandleFilter("BTCUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.setHistory(filter, candle(100, "1"), candle(200, "2"))

	synchronizer := newCandleSynchronizer(nopLogger{}, exchange, nil)
	synchronizer.subscribe(ctx, filter)

	synchronizer.applyTick(synchronizer.subscription, candleTick(filter, 200, "2.2"))
	synchronizer.applyTick(synchronizer.subscription, candleTick(filter, 300, "3"))

	if candles := synchronizer.Snapshot().Candles; len(candles) != 0 {
		t.Errorf(
			"ticks must not be merged before history\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			0,
			len(candles),
		)
	}

	synchronizer.applyHistory(<-synchronizer.historyChan)

	snapshot := synchronizer.Snapshot()
	assertOpenTimes(t, []int64{100, 200, 300}, snapshot.Candles)
	assertDecimal(t, "merged close price", "2.2", snapshot.Candles[1].ClosePrice)
	assertDecimal(t, "current price", "3", snapshot.CurrentPrice)
	assertDecimal(t, "previous price", "2.2", snapshot.PreviousPrice)

	if len(synchronizer.pendingTicks) != 0 {
		t.Errorf(
			"unexpected pending ticks count\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			0,
			len(synchronizer.pendingTicks),
		)
	}
}

func TestCandleSynchronizer_HistoryFailure(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	filter := NewCandleFilter("BTCUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.historyErr = errors.New("service unavailable")

	synchronizer := newCandleSynchronizer(nopLogger{}, exchange, nil)
	synchronizer.subscribe(ctx, filter)
	synchronizer.applyHistory(<-synchronizer.historyChan)

	snapshot := synchronizer.Snapshot()
	if snapshot.State != SyncStreaming {
		t.Errorf(
			"unexpected state\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			SyncStreaming,
			snapshot.State,
		)
	}

	if len(snapshot.Candles) != 0 || snapshot.HasPrice {
		t.Errorf("series must stay empty after history failure")
	}

	synchronizer.applyTick(synchronizer.subscription, candleTick(filter, 100, "5"))

	snapshot = synchronizer.Snapshot()
	assertOpenTimes(t, []int64{100}, snapshot.Candles)
	assertDecimal(t, "current price", "5", snapshot.CurrentPrice)
	assertDecimal(t, "previous price", "5", snapshot.PreviousPrice)

	if direction := snapshot.PriceDirection(); direction != DirectionFlat {
		t.Errorf(
			"unexpected direction\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			DirectionFlat,
			direction,
		)
	}
}

func TestCandleSynchronizer_OutOfOrderTickDropped(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	filter := NewCandleFilter("BTCUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.setHistory(filter, candle(100, "1"), candle(200, "2"))

	notifications := 0
	synchronizer := newCandleSynchronizer(
		nopLogger{},
		exchange,
		func(snapshot *CandleSnapshot) { notifications++ },
	)
	synchronizer.subscribe(ctx, filter)
	synchronizer.applyHistory(<-synchronizer.historyChan)

	notificationsBefore := notifications

	synchronizer.applyTick(synchronizer.subscription, candleTick(filter, 100, "9"))

	snapshot := synchronizer.Snapshot()
	assertOpenTimes(t, []int64{100, 200}, snapshot.Candles)
	assertDecimal(t, "first close price", "1", snapshot.Candles[0].ClosePrice)
	assertDecimal(t, "current price", "2", snapshot.CurrentPrice)

	if notifications != notificationsBefore {
		t.Errorf(
			"dropped tick must not notify listener\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			notificationsBefore,
			notifications,
		)
	}
}

func TestCandleSynchronizer_StaleResultsDiscarded(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	oldFilter := NewCandleFilter("BTCUSDT", "1h")
	newFilter := NewCandleFilter("ETHUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.setHistory(oldFilter, candle(100, "1"), candle(200, "2"))
	exchange.setHistory(newFilter, candle(1000, "10"))

	synchronizer := newCandleSynchronizer(nopLogger{}, exchange, nil)

	synchronizer.subscribe(ctx, oldFilter)
	oldSubscription := synchronizer.subscription
	oldHistory := <-synchronizer.historyChan

	synchronizer.subscribe(ctx, newFilter)
	newHistory := <-synchronizer.historyChan

	if oldSubscription.Active() {
		t.Error("previous subscription must be closed")
	}

	synchronizer.applyHistory(newHistory)
	synchronizer.applyHistory(oldHistory)
	synchronizer.applyTick(oldSubscription, candleTick(oldFilter, 300, "3"))
	synchronizer.applyTick(synchronizer.subscription, candleTick(oldFilter, 2000, "3"))

	snapshot := synchronizer.Snapshot()
	assertOpenTimes(t, []int64{1000}, snapshot.Candles)
	assertDecimal(t, "current price", "10", snapshot.CurrentPrice)

	if snapshot.Filter.Pair != newFilter.Pair {
		t.Errorf(
			"unexpected pair\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			newFilter.Pair,
			snapshot.Filter.Pair,
		)
	}
}

func TestCandleSynchronizer_StreamTermination(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	filter := NewCandleFilter("BTCUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.setHistory(filter, candle(100, "1"))

	synchronizer := newCandleSynchronizer(nopLogger{}, exchange, nil)
	synchronizer.subscribe(ctx, filter)
	synchronizer.applyHistory(<-synchronizer.historyChan)

	subscription := synchronizer.subscription

	synchronizer.terminateStream(errors.New("connection reset"))

	if state := synchronizer.State(); state != SyncIdle {
		t.Errorf(
			"unexpected state\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			SyncIdle,
			state,
		)
	}

	if subscription.Active() {
		t.Error("subscription must be closed after stream termination")
	}

	select {
	case err := <-synchronizer.ErrChan():
		if err == nil {
			t.Error("stream error must be reported")
		}
	default:
		t.Error("stream error must be reported")
	}

	synchronizer.applyTick(subscription, candleTick(filter, 200, "2"))

	assertOpenTimes(t, []int64{100}, synchronizer.Snapshot().Candles)
}

func TestCandleSynchronizer_StreamTerminationWhileFetchingHistory(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	filter := NewCandleFilter("BTCUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.setHistory(filter, candle(100, "1"), candle(200, "2"), candle(300, "3"))

	synchronizer := newCandleSynchronizer(nopLogger{}, exchange, nil)
	synchronizer.subscribe(ctx, filter)

	subscription := synchronizer.subscription
	stream := exchange.stream(filter)

	synchronizer.applyTick(subscription, candleTick(filter, 300, "3.5"))
	synchronizer.terminateStream(errors.New("connection refused"))

	if state := synchronizer.State(); state != SyncFetchingHistory {
		t.Errorf(
			"unexpected state\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			SyncFetchingHistory,
			state,
		)
	}

	if !subscription.Active() {
		t.Error("subscription must stay open until the history arrives")
	}

	if stream.ctx.Err() == nil {
		t.Error("stream context must be cancelled")
	}

	synchronizer.applyHistory(<-synchronizer.historyChan)

	snapshot := synchronizer.Snapshot()
	if snapshot.State != SyncIdle {
		t.Errorf(
			"unexpected state\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			SyncIdle,
			snapshot.State,
		)
	}
	assertOpenTimes(t, []int64{100, 200, 300}, snapshot.Candles)
	assertDecimal(t, "current price", "3.5", snapshot.CurrentPrice)

	if subscription.Active() {
		t.Error("subscription must be closed once the history is applied")
	}
}

func TestRunCandleSynchronizer_StreamFailureKeepsHistory(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	filter := NewCandleFilter("BTCUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.setHistory(filter, candle(100, "1"), candle(200, "2"), candle(300, "3"))
	exchange.historyDelay = 50 * time.Millisecond
	exchange.streamErr = errors.New("connection refused")

	snapshots := make(chan *CandleSnapshot, 256)

	synchronizer, err := RunCandleSynchronizer(
		ctx,
		nopLogger{},
		exchange,
		filter,
		func(snapshot *CandleSnapshot) { snapshots <- snapshot },
	)
	if err != nil {
		t.Fatal(err)
	}

	snapshot := awaitSnapshot(t, snapshots, func(snapshot *CandleSnapshot) bool {
		return snapshot.State == SyncIdle
	})
	assertOpenTimes(t, []int64{100, 200, 300}, snapshot.Candles)
	assertDecimal(t, "current price", "3", snapshot.CurrentPrice)

	select {
	case err := <-synchronizer.ErrChan():
		if !errors.Is(err, exchange.streamErr) {
			t.Errorf(
				"unexpected error\n"+
					"expected: [%v]\n"+
					"actual:   [%v]",
				exchange.streamErr,
				err,
			)
		}
	case <-time.After(awaitTimeout):
		t.Fatal("timeout while waiting for stream error")
	}
}

func TestCandleSynchronizer_SetFilterFromListener(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	btcFilter := NewCandleFilter("BTCUSDT", "1h")
	ethFilter := NewCandleFilter("ETHUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.setHistory(btcFilter, candle(100, "1"))
	exchange.setHistory(ethFilter, candle(1000, "10"))

	snapshots := make(chan *CandleSnapshot, 256)
	setFilterErrs := make(chan error, 1)

	var switchOnce sync.Once
	var synchronizer *CandleSynchronizer

	synchronizer = newCandleSynchronizer(
		nopLogger{},
		exchange,
		func(snapshot *CandleSnapshot) {
			if snapshot.Filter.Pair == btcFilter.Pair &&
				snapshot.State == SyncStreaming {
				switchOnce.Do(func() {
					setFilterErrs <- synchronizer.SetFilter(ethFilter)
				})
			}

			snapshots <- snapshot
		},
	)

	go synchronizer.loop(ctx, btcFilter)

	snapshot := awaitSnapshot(t, snapshots, func(snapshot *CandleSnapshot) bool {
		return snapshot.Filter.Pair == ethFilter.Pair &&
			snapshot.State == SyncStreaming
	})
	assertOpenTimes(t, []int64{1000}, snapshot.Candles)

	if err := <-setFilterErrs; err != nil {
		t.Fatal(err)
	}
}

func TestRunCandleSynchronizer_InvalidFilter(t *testing.T) {
	_, err := RunCandleSynchronizer(
		context.Background(),
		nopLogger{},
		newFakeCandleExchange(),
		NewCandleFilter("BTCUSDT", "7m"),
		nil,
	)

	if !errors.Is(err, ErrInvalidFilter) {
		t.Errorf(
			"unexpected error\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			ErrInvalidFilter,
			err,
		)
	}
}

func TestRunCandleSynchronizer(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	btcFilter := NewCandleFilter("BTCUSDT", "1h")
	ethFilter := NewCandleFilter("ETHUSDT", "1h")

	exchange := newFakeCandleExchange()
	exchange.setHistory(btcFilter, candle(100, "1"), candle(200, "2"))
	exchange.setHistory(ethFilter, candle(1000, "10"))

	snapshots := make(chan *CandleSnapshot, 256)

	synchronizer, err := RunCandleSynchronizer(
		ctx,
		nopLogger{},
		exchange,
		btcFilter,
		func(snapshot *CandleSnapshot) { snapshots <- snapshot },
	)
	if err != nil {
		t.Fatal(err)
	}

	awaitSnapshot(t, snapshots, func(snapshot *CandleSnapshot) bool {
		return snapshot.State == SyncStreaming && len(snapshot.Candles) == 2
	})

	btcStream := exchange.stream(btcFilter)
	btcStream.ticks <- candleTick(btcFilter, 300, "3")

	snapshot := awaitSnapshot(t, snapshots, func(snapshot *CandleSnapshot) bool {
		return len(snapshot.Candles) == 3
	})
	assertDecimal(t, "current price", "3", snapshot.CurrentPrice)

	// The same filter must not restart the active subscription.
	if err := synchronizer.SetFilter(NewCandleFilter("btcusdt", "1h")); err != nil {
		t.Fatal(err)
	}

	if err := synchronizer.SetFilter(ethFilter); err != nil {
		t.Fatal(err)
	}

	snapshot = awaitSnapshot(t, snapshots, func(snapshot *CandleSnapshot) bool {
		return snapshot.Filter.Pair == ethFilter.Pair &&
			snapshot.State == SyncStreaming
	})
	assertOpenTimes(t, []int64{1000}, snapshot.Candles)

	if btcStream.ctx.Err() == nil {
		t.Error("previous stream context must be cancelled")
	}

	if count := exchange.requestCount(); count != 2 {
		t.Errorf(
			"unexpected history requests count\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			2,
			count,
		)
	}

	exchange.stream(ethFilter).errs <- errors.New("connection reset")

	snapshot = awaitSnapshot(t, snapshots, func(snapshot *CandleSnapshot) bool {
		return snapshot.State == SyncIdle
	})
	assertOpenTimes(t, []int64{1000}, snapshot.Candles)

	select {
	case err := <-synchronizer.ErrChan():
		if err == nil {
			t.Error("stream error must be reported")
		}
	case <-time.After(awaitTimeout):
		t.Fatal("timeout while waiting for stream error")
	}

	// The same filter restarts an idle synchronizer.
	if err := synchronizer.SetFilter(ethFilter); err != nil {
		t.Fatal(err)
	}

	awaitSnapshot(t, snapshots, func(snapshot *CandleSnapshot) bool {
		return snapshot.State == SyncStreaming
	})

	cancelCtx()

	select {
	case <-synchronizer.Done():
	case <-time.After(awaitTimeout):
		t.Fatal("timeout while waiting for synchronizer to stop")
	}

	if err := synchronizer.SetFilter(btcFilter); !errors.Is(err, ErrSynchronizerStopped) {
		t.Errorf(
			"unexpected error\n"+
				"expected: [%v]\n"+
				"actual:   [%v]",
			ErrSynchronizerStopped,
			err,
		)
	}
}

func TestCandleSynchronizer_HistoryRoundTrip(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	filter := NewCandleFilter("BTCUSDT", "1h")

	history := make([]*Candle, CandleHistoryLimit)
	expected := make([]int64, CandleHistoryLimit)
	for index := range history {
		openTime := int64(index+1) * 3600
		history[index] = candle(openTime, "1")
		expected[index] = openTime
	}

	exchange := newFakeCandleExchange()
	exchange.setHistory(filter, history...)

	synchronizer := newCandleSynchronizer(nopLogger{}, exchange, nil)
	synchronizer.subscribe(ctx, filter)
	synchronizer.applyHistory(<-synchronizer.historyChan)

	candles := synchronizer.Snapshot().Candles
	assertOpenTimes(t, expected, candles)

	for index := range candles {
		if candles[index] != history[index] {
			t.Fatalf("candle [%v] differs from the history", index)
		}
	}
}
