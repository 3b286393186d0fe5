package main

import (
	"context"
	"fmt"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	"github.com/lukasz-zimnoch/dexly/dashboard/binance"
	"github.com/lukasz-zimnoch/dexly/dashboard/coingecko"
	"github.com/lukasz-zimnoch/dexly/dashboard/logrus"
	"github.com/lukasz-zimnoch/dexly/dashboard/techan"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	ctx, cancelCtx := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancelCtx()

	config, err := readConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "could not read config: [%v]", err)
		os.Exit(1)
	}

	logger, err := logrus.ConfigureLogger(
		os.Stderr,
		config.Logging.Format,
		config.Logging.Level,
	)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "could not configure logger: [%v]", err)
		os.Exit(1)
	}

	exchangeService := binance.NewExchangeService(
		logger,
		&binance.Config{
			RestURL:   config.Binance.RestURL,
			StreamURL: config.Binance.StreamURL,
		},
	)

	tokenLookup := dashboard.NewTokenLookup(
		logger,
		coingecko.NewClient(&coingecko.Config{
			URL:     config.CoinGecko.URL,
			Timeout: time.Duration(config.CoinGecko.TimeoutSeconds) * time.Second,
		}),
	)

	overlay := techan.NewChartOverlay(config.Chart.EMAWindow)
	out := newTerminal(os.Stdout, overlay)

	tickerAggregator := dashboard.RunTickerAggregator(
		ctx,
		logger,
		exchangeService,
		config.Binance.Symbols,
		out.renderTicker,
	)

	candleSynchronizer, err := dashboard.RunCandleSynchronizer(
		ctx,
		logger,
		exchangeService,
		config.chartFilter(),
		out.renderChart,
	)
	if err != nil {
		logger.Fatalf("could not run candle synchronizer: [%v]", err)
	}

	processor := &commandProcessor{
		logger:  logger,
		chart:   candleSynchronizer,
		table:   tickerAggregator,
		lookup:  tokenLookup,
		overlay: overlay,
		out:     out,
	}

	go func() {
		processor.run(ctx, os.Stdin)
		cancelCtx()
	}()

	out.println(usage)

	for {
		select {
		case err := <-tickerAggregator.ErrChan():
			logger.Errorf("ticker aggregator stopped: [%v]", err)
		case err := <-candleSynchronizer.ErrChan():
			logger.Warningf("candle synchronizer lost its stream: [%v]", err)
		case <-ctx.Done():
			<-tickerAggregator.Done()
			<-candleSynchronizer.Done()
			logger.Infof("dashboard stopped")
			return
		}
	}
}
