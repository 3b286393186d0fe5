package main

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	"github.com/lukasz-zimnoch/dexly/dashboard/binance"
	"github.com/lukasz-zimnoch/dexly/dashboard/coingecko"
	"github.com/lukasz-zimnoch/dexly/dashboard/techan"
	"github.com/sherifabdlnaby/configuro"
)

// Config values can be set using either environment variables with `CONFIG_`
// prefix or config.yml file placed in working directory. Variables from an
// optional .env file are loaded first.
// See https://github.com/sherifabdlnaby/configuro.
type Config struct {
	Logging   Logging
	Binance   Binance
	Chart     Chart
	CoinGecko CoinGecko
}

type Logging struct {
	Level  string
	Format string
}

type Binance struct {
	RestURL   string
	StreamURL string
	Symbols   []string
}

type Chart struct {
	Symbol       string
	Interval     string
	HistoryLimit int
	EMAWindow    int
}

type CoinGecko struct {
	URL            string
	TimeoutSeconds int
}

func readConfig() (*Config, error) {
	_ = godotenv.Load()

	loader, err := configuro.NewConfig()
	if err != nil {
		return nil, err
	}

	// Default config values.
	config := &Config{
		Logging: Logging{
			Level: "info",
		},
		Binance: Binance{
			RestURL:   binance.DefaultRestURL,
			StreamURL: binance.DefaultStreamURL,
			Symbols:   dashboard.DefaultTickerSymbols,
		},
		Chart: Chart{
			Symbol:       "BTCUSDT",
			Interval:     dashboard.DefaultCandleInterval,
			HistoryLimit: dashboard.CandleHistoryLimit,
			EMAWindow:    techan.DefaultEMAWindow,
		},
		CoinGecko: CoinGecko{
			URL:            coingecko.DefaultURL,
			TimeoutSeconds: 30,
		},
	}

	err = loader.Load(config)
	if err != nil {
		return nil, err
	}

	err = loader.Validate(config)
	if err != nil {
		return nil, err
	}

	if len(config.Binance.Symbols) == 0 {
		return nil, fmt.Errorf("at least one ticker symbol must be configured")
	}

	if err := config.chartFilter().Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) chartFilter() *dashboard.CandleFilter {
	filter := dashboard.NewCandleFilter(c.Chart.Symbol, c.Chart.Interval)

	if c.Chart.HistoryLimit > 0 &&
		c.Chart.HistoryLimit < dashboard.CandleHistoryLimit {
		filter.Limit = c.Chart.HistoryLimit
	}

	return filter
}
