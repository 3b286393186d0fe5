package binance

import (
	"github.com/adshao/go-binance"
	"github.com/gorilla/websocket"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	"strings"
	"time"
)

const (
	requestTimeout   = 1 * time.Minute
	handshakeTimeout = 30 * time.Second

	DefaultRestURL   = "https://api.binance.com"
	DefaultStreamURL = "wss://stream.binance.com:9443"
)

type Config struct {
	RestURL   string
	StreamURL string
}

type ExchangeService struct {
	client    *binance.Client
	streamURL string
	dialer    *websocket.Dialer
	logger    dashboard.Logger
}

func NewExchangeService(
	logger dashboard.Logger,
	config *Config,
) *ExchangeService {
	// Market data endpoints do not need credentials.
	client := binance.NewClient("", "")
	if len(config.RestURL) > 0 {
		client.BaseURL = strings.TrimSuffix(config.RestURL, "/")
	}

	streamURL := DefaultStreamURL
	if len(config.StreamURL) > 0 {
		streamURL = strings.TrimSuffix(config.StreamURL, "/")
	}

	return &ExchangeService{
		client:    client,
		streamURL: streamURL,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger.WithField("exchange", "binance"),
	}
}

func (es *ExchangeService) ExchangeName() string {
	return "binance"
}

func parseMilliseconds(milliseconds int64) time.Time {
	return time.Unix(0, milliseconds*int64(time.Millisecond))
}

// parseOpenTime truncates the millisecond open time to whole seconds.
func parseOpenTime(milliseconds int64) time.Time {
	return time.Unix(milliseconds/1000, 0)
}
