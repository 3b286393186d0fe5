package binance

import (
	"context"
	"fmt"
	"github.com/gorilla/websocket"
	"github.com/lukasz-zimnoch/dexly/dashboard"
)

// messageHandler processes a single stream message. Returning false stops
// the stream.
type messageHandler func(message []byte) bool

// serve reads the stream until the context is done, the handler asks to
// stop or the connection fails. The connection is always closed on return.
func (es *ExchangeService) serve(
	ctx context.Context,
	logger dashboard.Logger,
	endpoint string,
	handler messageHandler,
) error {
	conn, _, err := es.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("could not dial stream: [%w]", err)
	}

	logger.Infof("stream connection established")
	defer logger.Infof("stream connection closed")

	stopChan := make(chan struct{})
	defer close(stopChan)

	go func() {
		select {
		case <-ctx.Done():
		case <-stopChan:
		}

		_ = conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}

			return fmt.Errorf("could not read stream message: [%w]", err)
		}

		if !handler(message) {
			return nil
		}
	}
}
