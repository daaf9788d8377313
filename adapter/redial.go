package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Redial runs session until ctx is cancelled, reconnecting with exponential
// backoff whenever it fails. A session that returns nil is restarted at once.
func Redial(ctx context.Context, log *slog.Logger, session func(context.Context) error) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		err := session(ctx)
		if err == nil || ctx.Err() != nil {
			backoff = minBackoff
			continue
		}
		log.Warn("feed session failed, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// CloseOnDone sends a close frame and closes conn once ctx is cancelled, so a
// blocked ReadMessage returns.
func CloseOnDone(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()
}
