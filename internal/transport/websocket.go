package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/harunnryd/kaiwa/internal/concurrency"
	"github.com/harunnryd/kaiwa/internal/config"
	"github.com/harunnryd/kaiwa/internal/errors"

	"github.com/gorilla/websocket"
)

// Frames larger than this kill the connection instead of the process.
const wsMaxMessageBytes = 32 << 20

// WSDialer opens WebSocket connections carrying JSON envelopes, one envelope
// per text frame. Liveness runs on protocol pings: the peer answers with
// pongs, each pong extends the read deadline.
type WSDialer struct {
	writeTimeout time.Duration
	pingInterval time.Duration
	pongTimeout  time.Duration
	sendBuffer   int
}

// NewWSDialer builds a dialer from the transport section of the config.
func NewWSDialer(cfg *config.Config) (*WSDialer, error) {
	writeTimeout, err := config.DurationOrDefault(cfg.Transport.WriteTimeout, config.DefaultTransportWriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport.write_timeout: %w", err)
	}
	pingInterval, err := config.DurationOrDefault(cfg.Transport.PingInterval, config.DefaultTransportPingInterval)
	if err != nil {
		return nil, fmt.Errorf("transport.ping_interval: %w", err)
	}
	pongTimeout, err := config.DurationOrDefault(cfg.Transport.PongTimeout, config.DefaultTransportPongTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport.pong_timeout: %w", err)
	}
	sendBuffer := cfg.Transport.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = config.DefaultTransportSendBuffer
	}

	return &WSDialer{
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		sendBuffer:   sendBuffer,
	}, nil
}

// Dial upgrades the endpoint to a WebSocket URL, merges the routing query
// and performs the handshake.
func (d *WSDialer) Dial(ctx context.Context, endpoint string, query url.Values) (Socket, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("endpoint %q: %v", endpoint, err))
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("endpoint scheme %q is not supported", u.Scheme))
	}

	merged := u.Query()
	for key, values := range query {
		merged[key] = values
	}
	u.RawQuery = merged.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	conn.SetReadLimit(wsMaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(d.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(d.pongTimeout))
	})

	socket := &wsSocket{
		conn:         conn,
		sendCh:       make(chan []byte, d.sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: d.writeTimeout,
		pingInterval: d.pingInterval,
	}
	concurrency.SafeGo("transport.write_pump", socket.writePump, nil)
	return socket, nil
}

// wsSocket serializes all writes through a single pump goroutine; gorilla
// connections allow at most one concurrent writer.
type wsSocket struct {
	conn         *websocket.Conn
	sendCh       chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
}

func (s *wsSocket) Emit(ctx context.Context, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %q payload: %w", event, err)
	}
	data, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal %q envelope: %w", event, err)
	}

	select {
	case s.sendCh <- data:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive reads the next envelope. Unparseable frames are skipped; only
// transport failures end the stream. Cancellation arrives via Close, which
// unblocks the pending read.
func (s *wsSocket) Receive(ctx context.Context) (Envelope, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Envelope{}, err
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return Envelope{}, err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("Skipping unparseable frame", "error", err, "bytes", len(data))
			continue
		}
		return env, nil
	}
}

func (s *wsSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return s.conn.Close()
}

func (s *wsSocket) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-s.sendCh:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("Write failed", "error", err)
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
