package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/kaiwa/internal/concurrency"
	"github.com/harunnryd/kaiwa/internal/config"
	"github.com/harunnryd/kaiwa/internal/errors"
)

// Client maintains one connection to the backend and keeps it alive through
// the reconnect policy. All state transitions are reported through Callbacks;
// the client never interprets event payloads.
//
// Every Connect starts a new epoch. Goroutines and callbacks belonging to an
// older epoch are silently retired, so a Disconnect or a replacement Connect
// can never be interleaved with stale notifications.
type Client struct {
	dialer      Dialer
	policy      Policy
	dialTimeout time.Duration

	mu           sync.Mutex
	cb           Callbacks
	cursor       CursorFunc
	status       Status
	epoch        int
	cancel       context.CancelFunc
	socket       Socket
	endpoint     string
	conversation string
}

// NewClient builds a client from the transport section of the config.
func NewClient(cfg *config.Config, dialer Dialer) (*Client, error) {
	dialTimeout, err := config.DurationOrDefault(cfg.Transport.DialTimeout, config.DefaultTransportDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport.dial_timeout: %w", err)
	}
	initialDelay, err := config.DurationOrDefault(cfg.Transport.Reconnect.InitialDelay, config.DefaultReconnectInitialDelay)
	if err != nil {
		return nil, fmt.Errorf("transport.reconnect.initial_delay: %w", err)
	}
	maxDelay, err := config.DurationOrDefault(cfg.Transport.Reconnect.MaxDelay, config.DefaultReconnectMaxDelay)
	if err != nil {
		return nil, fmt.Errorf("transport.reconnect.max_delay: %w", err)
	}
	multiplier := cfg.Transport.Reconnect.Multiplier
	if multiplier < 1 {
		multiplier = config.DefaultReconnectMultiplier
	}

	return &Client{
		dialer:      dialer,
		dialTimeout: dialTimeout,
		policy: Policy{
			InitialDelay: initialDelay,
			Multiplier:   multiplier,
			MaxDelay:     maxDelay,
			MaxAttempts:  cfg.Transport.Reconnect.MaxAttempts,
		},
	}, nil
}

// SetCallbacks installs the notification surface. Call it before Connect;
// swapping callbacks on a live connection applies from the next notification.
func (c *Client) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

// SetCursor installs the replay cursor consulted on every dial.
func (c *Client) SetCursor(fn CursorFunc) {
	c.mu.Lock()
	c.cursor = fn
	c.mu.Unlock()
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect starts a connection to the given endpoint for the given
// conversation. Connecting to the conversation that is already live (or being
// dialed) is a no-op; a different target tears the existing connection down
// first. The dial itself runs asynchronously; progress arrives through the
// callbacks.
func (c *Client) Connect(endpoint, conversationID string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.InvalidInput("endpoint is required")
	}
	if u, err := url.Parse(endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.InvalidInput(fmt.Sprintf("endpoint %q is not a valid URL", endpoint))
	}
	if strings.TrimSpace(conversationID) == "" {
		return errors.InvalidInput("conversation id is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.status != StatusDisconnected && c.endpoint == endpoint && c.conversation == conversationID {
		c.mu.Unlock()
		cancel()
		slog.Debug("Connect ignored, conversation already live", "conversation", conversationID)
		return nil
	}
	prevCancel := c.cancel
	prevSocket := c.socket
	replaced := c.status != StatusDisconnected
	c.epoch++
	epoch := c.epoch
	c.cancel = cancel
	c.socket = nil
	c.status = StatusConnecting
	c.endpoint = endpoint
	c.conversation = conversationID
	cb := c.cb
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevSocket != nil {
		prevSocket.Close()
	}
	if replaced {
		slog.Info("Replacing live connection", "endpoint", endpoint)
		if cb.OnDisconnect != nil {
			cb.OnDisconnect(nil)
		}
	}
	if cb.OnStatus != nil {
		cb.OnStatus(StatusConnecting)
	}

	concurrency.SafeGo("transport.run", func() {
		c.run(ctx, epoch, endpoint, conversationID)
	}, nil)
	return nil
}

// Disconnect tears down the connection and stops any pending reconnect.
// It is a no-op when already disconnected. Notifications already in flight
// may still complete after Disconnect returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.status == StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.epoch++
	cancel := c.cancel
	socket := c.socket
	c.cancel = nil
	c.socket = nil
	c.status = StatusDisconnected
	c.endpoint = ""
	c.conversation = ""
	cb := c.cb
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if socket != nil {
		socket.Close()
	}
	slog.Info("Disconnected by caller")
	if cb.OnStatus != nil {
		cb.OnStatus(StatusDisconnected)
	}
	if cb.OnDisconnect != nil {
		cb.OnDisconnect(nil)
	}
}

// Send emits one intent envelope on the live socket. When the session is not
// connected the intent is rejected without touching the wire; the rejection
// is both returned and reported through OnError.
func (c *Client) Send(ctx context.Context, action string, args map[string]interface{}) error {
	c.mu.Lock()
	socket := c.socket
	connected := c.status == StatusConnected
	cb := c.cb
	c.mu.Unlock()

	if !connected || socket == nil {
		err := errors.NotConnected(fmt.Sprintf("send %q", action))
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return err
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	payload := map[string]interface{}{
		"action": action,
		"args":   args,
	}
	if err := socket.Emit(ctx, OutboundEvent, payload); err != nil {
		err = errors.Classify(err)
		slog.Warn("Send failed", "action", action, "error", err)
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return err
	}
	return nil
}

// run owns the connection for one epoch: dial, pump, and retry until the
// policy is exhausted, the error is not retryable, or the epoch is retired.
func (c *Client) run(ctx context.Context, epoch int, endpoint, conversationID string) {
	var lastErr error
	attempt := 0

	for {
		if attempt > 0 {
			if c.policy.Exhausted(attempt) {
				slog.Warn("Reconnect attempts exhausted", "attempts", attempt-1)
				break
			}
			if !c.setStatus(epoch, StatusReconnecting) {
				return
			}
			delay := c.policy.Delay(attempt)
			slog.Info("Reconnecting", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		socket, err := c.dial(ctx, endpoint, conversationID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lastErr = errors.Classify(err)
			slog.Warn("Dial failed", "endpoint", endpoint, "error", lastErr)
			c.report(epoch, lastErr)
			if !errors.IsRetryable(lastErr) {
				break
			}
			attempt++
			continue
		}

		if !c.adoptSocket(epoch, socket) {
			return
		}
		if !c.setStatus(epoch, StatusConnected) {
			return
		}
		slog.Info("Connected", "endpoint", endpoint, "conversation_id", conversationID)
		if cb, ok := c.callbacksFor(epoch); ok && cb.OnConnect != nil {
			cb.OnConnect(conversationID)
		}

		err = c.pump(ctx, epoch, socket)
		c.dropSocket(epoch)
		if ctx.Err() != nil {
			return
		}
		lastErr = errors.Classify(err)
		slog.Warn("Connection lost", "error", lastErr)
		c.report(epoch, lastErr)
		if !errors.IsRetryable(lastErr) {
			break
		}
		// A fresh drop restarts the backoff schedule.
		attempt = 1
	}

	if !c.setStatus(epoch, StatusDisconnected) {
		return
	}
	cb, ok := c.callbacksFor(epoch)
	if ok && cb.OnDisconnect != nil {
		cb.OnDisconnect(lastErr)
	}
}

// pump delivers inbound event payloads until the socket dies.
func (c *Client) pump(ctx context.Context, epoch int, socket Socket) error {
	for {
		env, err := socket.Receive(ctx)
		if err != nil {
			return err
		}
		if env.Event != InboundEvent {
			slog.Debug("Ignoring wire event", "event", env.Event)
			continue
		}
		cb, ok := c.callbacksFor(epoch)
		if !ok {
			return context.Canceled
		}
		if cb.OnRawEvent != nil {
			cb.OnRawEvent(env.Payload)
		}
	}
}

func (c *Client) dial(ctx context.Context, endpoint, conversationID string) (Socket, error) {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	query := url.Values{}
	query.Set("conversation_id", conversationID)
	if cursor != nil {
		if last := cursor(); last > 0 {
			query.Set("latest_event_id", strconv.FormatInt(last, 10))
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	return c.dialer.Dial(dialCtx, endpoint, query)
}

// setStatus applies a transition for the given epoch. It reports false when
// the epoch is retired; duplicate transitions are absorbed silently.
func (c *Client) setStatus(epoch int, status Status) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	if c.status == status {
		c.mu.Unlock()
		return true
	}
	c.status = status
	cb := c.cb
	c.mu.Unlock()

	if cb.OnStatus != nil {
		cb.OnStatus(status)
	}
	return true
}

func (c *Client) adoptSocket(epoch int, socket Socket) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		socket.Close()
		return false
	}
	c.socket = socket
	c.mu.Unlock()
	return true
}

func (c *Client) dropSocket(epoch int) {
	c.mu.Lock()
	socket := c.socket
	if c.epoch == epoch {
		c.socket = nil
	} else {
		socket = nil
	}
	c.mu.Unlock()

	if socket != nil {
		socket.Close()
	}
}

func (c *Client) report(epoch int, err error) {
	cb, ok := c.callbacksFor(epoch)
	if ok && cb.OnError != nil {
		cb.OnError(err)
	}
}

func (c *Client) callbacksFor(epoch int) (Callbacks, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return Callbacks{}, false
	}
	return c.cb, true
}
