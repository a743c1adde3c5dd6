package livechannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/betfoundry/playerlink/internal/metrics"
	"github.com/betfoundry/playerlink/internal/models"
)

// ErrAuthRejected is returned when the server refuses the connection's
// credentials. The channel does not retry with the same token.
var ErrAuthRejected = errors.New("live channel authentication rejected")

// ErrNotAuthenticated is returned when Run is called without a token
var ErrNotAuthenticated = errors.New("no access token for live channel")

// State is the connection lifecycle state surfaced to observers
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSessionExpired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSessionExpired:
		return "session_expired"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TokenSource supplies the access token used to authenticate the connection
type TokenSource interface {
	AccessToken() string
}

// envelope is the wire shape of every pushed event
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Channel maintains one persistent authenticated push connection per session
// and fans incoming events out to typed subscribers. Delivery is best-effort
// FIFO; subscribers merge idempotently.
type Channel struct {
	url    string
	tokens TokenSource
	dialer *websocket.Dialer
	logger zerolog.Logger

	maxReconnects int
	backoffBase   time.Duration
	backoffCap    time.Duration

	mu   sync.Mutex
	conn *websocket.Conn

	onState            func(state State, err error)
	onBalance          func(pushes []models.BalancePush)
	onNotification     func(push models.NotificationWire)
	onNotificationSync func(pushes []models.NotificationWire)
	onBet              func(event models.BetEvent)
	onBigWin           func(event models.WinEvent)
	onTransaction      func(push models.TransactionPush)
}

// Option configures the Channel
type Option func(*Channel)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger.With().Str("component", "live_channel").Logger()
	}
}

// WithMaxReconnects bounds reconnection attempts
func WithMaxReconnects(max int) Option {
	return func(c *Channel) {
		c.maxReconnects = max
	}
}

// WithBackoffBase sets the initial reconnect delay
func WithBackoffBase(base time.Duration) Option {
	return func(c *Channel) {
		c.backoffBase = base
	}
}

// WithDialer replaces the websocket dialer
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Channel) {
		c.dialer = dialer
	}
}

// New creates a Channel against the given websocket URL
func New(wsURL string, tokens TokenSource, options ...Option) *Channel {
	channel := &Channel{
		url:           wsURL,
		tokens:        tokens,
		dialer:        websocket.DefaultDialer,
		logger:        zerolog.Nop(),
		maxReconnects: 5,
		backoffBase:   time.Second,
		backoffCap:    30 * time.Second,
	}

	for _, option := range options {
		option(channel)
	}

	return channel
}

// OnState registers the connection lifecycle observer
func (c *Channel) OnState(fn func(state State, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// OnBalance registers the balance push subscriber
func (c *Channel) OnBalance(fn func(pushes []models.BalancePush)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBalance = fn
}

// OnNotification registers the incremental notification subscriber
func (c *Channel) OnNotification(fn func(push models.NotificationWire)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotification = fn
}

// OnNotificationSync registers the initial-sync notification subscriber
func (c *Channel) OnNotificationSync(fn func(pushes []models.NotificationWire)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotificationSync = fn
}

// OnBet registers the public bet feed subscriber
func (c *Channel) OnBet(fn func(event models.BetEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBet = fn
}

// OnBigWin registers the public big-win feed subscriber
func (c *Channel) OnBigWin(fn func(event models.WinEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBigWin = fn
}

// OnTransaction registers the private transaction update subscriber
func (c *Channel) OnTransaction(fn func(push models.TransactionPush)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransaction = fn
}

// Run connects and processes events until the context is cancelled, the
// server rejects the token, or reconnection attempts are exhausted. The
// token is presented once at dial time, never per message.
func (c *Channel) Run(ctx context.Context) error {
	attempts := 0

	for {
		token := c.tokens.AccessToken()
		if token == "" {
			// Logged out mid-run: tear down without retrying
			c.setState(StateDisconnected, nil)
			return ErrNotAuthenticated
		}

		c.setState(StateConnecting, nil)
		conn, _, err := c.dialer.DialContext(ctx, c.dialURL(token), nil)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected, nil)
				return ctx.Err()
			}

			attempts++
			metrics.LiveReconnectsTotal.Inc()
			if attempts > c.maxReconnects {
				c.setState(StateFailed, err)
				return fmt.Errorf("live channel failed after %d attempts: %w", attempts, err)
			}

			delay := c.backoff(attempts)
			c.logger.Warn().
				Err(err).
				Int("attempt", attempts).
				Dur("delay", delay).
				Msg("Dial failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.setState(StateDisconnected, nil)
				return ctx.Err()
			}
			continue
		}

		attempts = 0
		c.setConn(conn)
		c.setState(StateConnected, nil)
		metrics.SetLiveConnected(true)
		c.logger.Info().Msg("Live channel connected")

		readErr := c.readLoop(ctx, conn)

		metrics.SetLiveConnected(false)
		c.setConn(nil)
		conn.Close()

		if ctx.Err() != nil {
			c.setState(StateDisconnected, nil)
			return ctx.Err()
		}

		// Forced disconnect for bad credentials is terminal; a transient
		// drop goes back around the reconnect loop
		if errors.Is(readErr, ErrAuthRejected) {
			c.setState(StateSessionExpired, readErr)
			return readErr
		}

		attempts++
		metrics.LiveReconnectsTotal.Inc()
		if attempts > c.maxReconnects {
			c.setState(StateFailed, readErr)
			return fmt.Errorf("live channel failed after %d attempts: %w", attempts, readErr)
		}

		delay := c.backoff(attempts)
		c.logger.Warn().
			Err(readErr).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("Connection dropped, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			c.setState(StateDisconnected, nil)
			return ctx.Err()
		}
	}
}

// Close tears down the active connection, releasing a blocked read loop
func (c *Channel) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (c *Channel) dialURL(token string) string {
	separator := "?"
	if strings.Contains(c.url, "?") {
		separator = "&"
	}
	return c.url + separator + "token=" + url.QueryEscape(token)
}

// backoff returns the delay before the given attempt, doubling per attempt
// up to the cap
func (c *Channel) backoff(attempt int) time.Duration {
	delay := c.backoffBase * time.Duration(1<<(attempt-1))
	if delay > c.backoffCap {
		delay = c.backoffCap
	}
	return delay
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) setState(state State, err error) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(state, err)
	}
}

// readLoop reads and dispatches events until the connection drops. A
// goroutine watches the context so cancellation unblocks the read.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isAuthClose(err) {
				return ErrAuthRejected
			}
			return err
		}

		if err := c.dispatch(data); err != nil {
			return err
		}
	}
}

// isAuthClose reports whether a close frame signals rejected credentials
func isAuthClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return closeErr.Code == websocket.ClosePolicyViolation || closeErr.Code == 4401
}

// dispatch demultiplexes one pushed event to its subscriber. Malformed
// payloads are logged and skipped, never fatal to the connection.
func (c *Channel) dispatch(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Dropping malformed event")
		return nil
	}

	c.mu.Lock()
	onBalance := c.onBalance
	onNotification := c.onNotification
	onNotificationSync := c.onNotificationSync
	onBet := c.onBet
	onBigWin := c.onBigWin
	onTransaction := c.onTransaction
	c.mu.Unlock()

	switch env.Event {
	case "connected":
		c.logger.Debug().Msg("Server acknowledged connection")

	case "authenticated":
		c.logger.Debug().Msg("Server authenticated connection")

	case "balance":
		pushes, err := decodeBalance(env.Data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed balance event")
			return nil
		}
		if onBalance != nil {
			onBalance(pushes)
		}

	case "notifications":
		var pushes []models.NotificationWire
		if err := json.Unmarshal(env.Data, &pushes); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed notification sync")
			return nil
		}
		if onNotificationSync != nil {
			onNotificationSync(pushes)
		}

	case "notification":
		var push models.NotificationWire
		if err := json.Unmarshal(env.Data, &push); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed notification event")
			return nil
		}
		if onNotification != nil {
			onNotification(push)
		}

	case "bet:placed":
		var event models.BetEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed bet event")
			return nil
		}
		if onBet != nil {
			onBet(event)
		}

	case "win:big":
		var event models.WinEvent
		if err := json.Unmarshal(env.Data, &event); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed win event")
			return nil
		}
		if onBigWin != nil {
			onBigWin(event)
		}

	case "transaction:update":
		var push models.TransactionPush
		if err := json.Unmarshal(env.Data, &push); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed transaction event")
			return nil
		}
		if onTransaction != nil {
			onTransaction(push)
		}

	case "error":
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed error event")
			return nil
		}
		if isAuthCode(payload.Code) {
			c.logger.Warn().Str("code", payload.Code).Msg("Server rejected session")
			return ErrAuthRejected
		}
		c.logger.Warn().
			Str("code", payload.Code).
			Str("message", payload.Message).
			Msg("Server error event")

	default:
		c.logger.Debug().Str("event", env.Event).Msg("Ignoring unknown event")
	}

	return nil
}

// decodeBalance accepts both a snapshot array and a single delta object
func decodeBalance(data []byte) ([]models.BalancePush, error) {
	var pushes []models.BalancePush
	if err := json.Unmarshal(data, &pushes); err == nil {
		return pushes, nil
	}

	var single models.BalancePush
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []models.BalancePush{single}, nil
}

func isAuthCode(code string) bool {
	switch strings.ToUpper(code) {
	case "AUTH_FAILED", "AUTH_EXPIRED", "SESSION_EXPIRED", "UNAUTHORIZED":
		return true
	default:
		return false
	}
}
