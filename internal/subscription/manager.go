package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddstream/oddstream-go/pkg/hashset"
)

const (
	handshakeTimeout    = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultCloseTimeout = 5 * time.Second
	readyTimeout        = 10 * time.Second
)

// conn is the slice of *websocket.Conn the manager needs. Tests swap
// in a scripted fake.
type conn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type dialFunc func(ctx context.Context, url string) (conn, error)

func gorillaDial(ctx context.Context, url string) (conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	c, _, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Manager opens one push channel per subscription and delivers typed
// updates to registered callbacks. A failed channel is terminal for
// its handle; the caller resubscribes.
type Manager struct {
	url    string
	logger *slog.Logger
	dial   dialFunc

	mu     sync.Mutex
	active map[string]*Handle
	nextID uint64
}

func NewManager(url string, l *slog.Logger) *Manager {
	return &Manager{
		url:    url,
		logger: l.With("component", "subscriptions"),
		dial:   gorillaDial,
		active: make(map[string]*Handle),
	}
}

// ErrChannelClosed reports that a subscription's push channel is gone,
// whether by Unsubscribe, a server complete, or a transport failure.
var ErrChannelClosed = errors.New("push channel closed")

// Handle identifies one live subscription. Unsubscribe is idempotent:
// the channel resource is released exactly once.
type Handle struct {
	ID string

	manager *Manager
	conn    conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	cause     error // written once inside closeOnce, read after closed
}

// Done is closed when the subscription ends for any reason. Callers
// that want the stream back watch Done and resubscribe.
func (h *Handle) Done() <-chan struct{} { return h.closed }

// Err returns nil while the subscription is live, and an error
// wrapping ErrChannelClosed once it is gone.
func (h *Handle) Err() error {
	select {
	case <-h.closed:
	default:
		return nil
	}
	if h.cause != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, h.cause)
	}
	return ErrChannelClosed
}

// SubscribeMarketUpdates opens a channel and subscribes to updates for
// the given markets. cb runs on the channel's read goroutine.
func (m *Manager) SubscribeMarketUpdates(ctx context.Context, marketIDs []string, cb func(MarketUpdate)) (*Handle, error) {
	ids := hashset.SetFromSlice(marketIDs).AsSlice() // dedupe
	variables := map[string]any{"marketIds": ids}

	return m.subscribe(ctx, marketUpdatesSubscription, variables, func(payload json.RawMessage, logger *slog.Logger) {
		var update MarketUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			logger.Warn("dropping malformed market update", "error", err)
			return
		}
		if update.MarketID == "" {
			logger.Warn("dropping market update without market id")
			return
		}
		cb(update)
	})
}

// SubscribeOrderUpdates opens a channel and subscribes to order status
// changes on a chain.
func (m *Manager) SubscribeOrderUpdates(ctx context.Context, chainID string, cb func(OrderUpdate)) (*Handle, error) {
	variables := map[string]any{"chainId": chainID}

	return m.subscribe(ctx, orderUpdatesSubscription, variables, func(payload json.RawMessage, logger *slog.Logger) {
		var update OrderUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			logger.Warn("dropping malformed order update", "error", err)
			return
		}
		if update.OrderID == "" {
			logger.Warn("dropping order update without order id")
			return
		}
		cb(update)
	})
}

func (m *Manager) subscribe(ctx context.Context, query string, variables map[string]any, deliver func(json.RawMessage, *slog.Logger)) (*Handle, error) {
	c, err := m.dial(ctx, m.url)
	if err != nil {
		return nil, fmt.Errorf("couldn't open push channel: %w", err)
	}

	if err := awaitReady(c); err != nil {
		c.Close()
		return nil, fmt.Errorf("channel never became ready: %w", err)
	}

	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("sub-%d", m.nextID)
	m.mu.Unlock()

	h := &Handle{
		ID:      id,
		manager: m,
		conn:    c,
		closed:  make(chan struct{}),
	}

	if err := h.write(controlFrame{ID: id, Type: frameSubscribe, Query: query, Variables: variables}); err != nil {
		c.Close()
		return nil, fmt.Errorf("couldn't send subscribe: %w", err)
	}

	m.mu.Lock()
	m.active[id] = h
	m.mu.Unlock()

	go h.readLoop(deliver, m.logger.With("subscription_id", id))

	m.logger.Info("subscribed", "subscription_id", id)
	return h, nil
}

// awaitReady performs the init/ack exchange before any subscribe is
// sent.
func awaitReady(c conn) error {
	if err := c.WriteJSON(controlFrame{Type: frameConnectionInit}); err != nil {
		return err
	}
	c.SetReadDeadline(time.Now().Add(readyTimeout))
	defer c.SetReadDeadline(time.Time{})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return err
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.Type == frameConnectionAck {
			return nil
		}
	}
}

// readLoop parses inbound frames until the channel dies or the handle
// is unsubscribed. Malformed frames are dropped and logged; they never
// reach the callback and never escape the handler.
func (h *Handle) readLoop(deliver func(json.RawMessage, *slog.Logger), logger *slog.Logger) {
	for {
		_, raw, err := h.conn.ReadMessage()
		if err != nil {
			select {
			case <-h.closed:
				// Expected: Unsubscribe closed the connection.
			default:
				logger.Error("push channel failed", "error", err)
				h.teardown(false, err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case frameData:
			deliver(frame.Payload, logger)
		case frameError:
			logger.Error("subscription error frame", "payload", string(frame.Payload))
		case frameComplete:
			logger.Info("subscription completed by server")
			h.teardown(false, nil)
			return
		default:
			logger.Warn("dropping frame with unknown type", "type", frame.Type)
		}
	}
}

func (h *Handle) write(frame controlFrame) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	return h.conn.WriteJSON(frame)
}

// Unsubscribe sends a best-effort unsubscribe control message and
// releases the channel. Safe to call any number of times.
func (h *Handle) Unsubscribe() {
	h.teardown(true, nil)
}

func (h *Handle) teardown(notifyServer bool, cause error) {
	h.closeOnce.Do(func() {
		h.cause = cause
		close(h.closed)

		if notifyServer {
			// Best-effort; the channel may already be gone.
			if err := h.write(controlFrame{ID: h.ID, Type: frameUnsubscribe}); err != nil {
				h.manager.logger.Debug("couldn't send unsubscribe", "subscription_id", h.ID, "error", err)
			}
		}
		if err := h.conn.Close(); err != nil {
			h.manager.logger.Debug("couldn't close channel", "subscription_id", h.ID, "error", err)
		}

		h.manager.mu.Lock()
		delete(h.manager.active, h.ID)
		h.manager.mu.Unlock()

		h.manager.logger.Info("unsubscribed", "subscription_id", h.ID)
	})
}

// Active returns the number of live subscriptions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// CloseAll unsubscribes every live subscription. Used on wallet
// disconnect so no channel is orphaned.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.active))
	for _, h := range m.active {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.Unsubscribe()
	}
}
