// Package stream pushes field changes to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/oilfield/depletion"
	"github.com/pthm-cable/oilfield/layer"
)

// Message types.
const (
	TypeGrid   = "GRID"
	TypeValues = "VALUES"
)

// Message is the JSON frame sent to subscribers. A GRID message carries the
// whole field; a VALUES message carries one extraction's changes.
type Message struct {
	Type    string                  `json:"type"`
	Tick    int64                   `json:"tick"`
	Grid    *layer.Values           `json:"grid,omitempty"`
	Changes []depletion.ValueChange `json:"changes,omitempty"`
}

const writeWait = 5 * time.Second

// Hub fans change batches out to websocket subscribers. It implements
// depletion.Notifier and keeps its own copy of the grid, so new subscribers
// get a consistent GRID message without reading the live field.
//
// A subscriber whose queue is full misses batches instead of stalling the
// field; it can reconnect for a fresh GRID.
type Hub struct {
	log        *slog.Logger
	upgrader   websocket.Upgrader
	bufferSize int

	mu     sync.Mutex
	grid   *depletion.Grid
	subs   map[uint64]chan []byte
	closed bool

	nextID  atomic.Uint64
	tick    atomic.Int64
	dropped atomic.Uint64
}

// NewHub creates a hub mirroring grid. Each subscriber queues up to
// bufferSize messages.
func NewHub(grid *depletion.Grid, bufferSize int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if grid == nil {
		grid = depletion.NewGrid(0, 0)
	}
	return &Hub{
		log:        logger,
		bufferSize: bufferSize,
		grid:       grid.Clone(),
		subs:       make(map[uint64]chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetTick sets the tick stamped on subsequent messages.
func (h *Hub) SetTick(tick int64) { h.tick.Store(tick) }

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns the number of messages discarded for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// OnValuesChanged applies the batch to the mirror and broadcasts it.
func (h *Hub) OnValuesChanged(changes []depletion.ValueChange) {
	b, err := json.Marshal(Message{Type: TypeValues, Tick: h.tick.Load(), Changes: changes})
	if err != nil {
		h.log.Error("encoding values", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range changes {
		h.grid.Set(c.X, c.Y, c.NewValue)
	}
	h.broadcastLocked(b)
}

// Reset replaces the mirrored grid, for example after a layer is hidden or
// shown, and sends every subscriber a new GRID message.
func (h *Hub) Reset(grid *depletion.Grid) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.grid = grid.Clone()
	b, err := h.gridMessageLocked()
	if err != nil {
		h.log.Error("encoding grid", "error", err)
		return
	}
	h.broadcastLocked(b)
}

func (h *Hub) broadcastLocked(b []byte) {
	for _, ch := range h.subs {
		select {
		case ch <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) gridMessageLocked() ([]byte, error) {
	v := layer.FromGrid(h.grid)
	return json.Marshal(Message{Type: TypeGrid, Tick: h.tick.Load(), Grid: &v})
}

// subscribe registers a queue primed with the current GRID message. Taking
// the grid and registering under one lock means no batch falls between them.
func (h *Hub) subscribe() (uint64, chan []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil, errHubClosed
	}
	b, err := h.gridMessageLocked()
	if err != nil {
		return 0, nil, err
	}
	id := h.nextID.Add(1)
	ch := make(chan []byte, h.bufferSize+1)
	ch <- b
	h.subs[id] = ch
	return id, ch, nil
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

var errHubClosed = errors.New("hub closed")

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Handler upgrades requests to websocket subscriptions.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		id, out, err := h.subscribe()
		if err != nil {
			http.Error(rw, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			h.unsubscribe(id)
			return
		}
		defer conn.Close()
		defer h.unsubscribe(id)

		h.log.Info("subscriber connected", "id", id, "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseGoingAway, "closing"),
							time.Now().Add(time.Second))
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: subscribers send nothing, but reading notices closes.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		select {
		case <-readDone:
			cancel()
			<-writeErr
		case <-writeErr:
		}
		h.log.Info("subscriber disconnected", "id", id)
	}
}

// Run serves the hub at /ws on addr until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	h.log.Info("stream listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		h.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

var _ depletion.Notifier = (*Hub)(nil)
