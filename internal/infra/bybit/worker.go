package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	DefaultWSURL = "wss://stream.bybit.com/v5/public/linear"
	pingInterval = 20 * time.Second
	readTimeout  = 40 * time.Second
)

// Worker maintains the Bybit v5 linear public WebSocket.
type Worker struct {
	wsURL   string
	symbols []string
	frames  chan<- domain.Frame
	backoff infra.Backoff

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	pingStop  chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorker creates a Bybit stream worker.
func NewWorker(wsURL string, symbols []string, frames chan<- domain.Frame, backoff infra.Backoff) *Worker {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Worker{
		wsURL:   wsURL,
		symbols: symbols,
		frames:  frames,
		backoff: backoff,
	}
}

// Connect starts the connection loop.
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			attempt++
			delay := w.backoff.Next(attempt)
			slog.Warn("Bybit connection failed",
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", delay))
			infra.GlobalMetrics.RecordError()
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			attempt = 0
			w.readLoop(ctx)
		}
	}
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	w.emitResync()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return err
	}

	stop := make(chan struct{})
	w.mu.Lock()
	w.pingStop = stop
	w.mu.Unlock()
	go w.pingLoop(ctx, stop)

	infra.GlobalMetrics.IncrementConnections()
	slog.Info("Bybit connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

func (w *Worker) subscribe() error {
	args := make([]string, 0, 2*len(w.symbols))
	for _, s := range w.symbols {
		args = append(args, "orderbook.50."+s, "publicTrade."+s)
	}
	b, _ := json.Marshal(map[string]interface{}{"op": "subscribe", "args": args})
	return w.threadSafeWrite(websocket.TextMessage, b)
}

// RequestResync cycles a symbol's book subscription; Bybit replays a full
// snapshot on subscribe.
func (w *Worker) RequestResync(symbol string) {
	topic := []string{"orderbook.50." + symbol}
	if b, err := json.Marshal(map[string]interface{}{"op": "unsubscribe", "args": topic}); err == nil {
		if err := w.threadSafeWrite(websocket.TextMessage, b); err != nil {
			return
		}
	}
	if b, err := json.Marshal(map[string]interface{}{"op": "subscribe", "args": topic}); err == nil {
		_ = w.threadSafeWrite(websocket.TextMessage, b)
	}
}

// pingLoop lives exactly as long as its connection; stop is closed in
// closeConnection so reconnects never accumulate ping goroutines.
func (w *Worker) pingLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			b, _ := json.Marshal(map[string]string{"op": "ping"})
			w.threadSafeWrite(websocket.TextMessage, b)
		}
	}
}

func (w *Worker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *Worker) readLoop(ctx context.Context) {
	defer infra.GlobalMetrics.DecrementConnections()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		if w.conn == nil {
			w.mu.RUnlock()
			return
		}
		w.conn.SetReadDeadline(time.Now().Add(readTimeout))
		w.mu.RUnlock()

		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.emitFrame(msg)
	}
}

func (w *Worker) emitFrame(msg []byte) {
	payload := make([]byte, len(msg))
	copy(payload, msg)
	select {
	case w.frames <- domain.Frame{Venue: domain.VenueBybit, Payload: payload, ReceivedAt: time.Now()}:
	default:
	}
}

func (w *Worker) emitResync() {
	select {
	case w.frames <- domain.Frame{Venue: domain.VenueBybit, Resync: true, ReceivedAt: time.Now()}:
	default:
	}
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	if w.pingStop != nil {
		close(w.pingStop)
		w.pingStop = nil
	}
	w.connected = false
}

// Disconnect stops the worker and waits for the loop to exit.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
