package gate

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
	DefaultWSURL = "wss://fx-ws.gateio.ws/v4/ws/usdt"
	pingInterval = 15 * time.Second
	readTimeout  = 40 * time.Second
)

type subscribeMsg struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event"`
	Payload []string `json:"payload,omitempty"`
	Auth    *authMsg `json:"auth,omitempty"`
}

type authMsg struct {
	Method string `json:"method"`
	Key    string `json:"KEY"`
	Sign   string `json:"SIGN"`
}

// Worker maintains the Gate futures public WebSocket. Market data only; the
// authenticated execution connection lives in Gateway.
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

// NewWorker creates a Gate market-data worker.
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
			slog.Warn("Gate connection failed",
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
	slog.Info("Gate connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

func (w *Worker) subscribe() error {
	now := time.Now().Unix()
	for _, channel := range []string{"futures.book_ticker", "futures.trades", "futures.tickers"} {
		msg := subscribeMsg{
			Time:    now,
			Channel: channel,
			Event:   "subscribe",
			Payload: w.symbols,
		}
		b, _ := json.Marshal(msg)
		if err := w.threadSafeWrite(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	return nil
}

// RequestResync is a no-op: book_ticker pushes are complete top-of-book.
func (w *Worker) RequestResync(string) {}

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
			b, _ := json.Marshal(subscribeMsg{Time: time.Now().Unix(), Channel: "futures.ping"})
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
	case w.frames <- domain.Frame{Venue: domain.VenueGate, Payload: payload, ReceivedAt: time.Now()}:
	default:
	}
}

func (w *Worker) emitResync() {
	select {
	case w.frames <- domain.Frame{Venue: domain.VenueGate, Resync: true, ReceivedAt: time.Now()}:
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
