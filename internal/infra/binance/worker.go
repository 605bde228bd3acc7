package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"quotefuse/internal/domain"
	"quotefuse/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	DefaultWSURL = "wss://fstream.binance.com/stream"
	readTimeout  = 70 * time.Second
)

// Worker maintains the Binance futures combined stream. Binance pings from
// the server side; gorilla answers with pongs out of the box, so there is no
// client ping loop. The subscription is encoded in the connect URL, so
// reconnect resubscribes implicitly.
type Worker struct {
	wsURL   string
	symbols []string
	frames  chan<- domain.Frame
	backoff infra.Backoff

	conn      *websocket.Conn
	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorker creates a Binance stream worker.
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
			slog.Warn("Binance connection failed",
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

func (w *Worker) streamURL() string {
	streams := make([]string, 0, 2*len(w.symbols))
	for _, s := range w.symbols {
		lower := strings.ToLower(s)
		streams = append(streams, lower+"@bookTicker", lower+"@aggTrade")
	}
	return w.wsURL + "?streams=" + strings.Join(streams, "/")
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	w.emitResync()

	infra.GlobalMetrics.IncrementConnections()
	slog.Info("Binance connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

// RequestResync is a no-op: the BBO stream is stateless, every push is a
// complete top-of-book.
func (w *Worker) RequestResync(string) {}

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
	case w.frames <- domain.Frame{Venue: domain.VenueBinance, Payload: payload, ReceivedAt: time.Now()}:
	default:
	}
}

func (w *Worker) emitResync() {
	select {
	case w.frames <- domain.Frame{Venue: domain.VenueBinance, Resync: true, ReceivedAt: time.Now()}:
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
