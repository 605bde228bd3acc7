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

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Gateway runs the authenticated Gate futures WebSocket used for order
// entry. Order placement and cancellation go out as WebSocket API requests;
// acknowledgments, order lifecycle events and fills come back on the
// futures.orders and futures.usertrades subscriptions and are forwarded as
// ExecutionReports. The venue's reports are the only source of order truth;
// the gateway never fabricates an OPEN state from a local send.
//
// After every reconnect it reconciles through REST: resting orders the
// local tracker no longer recognizes are cancelled before quoting resumes.
type Gateway struct {
	wsURL    string
	settle   string
	contract string
	signer   *Signer
	rest     *RestClient
	backoff  infra.Backoff

	// Known reports whether a client order id belongs to the live local
	// order set. Orders failing this check after a reconnect are orphans.
	Known func(clientOrderID string) bool

	reports chan domain.ExecutionReport

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	pingStop  chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

type apiRequest struct {
	Time    int64      `json:"time"`
	Channel string     `json:"channel"`
	Event   string     `json:"event"`
	Payload apiPayload `json:"payload"`
}

type apiPayload struct {
	ReqID     string          `json:"req_id"`
	APIKey    string          `json:"api_key,omitempty"`
	Signature string          `json:"signature,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	ReqParam  json.RawMessage `json:"req_param,omitempty"`
}

type orderParam struct {
	Contract string `json:"contract"`
	Size     int64  `json:"size"` // signed contracts, negative sells
	Price    string `json:"price"`
	Tif      string `json:"tif"`
	Text     string `json:"text"`
}

type cancelParam struct {
	OrderID string `json:"order_id"`
}

type gatewayMessage struct {
	TimeMs  int64           `json:"time_ms"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Error   *wsError        `json:"error,omitempty"`
	Header  *responseHeader `json:"header,omitempty"`
	Result  json.RawMessage `json:"result"`
	Ack     bool            `json:"ack,omitempty"`
}

type responseHeader struct {
	ResponseTime string `json:"response_time"`
	Status       string `json:"status"`
	Channel      string `json:"channel"`
	Event        string `json:"event"`
	ClientID     string `json:"client_id"`
}

type orderEvent struct {
	ID           int64           `json:"id"`
	Contract     string          `json:"contract"`
	Size         int64           `json:"size"`
	Left         int64           `json:"left"`
	Price        decimal.Decimal `json:"price"`
	Status       string          `json:"status"`
	FinishAs     string          `json:"finish_as"`
	Text         string          `json:"text"`
	CreateTimeMs int64           `json:"create_time_ms"`
	FinishTimeMs int64           `json:"finish_time_ms"`
}

type userTradeEvent struct {
	ID           string          `json:"id"`
	CreateTimeMs int64           `json:"create_time_ms"`
	Contract     string          `json:"contract"`
	OrderID      string          `json:"order_id"`
	Size         int64           `json:"size"`
	Price        decimal.Decimal `json:"price"`
	Role         string          `json:"role"`
	Text         string          `json:"text"`
}

// NewGateway creates the execution gateway for one contract.
func NewGateway(wsURL, settle, contract string, signer *Signer, rest *RestClient, backoff infra.Backoff) *Gateway {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &Gateway{
		wsURL:    wsURL,
		settle:   settle,
		contract: contract,
		signer:   signer,
		rest:     rest,
		backoff:  backoff,
		reports:  make(chan domain.ExecutionReport, 512),
	}
}

// Reports returns the execution report stream. Reports are never dropped;
// the channel is sized for bursts and the tracker drains it continuously.
func (g *Gateway) Reports() <-chan domain.ExecutionReport {
	return g.reports
}

// Connect starts the connection loop.
func (g *Gateway) Connect(ctx context.Context) error {
	ctx, g.cancel = context.WithCancel(ctx)
	g.wg.Add(1)
	go g.connectionLoop(ctx)
	return nil
}

func (g *Gateway) connectionLoop(ctx context.Context) {
	defer g.wg.Done()
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := g.connect(ctx); err != nil {
			attempt++
			delay := g.backoff.Next(attempt)
			slog.Warn("Gate execution connection failed",
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
			g.readLoop(ctx)
		}
	}
}

func (g *Gateway) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, g.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	g.mu.Lock()
	g.conn = conn
	g.connected = true
	g.mu.Unlock()

	if err := g.login(); err != nil {
		g.closeConnection()
		return err
	}
	if err := g.subscribePrivate(); err != nil {
		g.closeConnection()
		return err
	}
	if err := g.reconcile(ctx); err != nil {
		g.closeConnection()
		return err
	}

	stop := make(chan struct{})
	g.mu.Lock()
	g.pingStop = stop
	g.mu.Unlock()
	go g.pingLoop(ctx, stop)
	infra.GlobalMetrics.IncrementConnections()
	slog.Info("Gate execution connected", slog.String("contract", g.contract))
	return nil
}

func (g *Gateway) login() error {
	now := time.Now().Unix()
	req := apiRequest{
		Time:    now,
		Channel: "futures.login",
		Event:   "api",
		Payload: apiPayload{
			ReqID:     uuid.NewString(),
			APIKey:    g.signer.AccessKey(),
			Signature: g.signer.APISignature("futures.login", "", now),
			Timestamp: fmt.Sprintf("%d", now),
		},
	}
	b, _ := json.Marshal(req)
	return g.threadSafeWrite(websocket.TextMessage, b)
}

func (g *Gateway) subscribePrivate() error {
	now := time.Now().Unix()
	for _, channel := range []string{"futures.orders", "futures.usertrades"} {
		msg := subscribeMsg{
			Time:    now,
			Channel: channel,
			Event:   "subscribe",
			Payload: []string{g.contract},
			Auth: &authMsg{
				Method: "api_key",
				Key:    g.signer.AccessKey(),
				Sign:   g.signer.ChannelSignature(channel, "subscribe", now),
			},
		}
		b, _ := json.Marshal(msg)
		if err := g.threadSafeWrite(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	return nil
}

// reconcile fetches the venue's open orders and cancels any the local
// tracker does not recognize. Orders placed on a previous process run or
// lost across the disconnect must not keep resting unmanaged.
func (g *Gateway) reconcile(ctx context.Context) error {
	if g.rest == nil {
		return nil
	}
	open, err := g.rest.ListOpenOrders(ctx, g.contract)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	for _, o := range open {
		if g.Known != nil && g.Known(o.ClientOrderID) {
			continue
		}
		slog.Warn("cancelling orphan order",
			slog.String("client_order_id", o.ClientOrderID),
			slog.String("venue_order_id", o.VenueOrderID))
		if err := g.rest.CancelOrder(ctx, o.VenueOrderID); err != nil {
			return fmt.Errorf("reconcile cancel %s: %w", o.VenueOrderID, err)
		}
	}
	return nil
}

// Submit places a limit order. The returned error covers the local write
// only; the authoritative outcome arrives as an ExecutionReport.
func (g *Gateway) Submit(_ context.Context, intent domain.QuoteIntent) error {
	size := intent.Size.IntPart()
	if size <= 0 {
		return fmt.Errorf("submit %s: non-positive size %s", intent.ClientOrderID, intent.Size)
	}
	if intent.Side == domain.SideSell {
		size = -size
	}
	param, err := json.Marshal(orderParam{
		Contract: intent.Symbol,
		Size:     size,
		Price:    intent.Price.String(),
		Tif:      "gtc",
		Text:     intent.ClientOrderID,
	})
	if err != nil {
		return err
	}
	if err := g.sendAPI("futures.order_place", param); err != nil {
		return domain.NewNetworkError("order_place", err)
	}
	infra.GlobalMetrics.RecordQuote()
	return nil
}

// Cancel cancels a resting order by venue id.
func (g *Gateway) Cancel(_ context.Context, order domain.Order) error {
	if order.VenueOrderID == "" {
		return fmt.Errorf("cancel %s: %w", order.ClientOrderID, domain.ErrUnknownOrder)
	}
	param, err := json.Marshal(cancelParam{OrderID: order.VenueOrderID})
	if err != nil {
		return err
	}
	if err := g.sendAPI("futures.order_cancel", param); err != nil {
		return domain.NewNetworkError("order_cancel", err)
	}
	infra.GlobalMetrics.RecordCancel()
	return nil
}

func (g *Gateway) sendAPI(channel string, reqParam json.RawMessage) error {
	req := apiRequest{
		Time:    time.Now().Unix(),
		Channel: channel,
		Event:   "api",
		Payload: apiPayload{
			ReqID:    uuid.NewString(),
			ReqParam: reqParam,
		},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return g.threadSafeWrite(websocket.TextMessage, b)
}

// pingLoop lives exactly as long as its connection; stop is closed in
// closeConnection so reconnects never accumulate ping goroutines.
func (g *Gateway) pingLoop(ctx context.Context, stop <-chan struct{}) {
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
			g.threadSafeWrite(websocket.TextMessage, b)
		}
	}
}

func (g *Gateway) threadSafeWrite(msgType int, data []byte) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.conn == nil {
		return fmt.Errorf("no conn")
	}
	return g.conn.WriteMessage(msgType, data)
}

func (g *Gateway) readLoop(ctx context.Context) {
	defer infra.GlobalMetrics.DecrementConnections()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		g.mu.RLock()
		if g.conn == nil {
			g.mu.RUnlock()
			return
		}
		g.conn.SetReadDeadline(time.Now().Add(readTimeout))
		g.mu.RUnlock()

		_, msg, err := g.conn.ReadMessage()
		if err != nil {
			g.closeConnection()
			return
		}
		g.handleMessage(msg, time.Now())
	}
}

func (g *Gateway) handleMessage(msg []byte, receivedAt time.Time) {
	var m gatewayMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		slog.Debug("Gate execution decode failed", slog.Any("error", err))
		return
	}

	switch m.Channel {
	case "futures.order_place", "futures.order_cancel":
		g.handleAPIResponse(&m, receivedAt)
	case "futures.orders":
		if m.Event == "update" {
			g.handleOrderEvents(m.Result, receivedAt)
		}
	case "futures.usertrades":
		if m.Event == "update" {
			g.handleUserTrades(m.Result, receivedAt)
		}
	case "futures.login":
		if m.Error != nil {
			slog.Error("Gate execution login rejected",
				slog.Int("code", m.Error.Code),
				slog.String("message", m.Error.Message))
		}
	}
}

// handleAPIResponse surfaces request-level rejections. A successful place is
// not reported here; the OPEN state comes from the futures.orders push.
func (g *Gateway) handleAPIResponse(m *gatewayMessage, receivedAt time.Time) {
	if m.Ack {
		return
	}
	if m.Error == nil && (m.Header == nil || m.Header.Status == "200") {
		return
	}

	reason := "request failed"
	if m.Error != nil {
		reason = m.Error.Message
	}

	var failed struct {
		Text string `json:"text"`
	}
	// On errors Gate echoes the request parameters back in result.
	_ = json.Unmarshal(m.Result, &failed)

	slog.Warn("Gate execution request rejected",
		slog.String("channel", m.Channel),
		slog.String("reason", reason))
	infra.GlobalMetrics.RecordError()

	if m.Channel == "futures.order_place" && failed.Text != "" {
		g.emit(domain.ExecutionReport{
			ClientOrderID: failed.Text,
			Status:        domain.OrderStatusRejected,
			Reason:        reason,
			ReceivedAt:    receivedAt,
		})
	}
}

func (g *Gateway) handleOrderEvents(result json.RawMessage, receivedAt time.Time) {
	var events []orderEvent
	if err := json.Unmarshal(result, &events); err != nil {
		slog.Debug("Gate order event decode failed", slog.Any("error", err))
		return
	}
	for _, ev := range events {
		side := domain.SideBuy
		size := ev.Size
		if size < 0 {
			side = domain.SideSell
			size = -size
		}
		report := domain.ExecutionReport{
			ClientOrderID: ev.Text,
			VenueOrderID:  fmt.Sprintf("%d", ev.ID),
			Symbol:        ev.Contract,
			Side:          side,
			Price:         ev.Price,
			Status:        orderEventStatus(&ev, size),
			EventTime:     eventTimeNs(&ev),
			ReceivedAt:    receivedAt,
		}
		if report.Status == domain.OrderStatusRejected {
			report.Reason = ev.FinishAs
		}
		g.emit(report)
	}
}

func orderEventStatus(ev *orderEvent, absSize int64) domain.OrderStatus {
	if ev.Status == "open" {
		left := ev.Left
		if left < 0 {
			left = -left
		}
		if left < absSize {
			return domain.OrderStatusPartiallyFilled
		}
		return domain.OrderStatusOpen
	}
	switch ev.FinishAs {
	case "filled":
		return domain.OrderStatusFilled
	case "cancelled", "liquidated", "ioc", "auto_deleveraged", "reduce_only", "position_closed":
		return domain.OrderStatusCanceled
	default:
		return domain.OrderStatusRejected
	}
}

func eventTimeNs(ev *orderEvent) int64 {
	ms := ev.FinishTimeMs
	if ms == 0 {
		ms = ev.CreateTimeMs
	}
	return ms * int64(time.Millisecond)
}

func (g *Gateway) handleUserTrades(result json.RawMessage, receivedAt time.Time) {
	var trades []userTradeEvent
	if err := json.Unmarshal(result, &trades); err != nil {
		slog.Debug("Gate user trade decode failed", slog.Any("error", err))
		return
	}
	for _, tr := range trades {
		side := domain.SideBuy
		size := tr.Size
		if size < 0 {
			side = domain.SideSell
			size = -size
		}
		infra.GlobalMetrics.RecordFill()
		g.emit(domain.ExecutionReport{
			ClientOrderID: tr.Text,
			VenueOrderID:  tr.OrderID,
			Symbol:        tr.Contract,
			Side:          side,
			FillPrice:     tr.Price,
			FillSize:      decimal.NewFromInt(size),
			Status:        domain.OrderStatusPartiallyFilled,
			EventTime:     tr.CreateTimeMs * int64(time.Millisecond),
			ReceivedAt:    receivedAt,
		})
	}
}

func (g *Gateway) emit(report domain.ExecutionReport) {
	select {
	case g.reports <- report:
	default:
		// A full report channel means the tracker stalled; dropping fills
		// silently would corrupt inventory, so block.
		g.reports <- report
	}
}

func (g *Gateway) closeConnection() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
	if g.pingStop != nil {
		close(g.pingStop)
		g.pingStop = nil
	}
	g.connected = false
}

// Disconnect stops the gateway and waits for the loop to exit.
func (g *Gateway) Disconnect() {
	if g.cancel != nil {
		g.cancel()
	}
	g.closeConnection()
	g.wg.Wait()
}
