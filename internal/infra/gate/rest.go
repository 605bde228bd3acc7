package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quotefuse/internal/domain"

	"github.com/shopspring/decimal"
)

const DefaultRestURL = "https://api.gateio.ws"

// RestClient covers the small REST surface used for reconciliation: open
// orders and the position snapshot after a private stream reconnect, plus a
// cancel fallback. The live order flow stays on the WebSocket.
type RestClient struct {
	baseURL string
	settle  string
	signer  *Signer
	client  *http.Client
	now     func() time.Time
}

// NewRestClient creates a signed REST client for one settle currency.
func NewRestClient(baseURL, settle string, signer *Signer) *RestClient {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	return &RestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		settle:  settle,
		signer:  signer,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
}

// restOrder is the futures order shape returned by the orders endpoints.
type restOrder struct {
	ID       int64           `json:"id"`
	Contract string          `json:"contract"`
	Size     int64           `json:"size"` // signed contracts, negative is short
	Left     int64           `json:"left"`
	Price    decimal.Decimal `json:"price"`
	Status   string          `json:"status"`
	Text     string          `json:"text"`
	CreateMs decimal.Decimal `json:"create_time_ms"`
}

type restPosition struct {
	Contract   string          `json:"contract"`
	Size       int64           `json:"size"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Value      decimal.Decimal `json:"value"`
}

// ListOpenOrders returns the venue's view of resting orders for a contract.
func (c *RestClient) ListOpenOrders(ctx context.Context, contract string) ([]domain.Order, error) {
	path := fmt.Sprintf("/api/v4/futures/%s/orders", c.settle)
	query := url.Values{"contract": {contract}, "status": {"open"}}.Encode()

	var raw []restOrder
	if err := c.do(ctx, http.MethodGet, path, query, "", &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, toOrder(o))
	}
	return orders, nil
}

// GetPosition returns the current signed position for a contract. A missing
// position decodes as size zero.
func (c *RestClient) GetPosition(ctx context.Context, contract string) (domain.InventoryState, error) {
	path := fmt.Sprintf("/api/v4/futures/%s/positions/%s", c.settle, contract)

	var raw restPosition
	if err := c.do(ctx, http.MethodGet, path, "", "", &raw); err != nil {
		return domain.InventoryState{}, err
	}

	return domain.InventoryState{
		Symbol:   contract,
		Position: decimal.NewFromInt(raw.Size),
		AvgEntry: raw.EntryPrice,
		Notional: raw.Value.Abs(),
		SyncedAt: c.now(),
	}, nil
}

// CancelOrder cancels one order by venue id. Used as a REST fallback when
// the execution socket is down during reconciliation.
func (c *RestClient) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/api/v4/futures/%s/orders/%s", c.settle, orderID)
	return c.do(ctx, http.MethodDelete, path, "", "", nil)
}

func (c *RestClient) do(ctx context.Context, method, path, query, body string, out interface{}) error {
	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, u, strings.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range c.signer.RestHeaders(method, path, query, body, c.now().Unix()) {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewNetworkError("rest "+method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("rest read", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Bad keys never fix themselves; callers treat this as fatal.
		return &domain.ConfigError{Field: "execution.credentials",
			Err: fmt.Errorf("gate rest %s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 256))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gate rest %s %s: status %d: %s", method, path, resp.StatusCode, truncate(data, 256))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func toOrder(o restOrder) domain.Order {
	side := domain.SideBuy
	size := o.Size
	if size < 0 {
		side = domain.SideSell
		size = -size
	}
	left := o.Left
	if left < 0 {
		left = -left
	}
	status := domain.OrderStatusOpen
	if left < size {
		status = domain.OrderStatusPartiallyFilled
	}
	return domain.Order{
		ClientOrderID: o.Text,
		VenueOrderID:  fmt.Sprintf("%d", o.ID),
		Symbol:        o.Contract,
		Side:          side,
		Price:         o.Price,
		Size:          decimal.NewFromInt(size),
		FilledSize:    decimal.NewFromInt(size - left),
		Status:        status,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
