package execution

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/parityarb/parity-bot/pkg/ratelimit"
	"github.com/parityarb/parity-bot/pkg/types"
)

// OrderInfo is a flattened view of an open order, shaped for CLI display.
type OrderInfo struct {
	OrderID      string
	Market       string
	Side         string
	Outcome      string
	Price        string
	OriginalSize string
}

// Trade is a single matched fill as reported by GET /data/trades.
type Trade struct {
	TradeID    string
	OrderID    string
	TokenID    string
	Side       string
	Price      float64
	Size       float64
	MatchedAt  time.Time
}

// CancelAllResult reports the outcome of a DELETE /cancel-all call.
type CancelAllResult struct {
	Canceled    []string
	NotCanceled map[string]string // orderID -> reason
}

const clobBaseURL = "https://clob.polymarket.com"

// waitBucket blocks on the given bucket if a limiter is configured. A nil
// limiter or nil bucket disables throttling, as in tests.
func waitBucket(ctx context.Context, bucket *ratelimit.TokenBucket) error {
	if bucket == nil {
		return nil
	}
	return bucket.Wait(ctx)
}

// l2Headers builds the HMAC-signed L2 authentication headers shared by
// every authenticated GET/DELETE call, mirroring submitOrder's POST signing.
func (c *OrderClient) l2Headers(method, requestPath, body string) (http.Header, error) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signaturePayload := timestamp + method + requestPath + body

	secretBytes, err := base64.URLEncoding.DecodeString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(signaturePayload))
	signature := base64.URLEncoding.EncodeToString(h.Sum(nil))

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("POLY_API_KEY", c.apiKey)
	header.Set("POLY_SIGNATURE", signature)
	header.Set("POLY_TIMESTAMP", timestamp)
	header.Set("POLY_PASSPHRASE", c.passphrase)
	header.Set("POLY_ADDRESS", c.address)
	return header, nil
}

func (c *OrderClient) doAuthed(ctx context.Context, method, requestPath, body string) (status int, respBody []byte, err error) {
	header, err := c.l2Headers(method, requestPath, body)
	if err != nil {
		return 0, nil, err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, clobBaseURL+requestPath, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = header

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// GetOrder fetches a single order's current status and fill size.
func (c *OrderClient) GetOrder(ctx context.Context, orderID string) (*types.OrderQueryResponse, error) {
	if err := waitBucket(ctx, c.generalBucket()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	requestPath := "/data/order/" + orderID

	status, body, err := c.doAuthed(ctx, http.MethodGet, requestPath, "")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get order (status %d): %s", status, string(body))
	}

	var resp types.OrderQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}
	return &resp, nil
}

// GetOpenOrders lists all currently open orders for the authenticated account.
func (c *OrderClient) GetOpenOrders(ctx context.Context) ([]OrderInfo, error) {
	if err := waitBucket(ctx, c.generalBucket()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	requestPath := "/data/orders"

	status, body, err := c.doAuthed(ctx, http.MethodGet, requestPath, "")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get open orders (status %d): %s", status, string(body))
	}

	var raw []types.OrderQueryResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse open orders response: %w", err)
	}

	orders := make([]OrderInfo, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, OrderInfo{
			OrderID:      o.OrderID,
			Market:       o.MarketID,
			Side:         o.Side,
			Outcome:      o.Outcome,
			Price:        strconv.FormatFloat(o.Price, 'f', -1, 64),
			OriginalSize: strconv.FormatFloat(o.Size, 'f', -1, 64),
		})
	}
	return orders, nil
}

// CancelOrder cancels a single order by ID.
func (c *OrderClient) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.waitOrderSlot(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqBody, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return fmt.Errorf("marshal cancel request: %w", err)
	}

	requestPath := "/order"
	status, body, err := c.doAuthed(ctx, http.MethodDelete, requestPath, string(reqBody))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("cancel order (status %d): %s", status, string(body))
	}
	return nil
}

// CancelAllOrders cancels every open order atomically via DELETE /cancel-all.
func (c *OrderClient) CancelAllOrders(ctx context.Context) (CancelAllResult, error) {
	if err := c.waitOrderSlot(ctx); err != nil {
		return CancelAllResult{}, fmt.Errorf("rate limit wait: %w", err)
	}

	requestPath := "/cancel-all"

	status, body, err := c.doAuthed(ctx, http.MethodDelete, requestPath, "")
	if err != nil {
		return CancelAllResult{}, err
	}
	if status != http.StatusOK {
		return CancelAllResult{}, fmt.Errorf("cancel-all (status %d): %s", status, string(body))
	}

	var raw struct {
		Canceled    []string          `json:"canceled"`
		NotCanceled map[string]string `json:"not_canceled"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return CancelAllResult{}, fmt.Errorf("parse cancel-all response: %w", err)
	}

	return CancelAllResult{Canceled: raw.Canceled, NotCanceled: raw.NotCanceled}, nil
}

// GetTrades fetches the most recent matched trades, newest first.
func (c *OrderClient) GetTrades(ctx context.Context, limit int) ([]Trade, error) {
	if err := waitBucket(ctx, c.generalBucket()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	requestPath := fmt.Sprintf("/data/trades?limit=%d", limit)

	status, body, err := c.doAuthed(ctx, http.MethodGet, requestPath, "")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get trades (status %d): %s", status, string(body))
	}

	var raw []struct {
		ID         string  `json:"id"`
		OrderID    string  `json:"taker_order_id"`
		AssetID    string  `json:"asset_id"`
		Side       string  `json:"side"`
		Price      float64 `json:"price,string"`
		Size       float64 `json:"size,string"`
		MatchTime  int64   `json:"match_time,string"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse trades response: %w", err)
	}

	trades := make([]Trade, 0, len(raw))
	for _, t := range raw {
		trades = append(trades, Trade{
			TradeID:   t.ID,
			OrderID:   t.OrderID,
			TokenID:   t.AssetID,
			Side:      t.Side,
			Price:     t.Price,
			Size:      t.Size,
			MatchedAt: time.Unix(t.MatchTime, 0),
		})
	}
	return trades, nil
}

// GetPrice fetches the current best bid for a token, used when sizing an
// exit or unwind sell against the live book rather than a stale signal.
func (c *OrderClient) GetPrice(ctx context.Context, tokenID, side string) (float64, error) {
	if err := waitBucket(ctx, c.bookBucket()); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	requestPath := "/price?" + url.Values{"token_id": {tokenID}, "side": {side}}.Encode()

	status, body, err := c.doAuthed(ctx, http.MethodGet, requestPath, "")
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("get price (status %d): %s", status, string(body))
	}

	var raw struct {
		Price float64 `json:"price,string"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("parse price response: %w", err)
	}
	return raw.Price, nil
}
