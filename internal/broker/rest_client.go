package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RestAdapter talks to the broker's REST API for candles, orders and account
// data, and to its websocket feed for ticks.
type RestAdapter struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	stream     *PriceStream
}

// NewRestAdapter creates an adapter. streamURL is the websocket tick feed.
func NewRestAdapter(apiKey, secretKey, baseURL, streamURL string) *RestAdapter {
	return &RestAdapter{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		stream:     NewPriceStream(streamURL),
	}
}

// Connect starts the tick stream.
func (c *RestAdapter) Connect() error {
	return c.stream.Start()
}

// Close stops the tick stream.
func (c *RestAdapter) Close() {
	c.stream.Stop()
}

// StreamStats exposes tick feed statistics for the status endpoint.
func (c *RestAdapter) StreamStats() map[string]interface{} {
	return c.stream.Stats()
}

type restCandle struct {
	OpenTime  int64   `json:"open_time"`  // epoch millis
	CloseTime int64   `json:"close_time"` // epoch millis
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
}

// GetCandleHistory fetches the most recent candles, oldest first.
func (c *RestAdapter) GetCandleHistory(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", timeframe)
	params.Set("limit", strconv.Itoa(count))

	body, err := c.get(ctx, "/v1/candles", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching candles: %w", err)
	}

	var raw []restCandle
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing candles: %w", err)
	}

	candles := make([]Candle, len(raw))
	for i, rc := range raw {
		candles[i] = Candle{
			OpenTime:  time.UnixMilli(rc.OpenTime),
			CloseTime: time.UnixMilli(rc.CloseTime),
			Open:      rc.Open,
			High:      rc.High,
			Low:       rc.Low,
			Close:     rc.Close,
			Volume:    rc.Volume,
		}
	}
	return candles, nil
}

// SubscribePrice registers a tick handler on the websocket feed.
func (c *RestAdapter) SubscribePrice(symbol string, onTick TickHandler) error {
	return c.stream.Subscribe(symbol, onTick)
}

// UnsubscribePrice removes the symbol's tick handler.
func (c *RestAdapter) UnsubscribePrice(symbol string) {
	c.stream.Unsubscribe(symbol)
}

type restOrderResponse struct {
	OrderID        string  `json:"order_id"`
	Status         string  `json:"status"`
	ExecutionPrice float64 `json:"execution_price,string"`
	Reason         string  `json:"reason,omitempty"`
}

// PlaceOrder submits a signed order request.
func (c *RestAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	params := map[string]string{
		"symbol":           req.Symbol,
		"direction":        string(req.Direction),
		"type":             string(req.Type),
		"volume":           strconv.FormatInt(int64(req.Volume), 10),
		"stop_loss_pips":   strconv.FormatFloat(req.StopLossPips, 'f', -1, 64),
		"take_profit_pips": strconv.FormatFloat(req.TakeProfitPips, 'f', -1, 64),
		"client_order_id":  req.ClientOrderID,
	}
	if req.Type == OrderTypeLimit {
		params["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}
	if req.Comment != "" {
		params["comment"] = req.Comment
	}

	body, err := c.signedPost(ctx, "/v1/orders", params)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	var resp restOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}

	result := &OrderResult{
		Success:        resp.Status == "FILLED" || resp.Status == "ACCEPTED",
		OrderID:        resp.OrderID,
		ExecutionPrice: resp.ExecutionPrice,
	}
	if !result.Success {
		result.ErrorMessage = resp.Reason
	}
	return result, nil
}

type restPosition struct {
	PositionID string  `json:"position_id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Volume     int64   `json:"volume"`
	EntryPrice float64 `json:"entry_price,string"`
	OpenedAt   int64   `json:"opened_at"` // epoch millis
}

// GetOpenPositions fetches the account's open positions.
func (c *RestAdapter) GetOpenPositions(ctx context.Context) ([]Position, error) {
	body, err := c.signedGet(ctx, "/v1/positions", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("error fetching positions: %w", err)
	}

	var raw []restPosition
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing positions: %w", err)
	}

	positions := make([]Position, len(raw))
	for i, rp := range raw {
		positions[i] = Position{
			PositionID: rp.PositionID,
			Symbol:     rp.Symbol,
			Direction:  Direction(rp.Direction),
			Volume:     VolumeUnits(rp.Volume),
			EntryPrice: rp.EntryPrice,
			OpenedAt:   time.UnixMilli(rp.OpenedAt),
		}
	}
	return positions, nil
}

// UpdateTrailingStop moves a position's stop. Returns false without error
// when the broker refuses the move (e.g. stop already tighter).
func (c *RestAdapter) UpdateTrailingStop(ctx context.Context, positionID string, stopPrice float64) (bool, error) {
	params := map[string]string{
		"position_id": positionID,
		"stop_price":  strconv.FormatFloat(stopPrice, 'f', -1, 64),
	}

	body, err := c.signedPost(ctx, "/v1/positions/stop", params)
	if err != nil {
		return false, fmt.Errorf("error updating stop: %w", err)
	}

	var resp struct {
		Applied bool `json:"applied"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("error parsing stop response: %w", err)
	}
	return resp.Applied, nil
}

// GetAccountEquity fetches current account equity.
func (c *RestAdapter) GetAccountEquity(ctx context.Context) (float64, error) {
	body, err := c.signedGet(ctx, "/v1/account", url.Values{})
	if err != nil {
		return 0, fmt.Errorf("error fetching account: %w", err)
	}

	var resp struct {
		Equity float64 `json:"equity,string"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("error parsing account: %w", err)
	}
	return resp.Equity, nil
}

type restSymbolSpec struct {
	Symbol          string  `json:"symbol"`
	PipSize         float64 `json:"pip_size,string"`
	PipValuePerUnit float64 `json:"pip_value_per_unit,string"`
	MinVolume       int64   `json:"min_volume"`
	MaxVolume       int64   `json:"max_volume"`
	StepVolume      int64   `json:"step_volume"`
	UnitsPerLot     int64   `json:"units_per_lot"`
}

// GetSymbolSpec fetches the symbol's trading constraints.
func (c *RestAdapter) GetSymbolSpec(ctx context.Context, symbol string) (*SymbolSpec, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/v1/symbols", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching symbol spec: %w", err)
	}

	var raw restSymbolSpec
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing symbol spec: %w", err)
	}

	return &SymbolSpec{
		Symbol:          raw.Symbol,
		PipSize:         raw.PipSize,
		PipValuePerUnit: raw.PipValuePerUnit,
		Volume: VolumeSpecs{
			MinVolume:   VolumeUnits(raw.MinVolume),
			MaxVolume:   VolumeUnits(raw.MaxVolume),
			StepVolume:  VolumeUnits(raw.StepVolume),
			UnitsPerLot: VolumeUnits(raw.UnitsPerLot),
		},
	}, nil
}

func (c *RestAdapter) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *RestAdapter) signedGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", c.sign(params))

	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	return c.do(req)
}

func (c *RestAdapter) signedPost(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	values.Set("signature", c.sign(values))

	endpoint := fmt.Sprintf("%s%s", c.baseURL, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = values.Encode()
	req.Header.Set("X-API-KEY", c.apiKey)
	return c.do(req)
}

func (c *RestAdapter) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}
	return body, nil
}

// sign creates an HMAC-SHA256 signature over the sorted query string.
func (c *RestAdapter) sign(params url.Values) string {
	query := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
