package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"fight-arena/models"
)

// VenueClient talks to the external trading venue and normalizes its account
// data (positions, fills, fees) into the engine's shapes. The venue executes
// all orders; this service only reads back what happened.
type VenueClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewVenueClient() *VenueClient {
	baseURL := os.Getenv("VENUE_API_URL")
	if baseURL == "" {
		log.Fatal("VENUE_API_URL environment variable is required")
	}
	token := os.Getenv("VENUE_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("VENUE_SERVICE_TOKEN environment variable is required")
	}

	return &VenueClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// VenuePosition is one open position as reported by the venue.
type VenuePosition struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	Leverage      decimal.Decimal `json:"leverage"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
}

// VenueFill is one execution as reported by the venue. RealizedPnl is present
// only on closing fills and already has fees embedded.
type VenueFill struct {
	ExecID      string           `json:"exec_id"`
	Symbol      string           `json:"symbol"`
	Side        string           `json:"side"`
	Size        decimal.Decimal  `json:"size"`
	Price       decimal.Decimal  `json:"price"`
	Fee         decimal.Decimal  `json:"fee"`
	Leverage    decimal.Decimal  `json:"leverage"`
	RealizedPnl *decimal.Decimal `json:"realized_pnl,omitempty"`
	OrderSource string           `json:"order_source"`
	ExecutedAt  time.Time        `json:"executed_at"`
}

// GetPositions fetches the user's currently open positions.
func (c *VenueClient) GetPositions(ctx context.Context, userID string) ([]VenuePosition, error) {
	var out struct {
		Positions []VenuePosition `json:"positions"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/v1/accounts/%s/positions", userID), nil, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

// GetFills fetches the user's executions since a point in time.
func (c *VenueClient) GetFills(ctx context.Context, userID string, since time.Time) ([]VenueFill, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339Nano))

	var out struct {
		Fills []VenueFill `json:"fills"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/v1/accounts/%s/fills", userID), q, &out); err != nil {
		return nil, err
	}
	return out.Fills, nil
}

func (c *VenueClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("failed to parse venue URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call venue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("venue returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode venue response: %w", err)
	}
	return nil
}

// ToTradeRecord normalizes a venue fill into the fight-owned TradeRecord shape.
func (f VenueFill) ToTradeRecord(fightID, userID string) models.TradeRecord {
	return models.TradeRecord{
		FightID:     fightID,
		UserID:      userID,
		VenueExecID: f.ExecID,
		Symbol:      f.Symbol,
		Side:        f.Side,
		Size:        f.Size,
		Price:       f.Price,
		Fee:         f.Fee,
		Leverage:    f.Leverage,
		RealizedPnl: f.RealizedPnl,
		OrderSource: f.OrderSource,
		ExecutedAt:  f.ExecutedAt,
	}
}
