package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// PayoutClient calls the treasury service that actually moves money for prize
// claims. A failed transfer must leave the prize record retryable, so callers
// only flip state after this client reports success.
type PayoutClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewPayoutClient() *PayoutClient {
	baseURL := os.Getenv("TREASURY_API_URL")
	if baseURL == "" {
		log.Fatal("TREASURY_API_URL environment variable is required")
	}
	token := os.Getenv("TREASURY_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("TREASURY_SERVICE_TOKEN environment variable is required")
	}

	return &PayoutClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Transfer asks the treasury to pay amount to userID. reference is the prize
// id and doubles as the treasury-side idempotency key.
func (c *PayoutClient) Transfer(userID string, amount decimal.Decimal, reference string) error {
	reqBody := map[string]interface{}{
		"user_id":   userID,
		"amount":    amount,
		"currency":  "USDC",
		"reference": reference,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", c.BaseURL+"/treasury/transfers", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("treasury unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("Treasury transfer for %s returned %d: %s", reference, resp.StatusCode, string(body))
		return fmt.Errorf("treasury transfer failed: %d", resp.StatusCode)
	}
	return nil
}
