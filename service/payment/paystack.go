package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

const defaultBaseURL = "https://api.paystack.co"

// Client talks to the Paystack API. The base URL is injectable so tests
// can point it at a local fake.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

func NewClient() *Client {
	baseURL := os.Getenv("PAYSTACK_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return NewClientWith(baseURL, os.Getenv("PAYSTACK_SECRET_KEY"), nil)
}

func NewClientWith(baseURL, secretKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      httpClient,
	}
}

// InitializeRequest describes a hosted checkout session. Amount is in the
// currency's minor unit.
type InitializeRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Reference   string                 `json:"reference"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type Session struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type Verification struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
}

type Refund struct {
	ID     int64  `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// InitializeTransaction creates a hosted checkout session and returns the
// authorization URL the customer is redirected to.
func (c *Client) InitializeTransaction(req InitializeRequest) (*Session, error) {
	var resp struct {
		Status  bool    `json:"status"`
		Message string  `json:"message"`
		Data    Session `json:"data"`
	}
	if err := c.post("/transaction/initialize", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("paystack initialize failed: %s", resp.Message)
	}
	return &resp.Data, nil
}

// VerifyTransaction fetches the state of a transaction by reference.
func (c *Client) VerifyTransaction(reference string) (*Verification, error) {
	httpReq, err := http.NewRequest("GET", c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp struct {
		Status  bool         `json:"status"`
		Message string       `json:"message"`
		Data    Verification `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("error reading verify response: %w", err)
	}
	if !resp.Status {
		return nil, fmt.Errorf("paystack verify failed: %s", resp.Message)
	}
	return &resp.Data, nil
}

// CreateRefund requests a refund against a charged transaction. A zero
// amount refunds the full charge.
func (c *Client) CreateRefund(reference string, amount int64) (*Refund, error) {
	payload := map[string]interface{}{
		"transaction": reference,
	}
	if amount > 0 {
		payload["amount"] = amount
	}

	var resp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    Refund `json:"data"`
	}
	if err := c.post("/refund", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("paystack refund failed: %s", resp.Message)
	}
	return &resp.Data, nil
}

func (c *Client) post(path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest("POST", c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("error reading payment response: %w", err)
	}
	return nil
}
