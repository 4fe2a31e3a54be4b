package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RazorpayConfig holds gateway credentials. There are no built-in fallback
// keys: a missing secret fails ValidateConfig instead of silently using a
// sandbox credential.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
}

// RazorpayService handles gateway order creation and callback signature
// verification. The server never sees a raw card or UPI handle; it only
// exchanges order ids, payment ids and signatures with the gateway.
type RazorpayService struct {
	config     *RazorpayConfig
	httpClient *http.Client
}

var (
	razorpayService *RazorpayService
	razorpayOnce    sync.Once
)

// GetRazorpayService returns the singleton instance configured from the
// environment.
func GetRazorpayService() *RazorpayService {
	razorpayOnce.Do(func() {
		baseURL := os.Getenv("RAZORPAY_BASE_URL")
		if baseURL == "" {
			baseURL = "https://api.razorpay.com"
		}
		razorpayService = NewRazorpayService(&RazorpayConfig{
			KeyID:     os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
			BaseURL:   baseURL,
		})
	})
	return razorpayService
}

func NewRazorpayService(config *RazorpayConfig) *RazorpayService {
	return &RazorpayService{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (rs *RazorpayService) ValidateConfig() error {
	if rs.config.KeyID == "" {
		return fmt.Errorf("RAZORPAY_KEY_ID is not set")
	}
	if rs.config.KeySecret == "" {
		return fmt.Errorf("RAZORPAY_KEY_SECRET is not set")
	}
	return nil
}

// KeyID is the public half of the credential pair, safe to hand to clients.
func (rs *RazorpayService) KeyID() string {
	return rs.config.KeyID
}

// RazorpayOrderResponse is the gateway's order (intent) record.
type RazorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// CreateGatewayOrder creates a gateway order for the given amount. Razorpay
// amounts are integer paise.
func (rs *RazorpayService) CreateGatewayOrder(receipt string, amount decimal.Decimal) (*RazorpayOrderResponse, error) {
	if err := rs.ValidateConfig(); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"amount":   amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"currency": "INR",
		"receipt":  receipt,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %v", err)
	}

	url := fmt.Sprintf("%s/v1/orders", rs.config.BaseURL)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}

	authString := "Basic " + base64.StdEncoding.EncodeToString(
		[]byte(rs.config.KeyID+":"+rs.config.KeySecret))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authString)

	resp, err := rs.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("razorpay API error: %s", string(body))
	}

	var orderResp RazorpayOrderResponse
	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %v", err)
	}
	return &orderResp, nil
}

// VerifySignature checks the gateway callback signature:
// HMAC-SHA256(order_id + "|" + payment_id, key secret), hex-encoded,
// compared in constant time.
func (rs *RazorpayService) VerifySignature(gatewayOrderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(rs.config.KeySecret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
