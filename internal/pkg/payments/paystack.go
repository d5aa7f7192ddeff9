package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adebayo-oss/slotpay/internal/pkg/env"
)

const defaultPaystackAPIBaseURL = "https://api.paystack.co"

// Provider abstracts the hosted-payment gateway. The orchestrator only needs
// these two calls; webhook signature handling is a package function because it
// operates on raw request bytes, not on a transaction.
type Provider interface {
	InitializeTransaction(ctx context.Context, in InitializeRequest) (*InitializeResult, error)
	VerifyTransaction(ctx context.Context, providerReference string) (*VerifyResult, error)
}

// PaystackClient talks to the Paystack REST API.
type PaystackClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewPaystackClientFromEnv builds a client from PAYSTACK_* environment values.
func NewPaystackClientFromEnv() *PaystackClient {
	return &PaystackClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("PAYSTACK_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("PAYSTACK_API_BASE_URL", defaultPaystackAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// InitializeTransaction starts a hosted transaction and returns the redirect
// URL. Network failures and 5xx map to ErrProviderUnavailable, 4xx to
// ErrProviderRejected with the provider message suppressed from clients.
func (c *PaystackClient) InitializeTransaction(ctx context.Context, in InitializeRequest) (*InitializeResult, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, fmt.Errorf("%w: PAYSTACK_SECRET_KEY is not configured", ErrProviderUnavailable)
	}
	if in.AmountKobo <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrProviderRejected)
	}
	if strings.TrimSpace(in.Reference) == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrProviderRejected)
	}

	reqBody := map[string]interface{}{
		"email":     in.Email,
		"amount":    in.AmountKobo,
		"reference": in.Reference,
	}
	if in.Currency != "" {
		reqBody["currency"] = in.Currency
	}
	if in.CallbackURL != "" {
		reqBody["callback_url"] = in.CallbackURL
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}

	var out struct {
		Status  bool                   `json:"status"`
		Message string                 `json:"message"`
		Data    paystackInitializeData `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed initialize response", ErrProviderUnavailable)
	}
	if !out.Status || strings.TrimSpace(out.Data.AuthorizationURL) == "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderRejected, out.Message)
	}

	return &InitializeResult{
		AuthorizationURL:  out.Data.AuthorizationURL,
		AccessCode:        out.Data.AccessCode,
		ProviderReference: out.Data.Reference,
	}, nil
}

// VerifyTransaction polls the provider for the authoritative transaction state.
func (c *PaystackClient) VerifyTransaction(ctx context.Context, providerReference string) (*VerifyResult, error) {
	ref := strings.TrimSpace(providerReference)
	if ref == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrProviderRejected)
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, fmt.Errorf("%w: PAYSTACK_SECRET_KEY is not configured", ErrProviderUnavailable)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/transaction/verify/"+ref, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Status  bool               `json:"status"`
		Message string             `json:"message"`
		Data    paystackVerifyData `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed verify response", ErrProviderUnavailable)
	}
	if !out.Status {
		return nil, fmt.Errorf("%w: %s", ErrProviderRejected, out.Message)
	}

	return &VerifyResult{
		ProviderReference: out.Data.Reference,
		Status:            out.Data.Status,
		AmountKobo:        out.Data.Amount,
		Currency:          out.Data.Currency,
	}, nil
}

func (c *PaystackClient) doRequest(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status=%d", ErrProviderRejected, resp.StatusCode)
	}
	return body, nil
}
