package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPVerifier verifies transactions against the payment gateway's REST
// API using a bearer secret key.
type HTTPVerifier struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewHTTPVerifier builds a verifier for the given gateway base URL. A nil
// client falls back to http.DefaultClient.
func NewHTTPVerifier(baseURL, secretKey string, client *http.Client) *HTTPVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPVerifier{baseURL: baseURL, secretKey: secretKey, client: client}
}

type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"data"`
}

// Verify asks the gateway whether the referenced transaction settled.
// Amounts come back in minor currency units.
func (v *HTTPVerifier) Verify(ctx context.Context, reference string) (Verification, error) {
	u := fmt.Sprintf("%s/transaction/verify/%s", v.baseURL, url.PathEscape(reference))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: build request: %v", ErrVerification, err)
	}
	req.Header.Set("Authorization", "Bearer "+v.secretKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verification{}, fmt.Errorf("%w: status %d", ErrVerification, resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Verification{}, fmt.Errorf("%w: decode response: %v", ErrVerification, err)
	}

	return Verification{
		Verified:    body.Status && body.Data.Status == "success",
		AmountMinor: body.Data.Amount,
		Currency:    body.Data.Currency,
	}, nil
}
