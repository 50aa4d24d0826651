package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPGateway talks JSON to the activation provider's REST API. The API
// key travels as a query parameter, which is how the provider
// authenticates callers.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGateway builds a gateway for the given base URL. A nil client
// falls back to http.DefaultClient; deadlines come from the request
// context, not the transport.
func NewHTTPGateway(baseURL, apiKey string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPGateway{baseURL: baseURL, apiKey: apiKey, client: client}
}

type priceResponse struct {
	Available bool    `json:"available"`
	Price     float64 `json:"price"`
}

type numberResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	OrderID string `json:"order_id"`
	Number  string `json:"number"`
}

type smsResponse struct {
	Status string `json:"status"`
	Code   string `json:"code"`
}

// Countries lists the provider's supported countries.
func (g *HTTPGateway) Countries(ctx context.Context) ([]Country, error) {
	var out []Country
	if err := g.get(ctx, "/countries", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Services lists the provider's supported services.
func (g *HTTPGateway) Services(ctx context.Context) ([]Service, error) {
	var out []Service
	if err := g.get(ctx, "/services", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServicePrice fetches the base price for a service/country pair.
func (g *HTTPGateway) ServicePrice(ctx context.Context, service, country string) (float64, error) {
	params := url.Values{"service": {service}, "country": {country}}
	var res priceResponse
	if err := g.get(ctx, "/prices", params, &res); err != nil {
		return 0, err
	}
	if !res.Available {
		return 0, ErrNotAvailable
	}
	return res.Price, nil
}

// AcquireNumber leases a number for the service/country pair.
func (g *HTTPGateway) AcquireNumber(ctx context.Context, service, country string) (Acquisition, error) {
	params := url.Values{"service": {service}, "country": {country}}
	var res numberResponse
	if err := g.get(ctx, "/numbers", params, &res); err != nil {
		return Acquisition{}, err
	}
	if res.Status != "ok" || res.OrderID == "" {
		return Acquisition{}, fmt.Errorf("%w: %s", ErrAcquisitionFailed, res.Message)
	}
	return Acquisition{OrderID: res.OrderID, Number: res.Number}, nil
}

// SMSStatus polls the provider for a received activation code.
func (g *HTTPGateway) SMSStatus(ctx context.Context, orderID string) (SMSStatus, error) {
	params := url.Values{"order_id": {orderID}}
	var res smsResponse
	if err := g.get(ctx, "/sms", params, &res); err != nil {
		return SMSStatus{}, err
	}
	switch res.Status {
	case SMSReceived:
		return SMSStatus{State: SMSReceived, Code: res.Code}, nil
	case SMSWaiting:
		return SMSStatus{State: SMSWaiting}, nil
	default:
		return SMSStatus{}, fmt.Errorf("%w: unexpected sms status %q", ErrUnavailable, res.Status)
	}
}

func (g *HTTPGateway) get(ctx context.Context, path string, params url.Values, out any) error {
	u, err := url.Parse(g.baseURL + path)
	if err != nil {
		return fmt.Errorf("%w: parse url: %v", ErrUnavailable, err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", g.apiKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotAvailable
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}
