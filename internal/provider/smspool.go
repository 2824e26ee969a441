package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Per-call deadlines, matching upstream latencies observed in production.
const (
	acquireTimeout = 15 * time.Second
	pollTimeout    = 10 * time.Second
	pricesTimeout  = 30 * time.Second
)

// SMSPool is the live adapter for api.smspool.net. All endpoints are GET
// with the API key passed as a query parameter.
type SMSPool struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewSMSPool() *SMSPool {
	viper.SetDefault("smspool.api_url", "https://api.smspool.net")

	return &SMSPool{
		baseURL: viper.GetString("smspool.api_url"),
		apiKey:  viper.GetString("smspool.api_key"),
		client:  &http.Client{},
	}
}

// payload is the loosely shaped upstream envelope; every field is coerced
// before leaving this package.
type payload struct {
	Success json.RawMessage `json:"success"`
	ID      json.RawMessage `json:"id"`
	Number  string          `json:"number"`
	Code    string          `json:"code"`
	Status  json.RawMessage `json:"status"`
	Balance json.RawMessage `json:"balance"`
	Error   string          `json:"error"`
}

func (s *SMSPool) AcquireNumber(ctx context.Context, service, country string) (AcquireResult, error) {
	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	var resp payload
	err := s.get(ctx, "/request/number", url.Values{
		"service": {service},
		"country": {country},
	}, &resp)
	if err != nil {
		return AcquireResult{}, err
	}

	if !truthy(resp.Success) {
		if resp.Error != "" {
			return AcquireResult{}, fmt.Errorf("%w: %s", ErrUnavailable, resp.Error)
		}
		return AcquireResult{}, fmt.Errorf("%w: order rejected", ErrUnavailable)
	}

	orderID := rawString(resp.ID)
	if orderID == "" || resp.Number == "" {
		return AcquireResult{}, fmt.Errorf("%w: missing order id or number", ErrInvalidResponse)
	}

	return AcquireResult{OrderID: orderID, Number: resp.Number}, nil
}

func (s *SMSPool) PollCode(ctx context.Context, providerOrderID string) (PollResult, error) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	var resp payload
	err := s.get(ctx, "/request/sms", url.Values{"orderid": {providerOrderID}}, &resp)
	if err != nil {
		return PollResult{}, err
	}

	if truthy(resp.Success) && resp.Code != "" {
		return PollResult{Code: resp.Code}, nil
	}
	if status := rawString(resp.Status); status != "" {
		return PollResult{Status: status}, nil
	}
	return PollResult{}, fmt.Errorf("%w: no code or status", ErrInvalidResponse)
}

func (s *SMSPool) Release(ctx context.Context, providerOrderID string) error {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	var resp payload
	err := s.get(ctx, "/request/cancel", url.Values{"orderid": {providerOrderID}}, &resp)
	if err != nil {
		return err
	}
	if !truthy(resp.Success) {
		return fmt.Errorf("%w: cancel rejected", ErrUnavailable)
	}
	return nil
}

func (s *SMSPool) Balance(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	var resp payload
	err := s.get(ctx, "/request/balance", url.Values{}, &resp)
	if err != nil {
		return 0, err
	}

	balance, ok := rawFloat(resp.Balance)
	if !ok {
		return 0, fmt.Errorf("%w: missing balance", ErrInvalidResponse)
	}
	return balance, nil
}

// Prices fetches the full service/country price table:
// {"Service Name": {"US": 0.15, ...}, ...}. Values arrive as numbers or
// strings depending on the upstream version.
func (s *SMSPool) Prices(ctx context.Context) (map[string]map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, pricesTimeout)
	defer cancel()

	var raw map[string]map[string]json.RawMessage
	if err := s.get(ctx, "/request/prices", url.Values{}, &raw); err != nil {
		return nil, err
	}

	prices := make(map[string]map[string]float64, len(raw))
	for service, countries := range raw {
		table := make(map[string]float64, len(countries))
		for country, price := range countries {
			p, ok := rawFloat(price)
			if !ok || p <= 0 {
				continue
			}
			table[country] = p
		}
		if len(table) > 0 {
			prices[service] = table
		}
	}

	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: empty price table", ErrInvalidResponse)
	}
	return prices, nil
}

func (s *SMSPool) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[PROVIDER] Timeout on %s", path)
			return ErrTimeout
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// truthy accepts the upstream's bool, 0/1 and "1" spellings of success.
func truthy(raw json.RawMessage) bool {
	switch string(raw) {
	case "true", "1", `"1"`, `"true"`:
		return true
	}
	return false
}

// rawString renders a field that may arrive as a JSON string or number.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func rawFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
