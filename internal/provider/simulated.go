package provider

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Simulated fabricates numbers and codes locally, for development and
// tests. A code becomes available a fixed delay after acquisition.
type Simulated struct {
	mu        sync.Mutex
	codeDelay time.Duration
	orders    map[string]simOrder
}

type simOrder struct {
	acquiredAt time.Time
	code       string
	released   bool
}

func NewSimulated() *Simulated {
	viper.SetDefault("provider.sim_code_delay", 5*time.Second)

	return &Simulated{
		codeDelay: viper.GetDuration("provider.sim_code_delay"),
		orders:    make(map[string]simOrder),
	}
}

func (s *Simulated) AcquireNumber(ctx context.Context, service, country string) (AcquireResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "sim_" + uuid.NewString()
	s.orders[id] = simOrder{
		acquiredAt: time.Now(),
		code:       fmt.Sprintf("%06d", rand.Intn(900000)+100000),
	}

	return AcquireResult{
		OrderID: id,
		Number:  fmt.Sprintf("+1%010d", rand.Int63n(9000000000)+1000000000),
	}, nil
}

func (s *Simulated) PollCode(ctx context.Context, providerOrderID string) (PollResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[providerOrderID]
	if !ok || !strings.HasPrefix(providerOrderID, "sim_") {
		return PollResult{}, fmt.Errorf("%w: unknown order %s", ErrInvalidResponse, providerOrderID)
	}
	if order.released {
		return PollResult{Status: "cancelled"}, nil
	}
	if time.Since(order.acquiredAt) < s.codeDelay {
		return PollResult{Status: "waiting_sms"}, nil
	}
	return PollResult{Code: order.code}, nil
}

func (s *Simulated) Release(ctx context.Context, providerOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[providerOrderID]
	if !ok {
		return fmt.Errorf("%w: unknown order %s", ErrInvalidResponse, providerOrderID)
	}
	order.released = true
	s.orders[providerOrderID] = order
	return nil
}

func (s *Simulated) Balance(ctx context.Context) (float64, error) {
	return 100.0, nil
}

// Prices returns a fixed table so the catalog works fully offline.
func (s *Simulated) Prices(ctx context.Context) (map[string]map[string]float64, error) {
	return map[string]map[string]float64{
		"Telegram":  {"US": 0.10, "UK": 0.12, "CA": 0.11},
		"Google":    {"US": 0.15, "UK": 0.17},
		"WhatsApp":  {"US": 0.20},
		"Facebook":  {"US": 0.18},
		"Twitter":   {"US": 0.25},
		"Discord":   {"US": 0.22},
		"Instagram": {"US": 0.19},
		"TikTok":    {"US": 0.30},
		"Amazon":    {"US": 0.35},
		"eBay":      {"US": 0.28},
	}, nil
}
