package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekenegodwins22-eng/verifyhub/internal/provider"
)

func TestMarkupSchedule(t *testing.T) {
	cases := []struct {
		apiPrice float64
		markup   float64
	}{
		{0.10, 5},
		{0.50, 5},
		{1.00, 5},
		{1.01, 2},
		{3.00, 2},
		{4.99, 2},
		{5.00, 1.5},
		{12.50, 1.5},
		{0.05, 2}, // below the schedule: default
	}

	for _, tc := range cases {
		assert.Equal(t, tc.markup, markupFor(tc.apiPrice), "apiPrice %.2f", tc.apiPrice)
	}
}

func TestPricingService_Quote(t *testing.T) {
	viper.Set("pricing.cache_ttl", time.Hour)

	t.Run("quote applies markup in cents", func(t *testing.T) {
		adapter := new(MockAdapter)
		adapter.On("Prices", mock.Anything).
			Return(map[string]map[string]float64{"Telegram": {"US": 0.10}}, nil).Once()

		service := NewPricingService(nil, nil, adapter)

		quote, err := service.Quote(context.Background(), "Telegram", "us")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), quote.APIPrice) // 0.10 in price units
		assert.Equal(t, 5.0, quote.Markup)
		assert.Equal(t, int64(50), quote.UserPrice) // 0.50 in cents
		adapter.AssertExpectations(t)
	})

	t.Run("second quote within TTL is served from cache", func(t *testing.T) {
		adapter := new(MockAdapter)
		adapter.On("Prices", mock.Anything).
			Return(map[string]map[string]float64{"Telegram": {"US": 0.10}}, nil).Once()

		service := NewPricingService(nil, nil, adapter)

		_, err := service.Quote(context.Background(), "telegram", "US")
		require.NoError(t, err)
		_, err = service.Quote(context.Background(), "telegram", "US")
		require.NoError(t, err)
		adapter.AssertExpectations(t)
	})

	t.Run("unknown pair", func(t *testing.T) {
		adapter := new(MockAdapter)
		adapter.On("Prices", mock.Anything).
			Return(map[string]map[string]float64{"Telegram": {"US": 0.10}}, nil).Once()

		service := NewPricingService(nil, nil, adapter)

		_, err := service.Quote(context.Background(), "telegram", "FR")
		assert.ErrorIs(t, err, ErrNoQuote)
	})

	t.Run("failed refresh serves last-known-good", func(t *testing.T) {
		adapter := new(MockAdapter)
		adapter.On("Prices", mock.Anything).
			Return(map[string]map[string]float64{"Telegram": {"US": 0.10}}, nil).Once()

		service := NewPricingService(nil, nil, adapter)
		_, err := service.Quote(context.Background(), "telegram", "US")
		require.NoError(t, err)

		// Age the catalog past its TTL; the next refresh attempt fails.
		service.mu.Lock()
		service.catalog.FetchedAt = time.Now().Add(-2 * time.Hour)
		service.mu.Unlock()
		adapter.On("Prices", mock.Anything).
			Return(nil, provider.ErrUnavailable).Once()

		quote, err := service.Quote(context.Background(), "telegram", "US")
		require.NoError(t, err)
		assert.Equal(t, int64(50), quote.UserPrice)
		adapter.AssertExpectations(t)
	})

	t.Run("no catalog and failed fetch is an error", func(t *testing.T) {
		adapter := new(MockAdapter)
		adapter.On("Prices", mock.Anything).
			Return(nil, provider.ErrUnavailable).Once()

		service := NewPricingService(nil, nil, adapter)

		_, err := service.Quote(context.Background(), "telegram", "US")
		assert.Error(t, err)
	})
}

func TestPricingService_Snapshot(t *testing.T) {
	viper.Set("pricing.cache_ttl", time.Hour)

	snapshot := Catalog{
		Services:  []ServiceInfo{{ID: "telegram", Name: "Telegram"}},
		Countries: []CountryInfo{{Code: "US", Name: "United States"}},
		Pricing: map[string]map[string]PriceQuote{
			"telegram": {"US": {APIPrice: 1000, Markup: 5, UserPrice: 50}},
		},
		FetchedAt: time.Now(),
	}
	data, err := json.Marshal(&snapshot)
	require.NoError(t, err)

	redisClient, redisMock := redismock.NewClientMock()
	redisMock.ExpectGet(catalogSnapshotKey).SetVal(string(data))

	adapter := new(MockAdapter) // no Prices expectation: snapshot must suffice
	service := NewPricingService(nil, redisClient, adapter)

	quote, err := service.Quote(context.Background(), "telegram", "US")
	require.NoError(t, err)
	assert.Equal(t, int64(50), quote.UserPrice)
	adapter.AssertExpectations(t)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestBuildCatalog(t *testing.T) {
	catalog := buildCatalog(map[string]map[string]float64{
		"Telegram":   {"us": 0.10, "UK": 0.12},
		"My Service": {"US": 6.00},
	})

	assert.Len(t, catalog.Services, 2)
	assert.Equal(t, "my_service", catalog.Services[0].ID) // sorted by name
	assert.Equal(t, "telegram", catalog.Services[1].ID)
	assert.Len(t, catalog.Countries, 2)

	quote := catalog.Pricing["my_service"]["US"]
	assert.Equal(t, 1.5, quote.Markup)
	assert.Equal(t, int64(900), quote.UserPrice) // 6.00 * 1.5 = 9.00
}
