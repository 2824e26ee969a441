package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"

	"github.com/ekenegodwins22-eng/verifyhub/internal/models"
	"github.com/ekenegodwins22-eng/verifyhub/internal/provider"
)

// ErrNoQuote means the catalog has no price for the service/country pair.
var ErrNoQuote = errors.New("pricing: no quote for service/country")

const catalogSnapshotKey = "verifyhub:catalog"

// PriceQuote is a priced service/country pair. APIPrice is in provider
// price units (four decimals), UserPrice in cents.
type PriceQuote struct {
	APIPrice  int64   `json:"apiPrice"`
	Markup    float64 `json:"markup"`
	UserPrice int64   `json:"userPrice"`
}

// QuoteView renders a quote with dollar amounts.
type QuoteView struct {
	APIPrice  float64 `json:"apiPrice"`
	Markup    float64 `json:"markup"`
	UserPrice float64 `json:"userPrice"`
}

func (q PriceQuote) View() QuoteView {
	return QuoteView{
		APIPrice:  models.APIDollars(q.APIPrice),
		Markup:    q.Markup,
		UserPrice: models.Dollars(q.UserPrice),
	}
}

// ServiceInfo and CountryInfo describe catalog dimensions.
type ServiceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CountryInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Catalog is one refresh of the upstream price table.
type Catalog struct {
	Services  []ServiceInfo                    `json:"services"`
	Countries []CountryInfo                    `json:"countries"`
	Pricing   map[string]map[string]PriceQuote `json:"pricing"`
	FetchedAt time.Time                        `json:"fetchedAt"`
}

// PricingService caches the provider price table. Entries refresh at most
// once per TTL; a failed refresh keeps serving the last good catalog. The
// catalog survives restarts via a Redis snapshot when Redis is available.
type PricingService struct {
	db       *sql.DB
	redis    *redis.Client
	provider provider.Adapter

	mu      sync.RWMutex
	catalog *Catalog
	ttl     time.Duration
}

func NewPricingService(db *sql.DB, redisClient *redis.Client, adapter provider.Adapter) *PricingService {
	viper.SetDefault("pricing.cache_ttl", time.Hour)

	s := &PricingService{
		db:       db,
		redis:    redisClient,
		provider: adapter,
		ttl:      viper.GetDuration("pricing.cache_ttl"),
	}
	s.loadSnapshot()
	return s
}

// markupFor implements the markup schedule on the upstream dollar price.
func markupFor(apiPrice float64) float64 {
	switch {
	case apiPrice >= 0.10 && apiPrice <= 1.00:
		return 5
	case apiPrice > 1.00 && apiPrice < 5.00:
		return 2
	case apiPrice >= 5.00:
		return 1.5
	default:
		return 2
	}
}

// Quote returns the current price for a service/country pair, refreshing
// the catalog first when it is stale.
func (s *PricingService) Quote(ctx context.Context, service, country string) (PriceQuote, error) {
	catalog, _, err := s.ensureCatalog(ctx)
	if err != nil {
		return PriceQuote{}, err
	}

	serviceID := normalizeServiceID(service)
	countryCode := strings.ToUpper(country)

	quote, ok := catalog.Pricing[serviceID][countryCode]
	if !ok {
		return PriceQuote{}, ErrNoQuote
	}
	return quote, nil
}

// ensureCatalog returns the cached catalog, refreshing when stale. A
// refresh failure with a previous catalog in hand serves the stale copy.
func (s *PricingService) ensureCatalog(ctx context.Context) (*Catalog, bool, error) {
	s.mu.RLock()
	catalog := s.catalog
	s.mu.RUnlock()

	if catalog != nil && time.Since(catalog.FetchedAt) < s.ttl {
		return catalog, true, nil
	}

	fresh, err := s.Refresh(ctx)
	if err != nil {
		if catalog != nil {
			log.Printf("[PRICING] Refresh failed, serving last-known-good: %v", err)
			return catalog, true, nil
		}
		return nil, false, err
	}
	return fresh, false, nil
}

// Refresh fetches the upstream price table and replaces the cache.
func (s *PricingService) Refresh(ctx context.Context) (*Catalog, error) {
	prices, err := s.provider.Prices(ctx)
	if err != nil {
		return nil, err
	}

	catalog := buildCatalog(prices)
	log.Printf("[PRICING] Catalog refreshed: %d services, %d countries",
		len(catalog.Services), len(catalog.Countries))

	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()

	s.saveSnapshot(ctx, catalog)
	s.mirrorToDatabase(catalog)

	return catalog, nil
}

func buildCatalog(prices map[string]map[string]float64) *Catalog {
	catalog := &Catalog{
		Pricing:   make(map[string]map[string]PriceQuote),
		FetchedAt: time.Now(),
	}

	seenCountries := make(map[string]bool)
	for serviceName, countries := range prices {
		serviceID := normalizeServiceID(serviceName)
		if _, ok := catalog.Pricing[serviceID]; !ok {
			catalog.Services = append(catalog.Services, ServiceInfo{ID: serviceID, Name: serviceName})
			catalog.Pricing[serviceID] = make(map[string]PriceQuote)
		}

		for countryCode, price := range countries {
			code := strings.ToUpper(countryCode)
			if !seenCountries[code] {
				seenCountries[code] = true
				catalog.Countries = append(catalog.Countries, CountryInfo{Code: code, Name: countryName(code)})
			}

			markup := markupFor(price)
			catalog.Pricing[serviceID][code] = PriceQuote{
				APIPrice:  models.APIUnits(price),
				Markup:    markup,
				UserPrice: models.Cents(price * markup),
			}
		}
	}

	sort.Slice(catalog.Services, func(i, j int) bool {
		return catalog.Services[i].Name < catalog.Services[j].Name
	})
	sort.Slice(catalog.Countries, func(i, j int) bool {
		return catalog.Countries[i].Name < catalog.Countries[j].Name
	})

	return catalog
}

func normalizeServiceID(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func (s *PricingService) saveSnapshot(ctx context.Context, catalog *Catalog) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(catalog)
	if err != nil {
		return
	}
	// No TTL: the snapshot is the last-known-good fallback across restarts.
	if err := s.redis.Set(ctx, catalogSnapshotKey, data, 0).Err(); err != nil {
		log.Printf("[PRICING] Failed to persist catalog snapshot: %v", err)
	}
}

func (s *PricingService) loadSnapshot() {
	if s.redis == nil {
		return
	}
	data, err := s.redis.Get(context.Background(), catalogSnapshotKey).Result()
	if err != nil {
		return
	}
	var catalog Catalog
	if err := json.Unmarshal([]byte(data), &catalog); err != nil {
		log.Printf("[PRICING] Discarding corrupt catalog snapshot: %v", err)
		return
	}
	s.mu.Lock()
	s.catalog = &catalog
	s.mu.Unlock()
	log.Printf("[PRICING] Loaded catalog snapshot from redis (%d services)", len(catalog.Services))
}

// mirrorToDatabase keeps the service_prices table in step with the cache
// for reporting. Failures are logged, not fatal.
func (s *PricingService) mirrorToDatabase(catalog *Catalog) {
	if s.db == nil {
		return
	}

	now := catalog.FetchedAt.Unix()
	names := make(map[string]string, len(catalog.Services))
	for _, svc := range catalog.Services {
		names[svc.ID] = svc.Name
	}
	countryNames := make(map[string]string, len(catalog.Countries))
	for _, c := range catalog.Countries {
		countryNames[c.Code] = c.Name
	}

	for serviceID, countries := range catalog.Pricing {
		for code, quote := range countries {
			_, err := s.db.Exec(`
				INSERT INTO service_prices (service_id, service_name, country, country_name, api_price, user_price, available, last_updated)
				VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
				ON CONFLICT (service_id, country) DO UPDATE SET
					service_name = EXCLUDED.service_name,
					country_name = EXCLUDED.country_name,
					api_price = EXCLUDED.api_price,
					user_price = EXCLUDED.user_price,
					available = TRUE,
					last_updated = EXCLUDED.last_updated`,
				serviceID, names[serviceID], code, countryNames[code],
				quote.APIPrice, quote.UserPrice, now)
			if err != nil {
				log.Printf("[PRICING] Failed to mirror %s/%s: %v", serviceID, code, err)
				return
			}
		}
	}
}

// ListServices returns the catalog.
// @Summary List services, countries and pricing
// @Tags services
// @Produce json
// @Router /api/services [get]
func (s *PricingService) ListServices(w http.ResponseWriter, r *http.Request) {
	catalog, cached, err := s.ensureCatalog(r.Context())
	if err != nil {
		log.Printf("[PRICING] Failed to load services: %v", err)
		SendErrorResponse(w, "Failed to load services", http.StatusInternalServerError, nil)
		return
	}

	SendSuccessResponse(w, map[string]any{
		"services":  catalog.Services,
		"countries": catalog.Countries,
		"pricing":   pricingViews(catalog),
		"cached":    cached,
		"cacheAge":  time.Since(catalog.FetchedAt).Milliseconds(),
	})
}

// RefreshServices forces a catalog refetch.
// @Summary Refresh the pricing catalog
// @Tags services
// @Produce json
// @Router /api/services/refresh [post]
func (s *PricingService) RefreshServices(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.Refresh(r.Context())
	if err != nil {
		log.Printf("[PRICING] Forced refresh failed: %v", err)
		SendErrorResponse(w, "Failed to refresh services", http.StatusInternalServerError, nil)
		return
	}

	SendSuccessResponse(w, map[string]any{
		"message":   "Services cache refreshed",
		"services":  catalog.Services,
		"countries": catalog.Countries,
		"pricing":   pricingViews(catalog),
	})
}

// GetQuote returns the price for one service/country pair.
// @Summary Get a single price quote
// @Tags services
// @Produce json
// @Router /api/services/{service}/{country} [get]
func (s *PricingService) GetQuote(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	country := chi.URLParam(r, "country")

	quote, err := s.Quote(r.Context(), service, country)
	if err != nil {
		if errors.Is(err, ErrNoQuote) {
			SendErrorResponse(w, "Service or country not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[PRICING] Quote lookup failed for %s/%s: %v", service, country, err)
		SendErrorResponse(w, "Failed to get pricing", http.StatusInternalServerError, nil)
		return
	}

	SendSuccessResponse(w, map[string]any{
		"service": normalizeServiceID(service),
		"country": strings.ToUpper(country),
		"pricing": quote.View(),
	})
}

func pricingViews(catalog *Catalog) map[string]map[string]QuoteView {
	out := make(map[string]map[string]QuoteView, len(catalog.Pricing))
	for serviceID, countries := range catalog.Pricing {
		views := make(map[string]QuoteView, len(countries))
		for code, quote := range countries {
			views[code] = quote.View()
		}
		out[serviceID] = views
	}
	return out
}
