package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/viper"

	"github.com/ekenegodwins22-eng/verifyhub/internal/middleware"
	"github.com/ekenegodwins22-eng/verifyhub/internal/models"
	"github.com/ekenegodwins22-eng/verifyhub/internal/provider"
)

// OrderService owns the order lifecycle: the debit-acquire-create purchase
// flow and the waiting_sms state machine. Expiry is evaluated lazily on
// every status read; the optional sweeper only applies the same transition
// earlier.
type OrderService struct {
	db        *sql.DB
	ledger    *LedgerService
	pricing   *PricingService
	provider  provider.Adapter
	validator *ValidationHelper

	holdTTL time.Duration
}

// BuyRequest selects what number to rent.
type BuyRequest struct {
	Service string `json:"service" validate:"required"`
	Country string `json:"country" validate:"required,min=2,max=3"`
}

func NewOrderService(db *sql.DB, ledger *LedgerService, pricing *PricingService, adapter provider.Adapter) *OrderService {
	viper.SetDefault("orders.hold_ttl", 10*time.Minute)
	viper.SetDefault("orders.sweep_interval", time.Duration(0))

	return &OrderService{
		db:        db,
		ledger:    ledger,
		pricing:   pricing,
		provider:  adapter,
		validator: NewValidationHelper(),
		holdTTL:   viper.GetDuration("orders.hold_ttl"),
	}
}

// Buy rents a number: quote, atomic debit, provider acquire, order insert.
// A provider failure after the debit is compensated with a refund before
// the error response, so balance and orders never disagree.
// @Summary Buy an SMS number
// @Tags orders
// @Accept json
// @Produce json
// @Router /api/orders/buy [post]
func (s *OrderService) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Not authenticated", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req BuyRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Missing service or country", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Missing service or country", http.StatusBadRequest, err)
		return
	}

	service := strings.ToLower(req.Service)
	country := strings.ToUpper(req.Country)

	quote, err := s.pricing.Quote(r.Context(), service, country)
	if err != nil {
		if errors.Is(err, ErrNoQuote) {
			SendErrorResponse(w, "Service or country not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ORDER] Quote failed for %s/%s: %v", service, country, err)
		SendErrorResponse(w, "Pricing unavailable", http.StatusServiceUnavailable, nil)
		return
	}

	description := fmt.Sprintf("%s - %s", service, country)

	newBalance, err := s.ledger.DebitForPurchase(userID, quote.UserPrice, description)
	if err != nil {
		var insufficientErr *InsufficientFundsError
		if errors.As(err, &insufficientErr) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"success":  false,
				"error":    "Insufficient balance",
				"required": models.Dollars(insufficientErr.Required),
				"balance":  models.Dollars(insufficientErr.Balance),
			})
			return
		}
		log.Printf("[ORDER] Debit failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}

	acquired, err := s.provider.AcquireNumber(r.Context(), service, country)
	if err != nil {
		log.Printf("[ORDER] Acquire failed for user %d (%s/%s), refunding: %v", userID, service, country, err)
		s.refund(userID, quote.UserPrice, description)
		SendErrorResponse(w, "Number provider unavailable, please try again", http.StatusBadRequest, nil)
		return
	}

	now := time.Now().Unix()
	order := models.Order{
		UserID:          userID,
		Service:         service,
		Country:         country,
		PhoneNumber:     acquired.Number,
		ProviderOrderID: acquired.OrderID,
		APIPrice:        quote.APIPrice,
		UserPrice:       quote.UserPrice,
		Status:          models.OrderWaitingSMS,
		ExpiresAt:       now + int64(s.holdTTL.Seconds()),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.QueryRow(`
		INSERT INTO orders (user_id, service, country, phone_number, provider_order_id,
			api_price, user_price, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id`,
		order.UserID, order.Service, order.Country, order.PhoneNumber, order.ProviderOrderID,
		order.APIPrice, order.UserPrice, order.Status, order.ExpiresAt, now,
	).Scan(&order.ID)
	if err != nil {
		log.Printf("[ORDER] Insert failed for user %d, refunding: %v", userID, err)
		s.refund(userID, quote.UserPrice, description)
		s.releaseBestEffort(order.ProviderOrderID)
		SendErrorResponse(w, "Failed to create order", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ORDER] Order %d created for user %d: %s/%s -> %s", order.ID, userID, service, country, order.PhoneNumber)
	SendSuccessResponse(w, map[string]any{
		"order":      order.View(),
		"newBalance": models.Dollars(newBalance),
	})
}

func (s *OrderService) refund(userID, amount int64, description string) {
	if _, err := s.ledger.Credit(userID, amount, models.TransactionRefund, "Refund: "+description); err != nil {
		// The debit committed but compensation failed; this needs operator
		// attention, so keep the full context in the log.
		log.Printf("[ORDER] REFUND FAILED for user %d amount %d (%s): %v", userID, amount, description, err)
	}
}

func (s *OrderService) releaseBestEffort(providerOrderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.provider.Release(ctx, providerOrderID); err != nil {
		log.Printf("[ORDER] Release failed for provider order %s: %v", providerOrderID, err)
	}
}

// CheckSMS polls one order for its code, applying lazy expiry. Terminal
// orders are returned unchanged however many times this is called.
// @Summary Check for the SMS code
// @Tags orders
// @Produce json
// @Router /api/orders/{orderId}/sms [get]
func (s *OrderService) CheckSMS(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Not authenticated", http.StatusUnauthorized, nil)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Order not found", http.StatusNotFound, nil)
		return
	}

	order, err := s.getOrder(orderID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Order not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ORDER] Lookup failed for order %d: %v", orderID, err)
		SendErrorResponse(w, "Failed to check SMS", http.StatusInternalServerError, nil)
		return
	}

	s.advance(r.Context(), order)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case order.SMSCode != "":
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"code":    order.SMSCode,
			"status":  models.OrderReceived,
		})
	default:
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"status":  order.Status,
		})
	}
}

// advance runs one step of the state machine on a waiting order: expire
// past the hold deadline, otherwise poll the provider. Provider errors
// leave the order untouched; the client simply retries.
func (s *OrderService) advance(ctx context.Context, order *models.Order) {
	if order.Terminal() || order.SMSCode != "" {
		return
	}

	now := time.Now().Unix()
	if order.ExpiredAt(now) {
		if s.transition(order, models.OrderExpired, "") {
			log.Printf("[ORDER] Order %d expired", order.ID)
			s.releaseBestEffort(order.ProviderOrderID)
		}
		return
	}

	result, err := s.provider.PollCode(ctx, order.ProviderOrderID)
	if err != nil {
		log.Printf("[ORDER] Poll failed for order %d: %v", order.ID, err)
		return
	}

	if result.Code != "" {
		if s.transition(order, models.OrderReceived, result.Code) {
			log.Printf("[ORDER] Order %d received code", order.ID)
		}
	}
}

// transition persists a terminal state. The status guard in the UPDATE
// makes transitions one-way even under concurrent polls; the in-memory
// order is refreshed from the row when someone else won the race.
func (s *OrderService) transition(order *models.Order, status, smsCode string) bool {
	now := time.Now().Unix()
	result, err := s.db.Exec(`
		UPDATE orders
		SET status = $1, sms_code = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		status, smsCode, now, order.ID, models.OrderWaitingSMS)
	if err != nil {
		log.Printf("[ORDER] Transition to %s failed for order %d: %v", status, order.ID, err)
		return false
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		if fresh, err := s.getOrder(order.ID, order.UserID); err == nil {
			*order = *fresh
		}
		return false
	}

	order.Status = status
	order.SMSCode = smsCode
	order.UpdatedAt = now
	return true
}

func (s *OrderService) getOrder(orderID, userID int64) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRow(`
		SELECT id, user_id, service, country, phone_number, provider_order_id,
			api_price, user_price, sms_code, status, expires_at, created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2`, orderID, userID,
	).Scan(&o.ID, &o.UserID, &o.Service, &o.Country, &o.PhoneNumber, &o.ProviderOrderID,
		&o.APIPrice, &o.UserPrice, &o.SMSCode, &o.Status, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns the user's orders, newest first.
// @Summary List orders
// @Tags orders
// @Produce json
// @Router /api/orders [get]
func (s *OrderService) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Not authenticated", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, user_id, service, country, phone_number, provider_order_id,
			api_price, user_price, sms_code, status, expires_at, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY id DESC`, userID)
	if err != nil {
		log.Printf("[ORDER] List failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to get orders", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	views := []models.OrderView{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Service, &o.Country, &o.PhoneNumber, &o.ProviderOrderID,
			&o.APIPrice, &o.UserPrice, &o.SMSCode, &o.Status, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			log.Printf("[ORDER] List scan failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to get orders", http.StatusInternalServerError, nil)
			return
		}
		views = append(views, o.View())
	}
	if err := rows.Err(); err != nil {
		log.Printf("[ORDER] List iteration failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to get orders", http.StatusInternalServerError, nil)
		return
	}

	SendSuccessResponse(w, map[string]any{"orders": views})
}

// Get returns one order owned by the authenticated user.
// @Summary Get an order
// @Tags orders
// @Produce json
// @Router /api/orders/{orderId} [get]
func (s *OrderService) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Not authenticated", http.StatusUnauthorized, nil)
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Order not found", http.StatusNotFound, nil)
		return
	}

	order, err := s.getOrder(orderID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Order not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[ORDER] Get failed for order %d: %v", orderID, err)
		SendErrorResponse(w, "Failed to get order", http.StatusInternalServerError, nil)
		return
	}

	SendSuccessResponse(w, map[string]any{"order": order.View()})
}

// Transactions lists the user's ledger history.
// @Summary List transactions
// @Tags orders
// @Produce json
// @Router /api/transactions [get]
func (s *OrderService) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Not authenticated", http.StatusUnauthorized, nil)
		return
	}

	transactions, err := s.ledger.Transactions(userID)
	if err != nil {
		log.Printf("[ORDER] Transaction list failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to get transactions", http.StatusInternalServerError, nil)
		return
	}

	views := []models.TransactionView{}
	for i := range transactions {
		views = append(views, transactions[i].View())
	}
	SendSuccessResponse(w, map[string]any{"transactions": views})
}

// StartSweeper expires stale waiting_sms holds in the background so
// provider numbers are released without waiting for the next client poll.
// Disabled when orders.sweep_interval is zero.
func (s *OrderService) StartSweeper(ctx context.Context) {
	interval := viper.GetDuration("orders.sweep_interval")
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Printf("[ORDER] Expiry sweeper running every %s", interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepExpired()
			}
		}
	}()
}

func (s *OrderService) sweepExpired() {
	now := time.Now().Unix()
	rows, err := s.db.Query(`
		SELECT id, user_id, provider_order_id
		FROM orders
		WHERE status = $1 AND expires_at < $2`,
		models.OrderWaitingSMS, now)
	if err != nil {
		log.Printf("[ORDER] Sweep query failed: %v", err)
		return
	}
	defer rows.Close()

	type hold struct {
		id, userID      int64
		providerOrderID string
	}
	var stale []hold
	for rows.Next() {
		var h hold
		if err := rows.Scan(&h.id, &h.userID, &h.providerOrderID); err != nil {
			log.Printf("[ORDER] Sweep scan failed: %v", err)
			return
		}
		stale = append(stale, h)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[ORDER] Sweep iteration failed: %v", err)
		return
	}

	for _, h := range stale {
		order := models.Order{ID: h.id, UserID: h.userID, ProviderOrderID: h.providerOrderID, Status: models.OrderWaitingSMS}
		if s.transition(&order, models.OrderExpired, "") {
			log.Printf("[ORDER] Sweeper expired order %d", h.id)
			s.releaseBestEffort(h.providerOrderID)
		}
	}
}
