package models

// Order statuses. waiting_sms is the only non-terminal state; an order
// never moves out of received, expired or cancelled.
const (
	OrderWaitingSMS = "waiting_sms"
	OrderReceived   = "received"
	OrderExpired    = "expired"
	OrderCancelled  = "cancelled"
)

// Order is a rented number waiting for its one-time code. APIPrice is in
// provider price units (four decimals), UserPrice in cents. Orders are
// never deleted.
type Order struct {
	ID              int64  `json:"id" db:"id"`
	UserID          int64  `json:"userId" db:"user_id"`
	Service         string `json:"service" db:"service"`
	Country         string `json:"country" db:"country"`
	PhoneNumber     string `json:"phoneNumber" db:"phone_number"`
	ProviderOrderID string `json:"-" db:"provider_order_id"`
	APIPrice        int64  `json:"-" db:"api_price"`
	UserPrice       int64  `json:"-" db:"user_price"`
	SMSCode         string `json:"smsCode,omitempty" db:"sms_code"`
	Status          string `json:"status" db:"status"`
	ExpiresAt       int64  `json:"expiresAt" db:"expires_at"`
	CreatedAt       int64  `json:"createdAt" db:"created_at"`
	UpdatedAt       int64  `json:"updatedAt" db:"updated_at"`
}

// Terminal reports whether the order can still transition.
func (o *Order) Terminal() bool {
	return o.Status != OrderWaitingSMS
}

// ExpiredAt reports whether the hold has lapsed at the given epoch second.
func (o *Order) ExpiredAt(now int64) bool {
	return o.Status == OrderWaitingSMS && now > o.ExpiresAt
}

// OrderView is the JSON shape returned to the mini app.
type OrderView struct {
	ID          int64   `json:"id"`
	Service     string  `json:"service"`
	Country     string  `json:"country"`
	PhoneNumber string  `json:"phoneNumber"`
	UserPrice   float64 `json:"userPrice"`
	SMSCode     string  `json:"smsCode,omitempty"`
	Status      string  `json:"status"`
	ExpiresAt   int64   `json:"expiresAt"`
	CreatedAt   int64   `json:"createdAt"`
}

func (o *Order) View() OrderView {
	return OrderView{
		ID:          o.ID,
		Service:     o.Service,
		Country:     o.Country,
		PhoneNumber: o.PhoneNumber,
		UserPrice:   Dollars(o.UserPrice),
		SMSCode:     o.SMSCode,
		Status:      o.Status,
		ExpiresAt:   o.ExpiresAt,
		CreatedAt:   o.CreatedAt,
	}
}
