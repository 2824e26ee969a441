package models

// User is a mini-app account keyed by the Telegram user id. Balance is in
// cents and is only ever changed by the ledger service; version backs the
// optimistic balance update.
type User struct {
	ID         int64  `json:"id" db:"id"`
	TelegramID string `json:"telegramId" db:"telegram_id"`
	Username   string `json:"username" db:"username"`
	FirstName  string `json:"firstName" db:"first_name"`
	LastName   string `json:"lastName" db:"last_name"`
	Balance    int64  `json:"-" db:"balance"` // cents
	Version    int    `json:"-" db:"version"`
	CreatedAt  int64  `json:"createdAt" db:"created_at"`
	UpdatedAt  int64  `json:"updatedAt" db:"updated_at"`
}

// UserView is the JSON shape returned to the mini app.
type UserView struct {
	ID         int64   `json:"id"`
	TelegramID string  `json:"telegramId"`
	Username   string  `json:"username,omitempty"`
	FirstName  string  `json:"firstName,omitempty"`
	LastName   string  `json:"lastName,omitempty"`
	Balance    float64 `json:"balance"`
}

func (u *User) View() UserView {
	return UserView{
		ID:         u.ID,
		TelegramID: u.TelegramID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Balance:    Dollars(u.Balance),
	}
}
