package models

// Transaction kinds.
const (
	TransactionDeposit  = "deposit"
	TransactionPurchase = "purchase"
	TransactionRefund   = "refund"
)

// Transaction statuses. Completed and failed rows are immutable; only a
// pending row may move forward.
const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
)

// Transaction is an append-only ledger entry. Exactly one row accompanies
// every balance change, with the same signed amount in cents.
type Transaction struct {
	ID          int64  `json:"id" db:"id"`
	UserID      int64  `json:"userId" db:"user_id"`
	Type        string `json:"type" db:"type"`
	Amount      int64  `json:"-" db:"amount"` // cents, negative for debits
	Status      string `json:"status" db:"status"`
	Description string `json:"description" db:"description"`
	PaymentID   string `json:"paymentId,omitempty" db:"payment_id"`
	CreatedAt   int64  `json:"createdAt" db:"created_at"`
}

// TransactionView renders the amount in dollars for the client.
type TransactionView struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
	CreatedAt   int64   `json:"createdAt"`
}

func (t *Transaction) View() TransactionView {
	return TransactionView{
		ID:          t.ID,
		Type:        t.Type,
		Amount:      Dollars(t.Amount),
		Status:      t.Status,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
}
