package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/ekenegodwins22-eng/verifyhub/internal/models"
)

// LedgerService is the sole mutator of user balances. Every balance change
// happens inside one SQL transaction holding a row lock on the user, and
// appends exactly one completed transaction row with the same signed amount.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// InsufficientFundsError carries the exact shortfall so the client can
// prompt a deposit. Amounts are cents.
type InsufficientFundsError struct {
	Required int64
	Balance  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, available %d", e.Required, e.Balance)
}

// DebitForPurchase atomically checks and debits amount cents from the
// user, recording a completed purchase transaction. Returns the new
// balance. Two concurrent calls against an insufficient combined balance
// cannot both succeed: the row lock serializes them.
func (s *LedgerService) DebitForPurchase(userID, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: non-positive debit amount %d", amount)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	balance, version, err := s.lockUser(tx, userID)
	if err != nil {
		return 0, err
	}

	if balance < amount {
		return 0, &InsufficientFundsError{Required: amount, Balance: balance}
	}

	newBalance := balance - amount
	if err := s.updateUserBalance(tx, userID, newBalance, version); err != nil {
		return 0, err
	}

	if err := s.appendTransaction(tx, userID, models.TransactionPurchase, -amount, description); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	log.Printf("[LEDGER] Debited %d cents from user %d, balance %d", amount, userID, newBalance)
	return newBalance, nil
}

// Credit atomically adds amount cents to the user's balance with a
// completed transaction row of the given kind (deposit or refund).
func (s *LedgerService) Credit(userID, amount int64, kind, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: non-positive credit amount %d", amount)
	}
	if kind != models.TransactionDeposit && kind != models.TransactionRefund {
		return 0, fmt.Errorf("ledger: invalid credit kind %q", kind)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	balance, version, err := s.lockUser(tx, userID)
	if err != nil {
		return 0, err
	}

	newBalance := balance + amount
	if err := s.updateUserBalance(tx, userID, newBalance, version); err != nil {
		return 0, err
	}

	if err := s.appendTransaction(tx, userID, kind, amount, description); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	log.Printf("[LEDGER] Credited %d cents (%s) to user %d, balance %d", amount, kind, userID, newBalance)
	return newBalance, nil
}

func (s *LedgerService) lockUser(tx *sql.Tx, userID int64) (balance int64, version int, err error) {
	err = tx.QueryRow(`
		SELECT balance, version
		FROM users
		WHERE id = $1
		FOR UPDATE`, userID).Scan(&balance, &version)
	return balance, version, err
}

func (s *LedgerService) updateUserBalance(tx *sql.Tx, userID, newBalance int64, version int) error {
	result, err := tx.Exec(`
		UPDATE users
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now().Unix(), userID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for user %d", userID)
	}
	return nil
}

func (s *LedgerService) appendTransaction(tx *sql.Tx, userID int64, kind string, amount int64, description string) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (user_id, type, amount, status, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, kind, amount, models.TransactionCompleted, description, time.Now().Unix())
	return err
}

// Transactions lists the user's ledger entries, newest first.
func (s *LedgerService) Transactions(userID int64) ([]models.Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, type, amount, status, description, payment_id, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status,
			&t.Description, &t.PaymentID, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
