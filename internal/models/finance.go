package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType — вид счёта.
type AccountType string

// Виды счетов.
const (
	AccountCash       AccountType = "cash"
	AccountBank       AccountType = "bank"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountInvestment AccountType = "investment"
)

// Account — счёт пользователя.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"userId"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TransactionKind — направление операции.
type TransactionKind string

// Направления операций.
const (
	KindIncome  TransactionKind = "income"
	KindExpense TransactionKind = "expense"
)

// Transaction — операция по счёту.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	AccountID   uuid.UUID       `json:"accountId"`
	Kind        TransactionKind `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	OccurredAt  time.Time       `json:"occurredAt"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// BalanceDelta — изменение баланса счёта от операции.
func (t *Transaction) BalanceDelta() decimal.Decimal {
	if t.Kind == KindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// TransactionFilter — параметры выборки операций пользователя.
type TransactionFilter struct {
	UserID    uuid.UUID
	AccountID *uuid.UUID
	From      *time.Time
	To        *time.Time
	Page
}
