// Package finance ведёт счета и операции пользователя. Все методы работают
// только с данными текущего пользователя.
package finance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/finance-saas/internal/models"
	"github.com/magabrotheeeer/finance-saas/internal/storage"
)

var (
	// ErrNotFound — счёт или операция не найдены у пользователя.
	ErrNotFound = errors.New("not found")
	// ErrInvalid — некорректные данные счёта или операции.
	ErrInvalid = errors.New("invalid input")
)

const defaultCurrency = "AOA"

// Repository — хранилище счетов и операций.
type Repository interface {
	CreateAccount(ctx context.Context, a *models.Account) (*models.Account, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error)
	GetAccount(ctx context.Context, userID, id uuid.UUID) (*models.Account, error)
	UpdateAccount(ctx context.Context, userID, id uuid.UUID, name string, typ models.AccountType) (*models.Account, error)
	DeleteAccount(ctx context.Context, userID, id uuid.UUID) error

	CreateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error)
	GetTransaction(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error
	ListTransactions(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, int64, error)
}

// AccountInput — поля счёта, которые задаёт пользователь.
type AccountInput struct {
	Name     string             `json:"name" validate:"required,max=100"`
	Type     models.AccountType `json:"type" validate:"required,oneof=cash bank savings credit_card investment"`
	Currency string             `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// TransactionInput — поля операции, которые задаёт пользователь.
type TransactionInput struct {
	AccountID   uuid.UUID              `json:"accountId" validate:"required"`
	Kind        models.TransactionKind `json:"kind" validate:"required,oneof=income expense"`
	Amount      decimal.Decimal        `json:"amount"`
	Category    string                 `json:"category,omitempty" validate:"max=60"`
	Description string                 `json:"description,omitempty" validate:"max=500"`
	OccurredAt  *time.Time             `json:"occurredAt,omitempty"`
}

// Service — бухгалтерия пользователя.
type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log, now: time.Now}
}

func mapErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func validAccountType(t models.AccountType) bool {
	switch t {
	case models.AccountCash, models.AccountBank, models.AccountSavings, models.AccountCreditCard, models.AccountInvestment:
		return true
	}
	return false
}

// ListAccounts возвращает счета пользователя.
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*models.Account, error) {
	accounts, err := s.repo.ListAccounts(ctx, userID)
	if err != nil {
		return nil, mapErr("finance.ListAccounts", err)
	}
	return accounts, nil
}

// CreateAccount открывает счёт с нулевым балансом.
func (s *Service) CreateAccount(ctx context.Context, userID uuid.UUID, in AccountInput) (*models.Account, error) {
	const op = "finance.CreateAccount"
	name := strings.TrimSpace(in.Name)
	if name == "" || !validAccountType(in.Type) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	a, err := s.repo.CreateAccount(ctx, &models.Account{
		UserID:   userID,
		Name:     name,
		Type:     in.Type,
		Currency: currency,
		Balance:  decimal.Zero,
	})
	if err != nil {
		return nil, mapErr(op, err)
	}
	s.log.Debug("account created", slog.String("account_id", a.ID.String()))
	return a, nil
}

// UpdateAccount меняет имя и вид счёта. Валюта и баланс не редактируются.
func (s *Service) UpdateAccount(ctx context.Context, userID, id uuid.UUID, in AccountInput) (*models.Account, error) {
	const op = "finance.UpdateAccount"
	name := strings.TrimSpace(in.Name)
	if name == "" || !validAccountType(in.Type) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalid)
	}
	a, err := s.repo.UpdateAccount(ctx, userID, id, name, in.Type)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return a, nil
}

// DeleteAccount удаляет счёт вместе с его операциями.
func (s *Service) DeleteAccount(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.DeleteAccount(ctx, userID, id); err != nil {
		return mapErr("finance.DeleteAccount", err)
	}
	return nil
}

func (s *Service) buildTransaction(userID uuid.UUID, in TransactionInput) (*models.Transaction, error) {
	if in.Kind != models.KindIncome && in.Kind != models.KindExpense {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalid, in.Kind)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	if in.AccountID == uuid.Nil {
		return nil, fmt.Errorf("%w: accountId is required", ErrInvalid)
	}
	occurred := s.now()
	if in.OccurredAt != nil {
		occurred = *in.OccurredAt
	}
	return &models.Transaction{
		UserID:      userID,
		AccountID:   in.AccountID,
		Kind:        in.Kind,
		Amount:      in.Amount.Round(2),
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		OccurredAt:  occurred.UTC(),
	}, nil
}

// CreateTransaction записывает операцию и меняет баланс счёта.
func (s *Service) CreateTransaction(ctx context.Context, userID uuid.UUID, in TransactionInput) (*models.Transaction, error) {
	const op = "finance.CreateTransaction"
	t, err := s.buildTransaction(userID, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	created, err := s.repo.CreateTransaction(ctx, t)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return created, nil
}

// UpdateTransaction заменяет операцию; балансы затронутых счетов пересчитываются.
func (s *Service) UpdateTransaction(ctx context.Context, userID, id uuid.UUID, in TransactionInput) (*models.Transaction, error) {
	const op = "finance.UpdateTransaction"
	t, err := s.buildTransaction(userID, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	t.ID = id
	updated, err := s.repo.UpdateTransaction(ctx, t)
	if err != nil {
		return nil, mapErr(op, err)
	}
	return updated, nil
}

// DeleteTransaction удаляет операцию и откатывает её влияние на баланс.
func (s *Service) DeleteTransaction(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.DeleteTransaction(ctx, userID, id); err != nil {
		return mapErr("finance.DeleteTransaction", err)
	}
	return nil
}

// ListTransactions возвращает страницу операций пользователя, новые первыми.
func (s *Service) ListTransactions(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, int64, error) {
	const op = "finance.ListTransactions"
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, fmt.Errorf("%s: %w: to is before from", op, ErrInvalid)
	}
	f.Page = f.Page.Normalize()
	items, total, err := s.repo.ListTransactions(ctx, f)
	if err != nil {
		return nil, 0, mapErr(op, err)
	}
	return items, total, nil
}
