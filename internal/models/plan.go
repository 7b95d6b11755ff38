package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanType — тип тарифного плана.
type PlanType string

// Тарифные планы.
const (
	PlanBasic      PlanType = "basic"
	PlanPremium    PlanType = "premium"
	PlanEnterprise PlanType = "enterprise"
)

// Unlimited — значение лимита, снимающее ограничение.
const Unlimited = -1

// Plan — тарифный план.
type Plan struct {
	ID              uuid.UUID       `json:"id"`
	Type            PlanType        `json:"type"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	MaxAccounts     int             `json:"maxAccounts"`
	MaxTransactions int             `json:"maxTransactions"`
	IsActive        bool            `json:"isActive"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Limits возвращает лимиты плана.
func (p *Plan) Limits() PlanLimits {
	return PlanLimits{MaxAccounts: p.MaxAccounts, MaxTransactions: p.MaxTransactions}
}

// PlanLimits — лимиты плана в том виде, в каком они хранятся в настройках.
type PlanLimits struct {
	MaxAccounts     int `json:"maxAccounts"`
	MaxTransactions int `json:"maxTransactions"`
}

// PlanUpdate — изменение плана администратором.
type PlanUpdate struct {
	Name            *string
	Price           *decimal.Decimal
	MaxAccounts     *int
	MaxTransactions *int
	IsActive        *bool
}

// SettingPlanLimits возвращает ключ настройки с лимитами плана.
func SettingPlanLimits(planType PlanType) string {
	return "plan_limits:" + string(planType)
}
