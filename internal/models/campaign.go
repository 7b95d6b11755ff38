package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType — способ расчёта скидки.
type DiscountType string

// Способы расчёта скидки.
const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Campaign — промокампания с кодом скидки.
type Campaign struct {
	ID              uuid.UUID       `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	DiscountType    DiscountType    `json:"discountType"`
	DiscountValue   decimal.Decimal `json:"discountValue"`
	ValidFrom       time.Time       `json:"validFrom"`
	ValidUntil      time.Time       `json:"validUntil"`
	UsageLimit      *int            `json:"usageLimit,omitempty"`
	UsageCount      int             `json:"usageCount"`
	ApplicablePlans []PlanType      `json:"applicablePlans"`
	IsActive        bool            `json:"isActive"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Exhausted сообщает, что лимит использований достигнут.
func (c *Campaign) Exhausted() bool {
	return c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit
}

// AppliesTo сообщает, действует ли кампания для плана. Пустой список означает «для всех».
func (c *Campaign) AppliesTo(planType PlanType) bool {
	return len(c.ApplicablePlans) == 0 || slices.Contains(c.ApplicablePlans, planType)
}

// Discount возвращает скидку для цены price. Скидка не превышает цену.
func (c *Campaign) Discount(price decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		d = price.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountFixed:
		d = c.DiscountValue
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(price) {
		return price
	}
	return d
}
