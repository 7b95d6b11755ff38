// Package models содержит доменные структуры сервиса: пользователей и администраторов,
// тарифные планы, счета и операции, платежи, кампании и журнал аудита.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/finance-saas/internal/lib/period"
)

// SubscriptionStatus — состояние подписки пользователя.
type SubscriptionStatus string

// Состояния подписки.
const (
	StatusTrialing     SubscriptionStatus = "trialing"
	StatusActive       SubscriptionStatus = "active"
	StatusPastDue      SubscriptionStatus = "past_due"
	StatusCanceled     SubscriptionStatus = "canceled"
	StatusTrialExpired SubscriptionStatus = "trial_expired"
)

// Valid сообщает, что статус входит в допустимый набор.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusCanceled, StatusTrialExpired:
		return true
	}
	return false
}

// Restricted сообщает, что с этим статусом финансовые разделы недоступны до оплаты.
func (s SubscriptionStatus) Restricted() bool {
	return s == StatusTrialExpired || s == StatusPastDue || s == StatusCanceled
}

// User — зарегистрированный пользователь (арендатор).
type User struct {
	ID                 uuid.UUID          `json:"id"`
	Email              string             `json:"email"`
	Name               string             `json:"name"`
	PasswordHash       string             `json:"-"`
	Timezone           string             `json:"timezone"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus"`
	PlanType           PlanType           `json:"planType"`
	// TrialEndsAt — конец пробного периода, а после оплаты — конец оплаченного периода.
	TrialEndsAt      time.Time `json:"trialEndsAt"`
	StripeCustomerID *string   `json:"stripeCustomerId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Location возвращает часовой пояс пользователя; неизвестный пояс заменяется поясом по умолчанию.
func (u *User) Location() *time.Location {
	return period.Location(u.Timezone, period.Location(period.DefaultTimezone, time.UTC))
}

// UserFilter — параметры выборки пользователей в админке.
type UserFilter struct {
	Status   SubscriptionStatus
	PlanType PlanType
	Search   string
	Page
}

// UserPatch — изменения пользователя, вносимые администратором. nil означает «не менять».
type UserPatch struct {
	Name               *string
	SubscriptionStatus *SubscriptionStatus
	PlanType           *PlanType
	TrialEndsAt        *time.Time
}

// Page — параметры постраничной выборки.
type Page struct {
	Limit  int
	Offset int
}

// Normalize ограничивает размер страницы.
func (p Page) Normalize() Page {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
