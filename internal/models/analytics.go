package models

import "github.com/shopspring/decimal"

// Analytics — сводка для дашборда администратора.
type Analytics struct {
	UsersByStatus        map[SubscriptionStatus]int64 `json:"usersByStatus"`
	UsersByPlan          map[PlanType]int64           `json:"usersByPlan"`
	TotalUsers           int64                        `json:"totalUsers"`
	NewUsersLast30Days   int64                        `json:"newUsersLast30Days"`
	RevenueThisMonth     decimal.Decimal              `json:"revenueThisMonth"`
	RevenueTotal         decimal.Decimal              `json:"revenueTotal"`
	PendingConfirmations int64                        `json:"pendingConfirmations"`
	ActiveCampaigns      int64                        `json:"activeCampaigns"`
}

// Usage — текущее использование лимитов пользователем.
type Usage struct {
	PlanType     PlanType   `json:"planType"`
	Accounts     UsageValue `json:"accounts"`
	Transactions UsageValue `json:"transactionsThisMonth"`
}

// UsageValue — текущее значение и лимит; Limit = -1 означает без ограничений.
type UsageValue struct {
	Current int64 `json:"current"`
	Limit   int   `json:"limit"`
	Allowed bool  `json:"allowed"`
}
