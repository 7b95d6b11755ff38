package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationKind — шаблон уведомления.
type NotificationKind string

// Шаблоны уведомлений.
const (
	NotifyTrial3Days  NotificationKind = "trial_3_days"
	NotifyTrial1Day   NotificationKind = "trial_1_day"
	NotifyTrialToday  NotificationKind = "trial_today"
	NotifyTrialExpire NotificationKind = "trial_expired"

	NotifyPaymentApproved NotificationKind = "payment_approved"
	NotifyPaymentRejected NotificationKind = "payment_rejected"
)

// Notification — сообщение в очереди уведомлений.
type Notification struct {
	UserID     uuid.UUID      `json:"userId"`
	TemplateID string         `json:"templateId"`
	Params     map[string]any `json:"params"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Email — письмо, готовое к отправке.
type Email struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Tag      string
}
