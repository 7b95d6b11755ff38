package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethodCode — код способа оплаты.
type PaymentMethodCode string

// Способы оплаты.
const (
	MethodStripe           PaymentMethodCode = "stripe"
	MethodMulticaixa       PaymentMethodCode = "multicaixa_express"
	MethodBankTransfer     PaymentMethodCode = "bank_transfer"
	MethodPaymentReference PaymentMethodCode = "payment_reference"
)

// PaymentMethodKind разделяет шлюзовую и ручную оплату.
type PaymentMethodKind string

// Виды способов оплаты.
const (
	MethodKindGateway PaymentMethodKind = "gateway"
	MethodKindManual  PaymentMethodKind = "manual"
)

// PaymentMethod — способ оплаты из справочника.
type PaymentMethod struct {
	ID           uuid.UUID         `json:"id"`
	Code         PaymentMethodCode `json:"code"`
	Name         string            `json:"name"`
	Kind         PaymentMethodKind `json:"kind"`
	Instructions string            `json:"instructions"`
	IsActive     bool              `json:"isActive"`
}

// PaymentStatus — состояние платёжной транзакции.
type PaymentStatus string

// Состояния платёжной транзакции.
const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// PaymentTransaction — попытка оплаты плана.
type PaymentTransaction struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"userId"`
	PlanID          uuid.UUID         `json:"planId"`
	PlanType        PlanType          `json:"planType"`
	PaymentMethodID uuid.UUID         `json:"paymentMethodId"`
	MethodCode      PaymentMethodCode `json:"methodCode"`
	CampaignID      *uuid.UUID        `json:"campaignId,omitempty"`
	Amount          decimal.Decimal   `json:"amount"`
	Discount        decimal.Decimal   `json:"discount"`
	FinalAmount     decimal.Decimal   `json:"finalAmount"`
	Currency        string            `json:"currency"`
	Status          PaymentStatus     `json:"status"`
	ExternalRef     *string           `json:"externalRef,omitempty"`
	CheckoutURL     string            `json:"checkoutUrl,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`

	Confirmation *PaymentConfirmation `json:"confirmation,omitempty"`
	UserEmail    string               `json:"userEmail,omitempty"`
}

// ConfirmationStatus — состояние подтверждения ручной оплаты.
type ConfirmationStatus string

// Состояния подтверждения.
const (
	ConfirmationPending  ConfirmationStatus = "pending"
	ConfirmationApproved ConfirmationStatus = "approved"
	ConfirmationRejected ConfirmationStatus = "rejected"
)

// PaymentConfirmation — доказательство ручной оплаты, которое проверяет администратор.
type PaymentConfirmation struct {
	ID              uuid.UUID          `json:"id"`
	TransactionID   uuid.UUID          `json:"transactionId"`
	UserID          uuid.UUID          `json:"userId"`
	Reference       string             `json:"reference"`
	ProofURL        string             `json:"proofUrl"`
	Notes           string             `json:"notes"`
	Status          ConfirmationStatus `json:"status"`
	VerifiedBy      *uuid.UUID         `json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time         `json:"verifiedAt,omitempty"`
	RejectionReason *string            `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// ApprovePaymentParams — данные для атомарного одобрения платежа.
type ApprovePaymentParams struct {
	TransactionID uuid.UUID
	AdminID       *uuid.UUID
	Now           time.Time
	PaidUntil     time.Time
}

// RejectPaymentParams — данные для отклонения платежа.
type RejectPaymentParams struct {
	TransactionID uuid.UUID
	AdminID       uuid.UUID
	Reason        string
	Now           time.Time
}
