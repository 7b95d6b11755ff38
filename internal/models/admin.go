package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminRole — роль сотрудника в админке.
type AdminRole string

// Роли администраторов.
const (
	RoleSuperAdmin AdminRole = "super_admin"
	RoleAdmin      AdminRole = "admin"
	RoleSupport    AdminRole = "support"
)

// AdminUser — учётная запись администратора, отдельная от пользователей.
type AdminUser struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         AdminRole  `json:"role"`
	IsActive     bool       `json:"isActive"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}
