package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User mirrors the identity service's account record. Accounts are managed
// elsewhere; this service only reads them to resolve buyers.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(150)" json:"name"`
	Email     string         `gorm:"uniqueIndex;type:varchar(200)" json:"email"`
	Role      string         `gorm:"type:varchar(50);default:'user'" json:"role"`
	Status    string         `gorm:"type:varchar(50);default:'active'" json:"status"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// BuyerSummary is the public subset of a user returned with an order.
type BuyerSummary struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Summary returns the buyer view of the user.
func (u *User) Summary() BuyerSummary {
	return BuyerSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}
