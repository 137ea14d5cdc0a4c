package models

import (
	"time"

	"gorm.io/gorm"
)

// Course is owned by the catalog. Payments only read its price and bump the
// Students counter once per successful enrollment.
type Course struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Slug        string         `gorm:"type:varchar(191);uniqueIndex" json:"slug"`
	Price       int64          `gorm:"not null;default:0" json:"price"` // minor currency units
	Currency    string         `gorm:"type:varchar(10);not null;default:'INR'" json:"currency"`
	Students    int            `gorm:"not null;default:0" json:"students"`
	IsPublished bool           `gorm:"default:false;index" json:"is_published"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// CourseSummary is the snapshot returned alongside orders and verifications.
type CourseSummary struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
	Students int    `json:"students"`
}

func (c *Course) Summary() CourseSummary {
	return CourseSummary{
		ID:       c.ID,
		Title:    c.Title,
		Slug:     c.Slug,
		Price:    c.Price,
		Currency: c.Currency,
		Students: c.Students,
	}
}

// IsPurchasable reports whether the course can be bought through the gateway.
func (c *Course) IsPurchasable() bool {
	return c.IsPublished && c.Price > 0
}
