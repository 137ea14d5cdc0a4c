package models

import "time"

const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusRevoked   = "revoked"
)

// Enrollment grants a user access to a course. The (user_id, course_id)
// unique index is the hard guarantee against double enrollment.
// PaymentID is nil for admin-granted enrollments.
type Enrollment struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index:ux_enrollments_user_course,unique,priority:1" json:"user_id"`
	CourseID         uint      `gorm:"not null;index:ux_enrollments_user_course,unique,priority:2;index" json:"course_id"`
	PaymentID        *uint     `gorm:"index" json:"payment_id,omitempty"`
	Status           string    `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CompletedLessons int       `gorm:"not null;default:0" json:"completed_lessons"`
	ProgressPercent  int       `gorm:"not null;default:0" json:"progress_percent"`
	EnrolledAt       time.Time `gorm:"not null" json:"enrolled_at"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
