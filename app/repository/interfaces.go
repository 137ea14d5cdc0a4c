package repository

import (
	"github.com/ManuelReschke/CourseFox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByEmail(email string) (*models.User, error)
}

// CourseRepository defines the interface for course catalog operations
type CourseRepository interface {
	Create(course *models.Course) error
	GetBySlug(slug string) (*models.Course, error)
}

// Repositories holds all repository instances
type Repositories struct {
	User   UserRepository
	Course CourseRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:   NewUserRepository(db),
		Course: NewCourseRepository(db),
	}
}
