package repository

import (
	"github.com/ManuelReschke/CourseFox/app/models"
	"gorm.io/gorm"
)

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository creates a new course repository instance
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) Create(course *models.Course) error {
	return r.db.Create(course).Error
}

func (r *courseRepository) GetBySlug(slug string) (*models.Course, error) {
	var course models.Course
	if err := r.db.Where("slug = ?", slug).First(&course).Error; err != nil {
		return nil, err
	}
	return &course, nil
}
