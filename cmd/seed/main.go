// Command seed creates a demo buyer and course for local development and
// prints an identity token for the buyer.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CourseFox/app/models"
	"github.com/ManuelReschke/CourseFox/app/repository"
	"github.com/ManuelReschke/CourseFox/internal/pkg/database"
	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
)

func main() {
	email := flag.String("email", "buyer@example.com", "demo buyer email")
	slug := flag.String("course", "go-for-backends", "demo course slug")
	price := flag.Int64("price", 2999, "course price in minor units")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	env.SetupEnvFile()
	database.SetupDatabase()
	repos := repository.NewFactory(database.GetDB())

	user, err := repos.GetUserRepository().GetByEmail(*email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = &models.User{Name: "Demo Buyer", Email: *email, Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
		err = repos.GetUserRepository().Create(user)
	}
	if err != nil {
		log.Fatalf("failed to seed user: %v", err)
	}

	course, err := repos.GetCourseRepository().GetBySlug(*slug)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		course = &models.Course{
			Title:       "Go for Backends",
			Slug:        *slug,
			Price:       *price,
			Currency:    env.GetEnv("PAYMENT_CURRENCY", "INR"),
			IsPublished: true,
		}
		err = repos.GetCourseRepository().Create(course)
	}
	if err != nil {
		log.Fatalf("failed to seed course: %v", err)
	}

	cfg := middleware.IdentityConfigFromEnv()
	if cfg.Secret == "" {
		log.Fatal("IDENTITY_JWT_SECRET is not set")
	}
	claims := middleware.IdentityClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(*ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	fmt.Printf("user_id=%d course_id=%d\n", user.ID, course.ID)
	fmt.Printf("Authorization: Bearer %s\n", token)
}
