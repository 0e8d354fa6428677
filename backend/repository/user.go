// Package repository provides access to persistent user records. The
// authentication core receives a UserRepository by injection and never
// touches the database directly.
package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"microblog/backend/models"
)

// ErrNotFound is returned when no user matches the query. Callers must not
// leak the distinction between a missing user and a bad credential.
var ErrNotFound = errors.New("user not found")

type UserRepository interface {
	Create(user *models.User) error
	FindByUsername(username string) (*models.User, error)
	FindBySubject(subject string) (*models.User, error)
	// UpdateTOTPEnrollment stores a verified TOTP secret and flips the
	// enabled flag in one write.
	UpdateTOTPEnrollment(subject, secret string) (*models.User, error)
	// DisableTOTP clears the secret and the enabled flag.
	DisableTOTP(subject string) (*models.User, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) Create(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *gormUserRepository) FindByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (r *gormUserRepository) FindBySubject(subject string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("subject_id = ?", subject).First(&user).Error; err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (r *gormUserRepository) UpdateTOTPEnrollment(subject, secret string) (*models.User, error) {
	user, err := r.FindBySubject(subject)
	if err != nil {
		return nil, err
	}
	user.TOTPEnabled = true
	user.TOTPSecret = secret
	if err := r.db.Save(user).Error; err != nil {
		return nil, fmt.Errorf("update totp enrollment: %w", err)
	}
	return user, nil
}

func (r *gormUserRepository) DisableTOTP(subject string) (*models.User, error) {
	user, err := r.FindBySubject(subject)
	if err != nil {
		return nil, err
	}
	user.TOTPEnabled = false
	user.TOTPSecret = ""
	if err := r.db.Save(user).Error; err != nil {
		return nil, fmt.Errorf("disable totp: %w", err)
	}
	return user, nil
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("query user: %w", err)
}
