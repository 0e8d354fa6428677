package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	SubjectID   string `json:"sub" gorm:"uniqueIndex;size:36"`
	Username    string `json:"username" gorm:"uniqueIndex"`
	Password    string `json:"-"` // bcrypt hash, never serialize
	TOTPEnabled bool   `json:"totp_enabled" gorm:"default:false"`
	TOTPSecret  string `json:"-"` // shared TOTP secret, never serialize
}

// BeforeCreate assigns the stable subject identifier carried in session claims.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.SubjectID == "" {
		u.SubjectID = uuid.NewString()
	}
	return nil
}
