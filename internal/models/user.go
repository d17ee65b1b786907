package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User mirrors the Directory Service's user record. The Hub only reads it:
// identity comes from the verified token, TelegramChatID is used for
// offline missed-call alerts when the account linked a Telegram chat.
type User struct {
	ID             string `gorm:"primaryKey" json:"id"`
	Name           string `json:"name"`
	Email          string `gorm:"uniqueIndex" json:"email"`
	TelegramChatID int64  `gorm:"index" json:"-"`
}

// BeforeCreate is a GORM hook that assigns a UUID when the ID is unset.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
