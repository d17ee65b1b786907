// Package directory is the hub's collaborator interface to the Directory
// Service, which owns user/chat/message persistence. The hub never reads
// messages through it; it only records system messages (missed calls) and
// looks up user records for out-of-band alerts.
package directory

import (
	"errors"
	"log"

	"gorm.io/gorm"

	"mingle/backend/internal/models"
)

// SystemSenderID marks messages authored by the hub itself rather than a
// participant.
const SystemSenderID = "system"

var ErrUserNotFound = errors.New("user not found")

type Directory interface {
	RecordSystemMessage(chatID, content, msgType string) error
	GetUserByID(userID string) (*models.User, error)
}

// Service is the GORM-backed implementation sharing the Directory
// Service's PostgreSQL database.
type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// RecordSystemMessage appends a system message row to a chat.
func (s *Service) RecordSystemMessage(chatID, content, msgType string) error {
	msg := models.Message{
		ChatID:   chatID,
		SenderID: SystemSenderID,
		Content:  content,
		Type:     msgType,
	}
	if err := s.DB.Create(&msg).Error; err != nil {
		log.Printf("ERROR: failed to record system message for chat %s: %v", chatID, err)
		return err
	}
	return nil
}

// GetUserByID fetches a user record.
func (s *Service) GetUserByID(userID string) (*models.User, error) {
	var user models.User
	err := s.DB.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
