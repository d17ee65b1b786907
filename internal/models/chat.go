package models

import (
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Message kinds stored by the Directory Service. The Hub itself only ever
// writes system messages (missed calls); everything else arrives already
// persisted through the Directory's CRUD path.
const (
	MessageTypeText       = "text"
	MessageTypeCallMissed = "call_missed"
)

// Chat mirrors the Directory Service's chat record.
type Chat struct {
	ID      string         `gorm:"primaryKey" json:"id"`
	Name    string         `json:"name"`
	IsGroup bool           `json:"is_group"`
	UserIDs pq.StringArray `gorm:"type:text[]" json:"user_ids"`
}

// Message represents a persisted chat message row.
// The embedded gorm.Model provides ID and timestamps.
type Message struct {
	gorm.Model

	ChatID   string `gorm:"type:text;not null;index" json:"chat_id"`
	SenderID string `gorm:"type:text;not null" json:"sender_id"`
	Content  string `gorm:"type:text;not null" json:"content"`
	Type     string `gorm:"type:text;not null;default:text" json:"type"`
}
