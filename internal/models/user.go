package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the subset of the marketplace user record the realtime core reads.
// Accounts themselves are managed elsewhere; this table only carries the
// notification preferences.
type User struct {
	ID          string `gorm:"primaryKey" json:"id"`
	DisplayName string `json:"display_name"`
	// TelegramChatID is set when the user linked a Telegram chat for offline notifications.
	TelegramChatID *int64 `gorm:"uniqueIndex" json:"telegram_chat_id,omitempty"`
	// Language is the preferred notification language ("en", "uk").
	Language string `gorm:"type:text;default:'en'" json:"language"`
}

// BeforeCreate — це хук GORM, який викликається перед створенням запису.
// Він генерує новий UUID для користувача, якщо ID ще не встановлено.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
