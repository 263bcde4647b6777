package model

import "time"

type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ChatID    string    `gorm:"size:36;not null;index" json:"chat_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Role      string    `gorm:"size:16;not null;index" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
