package model

import "time"

type Suggestion struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	DocumentID    string    `gorm:"size:36;not null;index" json:"document_id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	OriginalText  string    `gorm:"type:text" json:"original_text"`
	SuggestedText string    `gorm:"type:text;not null" json:"suggested_text"`
	Description   string    `gorm:"size:512" json:"description"`
	IsResolved    bool      `gorm:"not null;default:false" json:"is_resolved"`
	CreatedAt     time.Time `json:"created_at"`
}
