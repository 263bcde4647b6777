package repository

import (
	"fmt"

	"gorm.io/gorm"

	"aichat-backend/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByChatID(chatID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var messages []model.Message
	if err := r.db.Where("chat_id = ?", chatID).Order("created_at ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) ListRecentByChatID(chatID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	var messages []model.Message
	if err := r.db.Where("chat_id = ?", chatID).Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list recent messages failed: %w", err)
	}
	// reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) DeleteByChatID(chatID string) error {
	if err := r.db.Where("chat_id = ?", chatID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("delete messages failed: %w", err)
	}
	return nil
}
