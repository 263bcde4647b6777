package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"aichat-backend/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(chat *model.Chat) error {
	if err := r.db.Create(chat).Error; err != nil {
		return fmt.Errorf("create chat failed: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.Where("id = ?", chatID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}
	return &chat, nil
}

func (r *ChatRepository) GetByIDAndUserID(chatID string, userID uint) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat failed: %w", err)
	}
	return &chat, nil
}

func (r *ChatRepository) ListByUserID(userID uint) ([]model.Chat, error) {
	var chats []model.Chat
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list chats failed: %w", err)
	}
	return chats, nil
}

func (r *ChatRepository) DeleteByIDAndUserID(chatID string, userID uint) error {
	if err := r.db.Where("id = ? AND user_id = ?", chatID, userID).Delete(&model.Chat{}).Error; err != nil {
		return fmt.Errorf("delete chat failed: %w", err)
	}
	return nil
}
