package repository

import (
	"fmt"

	"gorm.io/gorm"

	"aichat-backend/internal/model"
)

type SuggestionRepository struct {
	db *gorm.DB
}

func NewSuggestionRepository(db *gorm.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

func (r *SuggestionRepository) CreateBatch(suggestions []model.Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	if err := r.db.Create(&suggestions).Error; err != nil {
		return fmt.Errorf("create suggestions failed: %w", err)
	}
	return nil
}

func (r *SuggestionRepository) ListByDocumentID(documentID string) ([]model.Suggestion, error) {
	var suggestions []model.Suggestion
	if err := r.db.Where("document_id = ?", documentID).Order("created_at ASC").Find(&suggestions).Error; err != nil {
		return nil, fmt.Errorf("list suggestions failed: %w", err)
	}
	return suggestions, nil
}
