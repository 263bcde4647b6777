package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"aichat-backend/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(documentID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ?", documentID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByUserID(userID uint) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) UpdateContent(documentID string, content string) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", documentID).Update("content", content).Error; err != nil {
		return fmt.Errorf("update document failed: %w", err)
	}
	return nil
}
