package app

import (
	"errors"

	"aichat-backend/internal/model"
	"aichat-backend/internal/repository"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNotDocumentOwner = errors.New("document belongs to another user")
)

// SuggestionService serves documents and their suggestions with the
// ownership rule: access is permitted only when the requesting user owns
// the document.
type SuggestionService struct {
	docRepo        *repository.DocumentRepository
	suggestionRepo *repository.SuggestionRepository
}

func NewSuggestionService(docRepo *repository.DocumentRepository, suggestionRepo *repository.SuggestionRepository) *SuggestionService {
	return &SuggestionService{docRepo: docRepo, suggestionRepo: suggestionRepo}
}

func (s *SuggestionService) ListByDocumentID(userID uint, documentID string) ([]model.Suggestion, error) {
	if userID == 0 || documentID == "" {
		return nil, ErrInvalidInput
	}

	doc, err := s.docRepo.GetByID(documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.UserID != userID {
		return nil, ErrNotDocumentOwner
	}

	return s.suggestionRepo.ListByDocumentID(documentID)
}

func (s *SuggestionService) GetDocument(userID uint, documentID string) (*model.Document, error) {
	if userID == 0 || documentID == "" {
		return nil, ErrInvalidInput
	}

	doc, err := s.docRepo.GetByID(documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.UserID != userID {
		return nil, ErrNotDocumentOwner
	}
	return doc, nil
}

func (s *SuggestionService) ListDocuments(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUserID(userID)
}
