package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"suvidha-service/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document application: %w", err)
	}
	return nil
}

func (r *DocumentRepository) FindByDocumentID(ctx context.Context, documentID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByCitizen(ctx context.Context, citizenID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).
		Where("citizen_id = ?", citizenID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, documentID, status string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if status == model.DocumentVerified {
		updates["verified_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("document_id = ?", documentID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update document status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
