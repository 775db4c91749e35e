package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"suvidha-service/internal/model"
	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/util"
)

const maxDocumentSize = 10 << 20 // 10 MiB

var validDocumentTypes = map[string]bool{
	"aadhaar_card":      true,
	"ration_card":       true,
	"property_papers":   true,
	"electricity_bill":  true,
	"water_bill":        true,
	"birth_certificate": true,
	"other":             true,
}

// DocumentService tracks citizen document uploads and their
// verification state. File bytes are stored out of band.
type DocumentService struct {
	documents     *sqlite.DocumentRepository
	citizens      *sqlite.CitizenRepository
	notifications *NotificationService
}

func NewDocumentService(
	documents *sqlite.DocumentRepository,
	citizens *sqlite.CitizenRepository,
	notifications *NotificationService,
) *DocumentService {
	return &DocumentService{
		documents:     documents,
		citizens:      citizens,
		notifications: notifications,
	}
}

func (s *DocumentService) Upload(ctx context.Context, citizenID, name, docType string, sizeBytes int64, contentHash string) (*model.Document, error) {
	citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}

	if name == "" {
		return nil, fmt.Errorf("%w: document name is required", ErrInvalidInput)
	}
	if !validDocumentTypes[docType] {
		return nil, fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, docType)
	}
	if sizeBytes <= 0 || sizeBytes > maxDocumentSize {
		return nil, fmt.Errorf("%w: document size out of range", ErrInvalidInput)
	}

	now := time.Now().UTC()
	doc := &model.Document{
		DocumentID:  model.NewDocumentID(now),
		CitizenID:   citizen.ID,
		Name:        util.SanitizeInput(name),
		Type:        docType,
		SizeBytes:   sizeBytes,
		ContentHash: contentHash,
		Status:      model.DocumentUploaded,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	util.Info("Document uploaded",
		util.String("document_id", doc.DocumentID),
		util.String("type", docType),
		util.Int64("size_bytes", sizeBytes),
	)
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, citizenID string) ([]model.Document, error) {
	citizen, err := s.citizens.FindByCitizenID(ctx, citizenID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrCitizenNotFound
		}
		return nil, err
	}
	return s.documents.ListByCitizen(ctx, citizen.ID)
}

// Review marks a document verified or rejected. Admin only.
func (s *DocumentService) Review(ctx context.Context, documentID, status string) error {
	if status != model.DocumentVerified && status != model.DocumentRejected {
		return fmt.Errorf("%w: review status must be %s or %s", ErrInvalidInput, model.DocumentVerified, model.DocumentRejected)
	}

	doc, err := s.documents.FindByDocumentID(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.documents.UpdateStatus(ctx, documentID, status); err != nil {
		return err
	}

	s.notifications.Notify(ctx, doc.CitizenID, model.NotificationInfo,
		"Document "+status,
		fmt.Sprintf("Your document %s has been %s.", doc.Name, status),
	)

	util.Info("Document reviewed",
		util.String("document_id", documentID),
		util.String("status", status),
	)
	return nil
}
