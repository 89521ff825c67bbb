package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"crossid/internal/domain"

	"gorm.io/gorm"
)

type DidDocumentRepository struct {
	db *gorm.DB
}

func NewDidDocumentRepository(db *gorm.DB) *DidDocumentRepository {
	return &DidDocumentRepository{db: db}
}

func (r *DidDocumentRepository) GetLatest(ctx context.Context, did string) (*domain.DidDocument, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model DidDocumentModel
	err := r.db.WithContext(ctx).
		Where("did = ?", did).
		Order("version DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return documentFromModel(model)
}

// AppendVersion writes version max+1 for the DID. The unique (did, version)
// index turns concurrent appends into a constraint error rather than a lost
// update.
func (r *DidDocumentRepository) AppendVersion(ctx context.Context, doc domain.DidDocument) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	var version int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current int64
		if err := tx.Model(&DidDocumentModel{}).
			Where("did = ?", doc.DID).
			Select("COALESCE(MAX(version), 0)").
			Scan(&current).Error; err != nil {
			return err
		}
		version = current + 1
		model := DidDocumentModel{
			DID:            doc.DID,
			Version:        version,
			DocumentJSON:   body,
			ContentAddress: doc.ContentAddress,
			CreatedAt:      time.Now().UTC(),
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func documentFromModel(model DidDocumentModel) (*domain.DidDocument, error) {
	var doc domain.DidDocument
	if err := json.Unmarshal(model.DocumentJSON, &doc); err != nil {
		return nil, err
	}
	doc.DID = model.DID
	doc.Version = model.Version
	doc.ContentAddress = model.ContentAddress
	doc.CreatedAt = model.CreatedAt
	return &doc, nil
}
