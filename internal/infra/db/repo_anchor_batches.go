package db

import (
	"context"
	"errors"
	"time"

	"crossid/internal/domain"

	"gorm.io/gorm"
)

type AnchorBatchRepository struct {
	db *gorm.DB
}

func NewAnchorBatchRepository(db *gorm.DB) *AnchorBatchRepository {
	return &AnchorBatchRepository{db: db}
}

func (r *AnchorBatchRepository) Create(ctx context.Context, batch domain.AnchorBatch) error {
	if r.db == nil {
		return errDBUnavailable
	}
	createdAt := batch.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := AnchorBatchModel{
		RootHex:         batch.RootHex,
		ChainID:         batch.ChainID,
		LeafCount:       batch.LeafCount,
		TransactionHash: batch.TransactionHash,
		ProofsJSON:      batch.ProofsJSON,
		CreatedAt:       createdAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AnchorBatchRepository) GetByRoot(ctx context.Context, rootHex string) (*domain.AnchorBatch, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model AnchorBatchModel
	err := r.db.WithContext(ctx).Where("root_hex = ?", rootHex).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &domain.AnchorBatch{
		RootHex:         model.RootHex,
		ChainID:         model.ChainID,
		LeafCount:       model.LeafCount,
		TransactionHash: model.TransactionHash,
		ProofsJSON:      model.ProofsJSON,
		CreatedAt:       model.CreatedAt,
	}, nil
}
