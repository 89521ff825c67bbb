package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"crossid/internal/domain"

	"gorm.io/gorm"
)

type BridgeRequestRepository struct {
	db *gorm.DB
}

func NewBridgeRequestRepository(db *gorm.DB) *BridgeRequestRepository {
	return &BridgeRequestRepository{db: db}
}

func (r *BridgeRequestRepository) Create(ctx context.Context, req domain.BridgeRequest) error {
	if r.db == nil {
		return errDBUnavailable
	}
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	model := BridgeRequestModel{
		ID:            req.ID,
		UserID:        req.UserID,
		DID:           req.DID,
		SourceChain:   req.SourceChain,
		TargetChain:   req.TargetChain,
		SourceAddress: req.SourceAddress,
		TargetAddress: req.TargetAddress,
		RequestType:   req.RequestType,
		Status:        req.Status,
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *BridgeRequestRepository) GetByID(ctx context.Context, id string) (*domain.BridgeRequest, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model BridgeRequestModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return bridgeRequestFromModel(model)
}

// Claim is the checked-and-set pending -> processing transition. The WHERE
// clause makes it atomic: of any number of concurrent dispatchers, exactly one
// sees an affected row and proceeds.
func (r *BridgeRequestRepository) Claim(ctx context.Context, id string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	result := r.db.WithContext(ctx).Exec(
		`UPDATE bridge_requests
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.BridgeStatusProcessing,
		time.Now().UTC(),
		id,
		domain.BridgeStatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *BridgeRequestRepository) Complete(ctx context.Context, id, transactionHash string) error {
	return r.finish(ctx, id, domain.BridgeStatusCompleted, map[string]any{
		"transaction_hash": transactionHash,
	})
}

func (r *BridgeRequestRepository) Fail(ctx context.Context, id, errorMessage string) error {
	return r.finish(ctx, id, domain.BridgeStatusFailed, map[string]any{
		"error_message": errorMessage,
	})
}

// finish only moves processing rows; completed and failed are immutable.
func (r *BridgeRequestRepository) finish(ctx context.Context, id, status string, extra map[string]any) error {
	if r.db == nil {
		return errDBUnavailable
	}
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	result := r.db.WithContext(ctx).
		Model(&BridgeRequestModel{}).
		Where("id = ? AND status = ?", id, domain.BridgeStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *BridgeRequestRepository) ListPending(ctx context.Context, limit int) ([]domain.BridgeRequest, error) {
	return r.ListByStatus(ctx, domain.BridgeStatusPending, limit)
}

func (r *BridgeRequestRepository) ListByStatus(ctx context.Context, status string, limit int) ([]domain.BridgeRequest, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Model(&BridgeRequestModel{}).Order("created_at ASC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var models []BridgeRequestModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	requests := make([]domain.BridgeRequest, 0, len(models))
	for _, model := range models {
		req, err := bridgeRequestFromModel(model)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, nil
}

func bridgeRequestFromModel(model BridgeRequestModel) (*domain.BridgeRequest, error) {
	var metadata map[string]any
	if len(model.Metadata) > 0 {
		if err := json.Unmarshal(model.Metadata, &metadata); err != nil {
			return nil, err
		}
	}
	return &domain.BridgeRequest{
		ID:              model.ID,
		UserID:          model.UserID,
		DID:             model.DID,
		SourceChain:     model.SourceChain,
		TargetChain:     model.TargetChain,
		SourceAddress:   model.SourceAddress,
		TargetAddress:   model.TargetAddress,
		RequestType:     model.RequestType,
		Status:          model.Status,
		TransactionHash: model.TransactionHash,
		ErrorMessage:    model.ErrorMessage,
		Metadata:        metadata,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}, nil
}
