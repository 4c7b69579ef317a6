package repository

import (
	"context"
	"errors"

	"github.com/harukimz/ledgermart-backend/internal/model"
	"gorm.io/gorm"
)

// EscrowRepository persists the local shadow copies of ledger escrows so the
// timeout scheduler can be refilled after a restart.
type EscrowRepository interface {
	Create(ctx context.Context, rec *model.EscrowShadow) error
	FindBySequence(ctx context.Context, sequence uint32) (*model.EscrowShadow, error)
	MarkAccepted(ctx context.Context, sequence uint32) error
	Delete(ctx context.Context, sequence uint32) error
	ListAll(ctx context.Context) ([]model.EscrowShadow, error)
	SetDB(db *gorm.DB)
}

type escrowRepository struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) EscrowRepository {
	return &escrowRepository{db: db}
}

func (r *escrowRepository) Create(ctx context.Context, rec *model.EscrowShadow) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *escrowRepository) FindBySequence(ctx context.Context, sequence uint32) (*model.EscrowShadow, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var rec model.EscrowShadow
	if err := r.db.WithContext(ctx).
		Where("sequence = ?", sequence).
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *escrowRepository) MarkAccepted(ctx context.Context, sequence uint32) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Model(&model.EscrowShadow{}).
		Where("sequence = ?", sequence).
		Update("acceptance_observed", true).Error
}

func (r *escrowRepository) Delete(ctx context.Context, sequence uint32) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Where("sequence = ?", sequence).
		Delete(&model.EscrowShadow{}).Error
}

func (r *escrowRepository) ListAll(ctx context.Context) ([]model.EscrowShadow, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.EscrowShadow
	if err := r.db.WithContext(ctx).Order("finish_after ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *escrowRepository) SetDB(db *gorm.DB) {
	r.db = db
}
