package repository

import (
	"context"
	"errors"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/model"
	"gorm.io/gorm"
)

type PurchaseRepository interface {
	Create(ctx context.Context, p *model.Purchase) error
	FindByID(ctx context.Context, id uint64) (*model.Purchase, error)
	FindByProductAndBuyer(ctx context.Context, productID uint64, buyer string) (*model.Purchase, error)
	FindCompleted(ctx context.Context, productID uint64, buyer string) (*model.Purchase, error)
	Update(ctx context.Context, p *model.Purchase) error
	// CompleteIfPending flips a pending purchase to completed and reports the
	// number of rows changed. The conditional UPDATE is what enforces the
	// at-most-one-completed invariant under concurrent flows.
	CompleteIfPending(ctx context.Context, id uint64) (int64, error)
	// CancelIfPending is the only other legal transition.
	CancelIfPending(ctx context.Context, id uint64) (int64, error)
	ListByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error)
	ListBySeller(ctx context.Context, seller string) ([]model.Purchase, error)
	SetDB(db *gorm.DB)
}

type purchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func (r *purchaseRepository) Create(ctx context.Context, p *model.Purchase) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *purchaseRepository) FindByID(ctx context.Context, id uint64) (*model.Purchase, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var p model.Purchase
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *purchaseRepository) FindByProductAndBuyer(ctx context.Context, productID uint64, buyer string) (*model.Purchase, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var p model.Purchase
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND buyer_principal = ?", productID, buyer).
		Order("id DESC").
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *purchaseRepository) FindCompleted(ctx context.Context, productID uint64, buyer string) (*model.Purchase, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var p model.Purchase
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND buyer_principal = ? AND status = ?", productID, buyer, model.PurchaseStatusCompleted).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *purchaseRepository) Update(ctx context.Context, p *model.Purchase) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *purchaseRepository) CompleteIfPending(ctx context.Context, id uint64) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&model.Purchase{}).
		Where("id = ? AND status = ?", id, model.PurchaseStatusPending).
		Updates(map[string]interface{}{
			"status":       model.PurchaseStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *purchaseRepository) CancelIfPending(ctx context.Context, id uint64) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Purchase{}).
		Where("id = ? AND status = ?", id, model.PurchaseStatusPending).
		Update("status", model.PurchaseStatusCancelled)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *purchaseRepository) ListByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Purchase
	if err := r.db.WithContext(ctx).
		Where("buyer_principal = ?", buyer).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *purchaseRepository) ListBySeller(ctx context.Context, seller string) ([]model.Purchase, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Purchase
	if err := r.db.WithContext(ctx).
		Where("seller_principal = ?", seller).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *purchaseRepository) SetDB(db *gorm.DB) {
	r.db = db
}
