package repository

import (
	"context"
	"errors"

	"github.com/harukimz/ledgermart-backend/internal/model"
	"gorm.io/gorm"
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, id uint64) (*model.Product, error)
	List(ctx context.Context, limit, offset int) ([]model.Product, int64, error)
	// UpdateDetails changes the mutable fields only. The content locator is
	// immutable after creation and is deliberately not part of this call.
	UpdateDetails(ctx context.Context, id uint64, name, description string, priceDrops int64) error
	SetCredentialID(ctx context.Context, id uint64, credentialID string) error
	SetDB(db *gorm.DB)
}

type productRepository struct {
	db *gorm.DB
}

var ErrDBNotReady = errors.New("database not initialized")

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepository) FindByID(ctx context.Context, id uint64) (*model.Product, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var product model.Product
	if err := r.db.WithContext(ctx).Preload("Ratings").First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) List(ctx context.Context, limit, offset int) ([]model.Product, int64, error) {
	if r.db == nil {
		return nil, 0, ErrDBNotReady
	}
	var (
		products []model.Product
		total    int64
	)
	if err := r.db.WithContext(ctx).Model(&model.Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := r.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *productRepository) UpdateDetails(ctx context.Context, id uint64, name, description string, priceDrops int64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":        name,
			"description": description,
			"price_drops": priceDrops,
		}).Error
}

func (r *productRepository) SetCredentialID(ctx context.Context, id uint64, credentialID string) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", id).
		Update("credential_id", credentialID).Error
}

func (r *productRepository) SetDB(db *gorm.DB) {
	r.db = db
}
