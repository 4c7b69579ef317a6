package repository

import (
	"context"
	"errors"

	"github.com/harukimz/ledgermart-backend/internal/model"
	"gorm.io/gorm"
)

type RatingRepository interface {
	Create(ctx context.Context, rating *model.Rating) error
	FindByProductAndBuyer(ctx context.Context, productID uint64, buyer string) (*model.Rating, error)
	ListByProduct(ctx context.Context, productID uint64) ([]model.Rating, error)
	SetDB(db *gorm.DB)
}

type ratingRepository struct {
	db *gorm.DB
}

func NewRatingRepository(db *gorm.DB) RatingRepository {
	return &ratingRepository{db: db}
}

func (r *ratingRepository) Create(ctx context.Context, rating *model.Rating) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(rating).Error
}

func (r *ratingRepository) FindByProductAndBuyer(ctx context.Context, productID uint64, buyer string) (*model.Rating, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var rating model.Rating
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND buyer_principal = ?", productID, buyer).
		First(&rating).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rating, nil
}

func (r *ratingRepository) ListByProduct(ctx context.Context, productID uint64) ([]model.Rating, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Rating
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ratingRepository) SetDB(db *gorm.DB) {
	r.db = db
}
