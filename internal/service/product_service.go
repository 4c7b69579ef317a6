package service

import (
	"context"
	"errors"
	"strings"

	"github.com/harukimz/ledgermart-backend/internal/model"
	"github.com/harukimz/ledgermart-backend/internal/repository"
	"gorm.io/gorm"
)

type ProductService interface {
	Create(ctx context.Context, name, description, contentLocator string, priceDrops int64, seller string) (*model.Product, error)
	Get(ctx context.Context, id uint64) (*model.Product, error)
	List(ctx context.Context, limit, offset int) ([]model.Product, int64, error)
}

type productService struct {
	repo repository.ProductRepository
}

func NewProductService(repo repository.ProductRepository) ProductService {
	return &productService{repo: repo}
}

func (s *productService) Create(ctx context.Context, name, description, contentLocator string, priceDrops int64, seller string) (*model.Product, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	contentLocator = strings.TrimSpace(contentLocator)
	if name == "" || len(name) > 120 {
		return nil, errors.New("invalid name")
	}
	if description == "" {
		return nil, errors.New("invalid description")
	}
	if contentLocator == "" {
		return nil, errors.New("content locator is required")
	}
	if priceDrops <= 0 {
		return nil, errors.New("price must be positive")
	}
	if seller == "" {
		return nil, ErrPrincipalRequired
	}

	product := &model.Product{
		Name:            name,
		Description:     description,
		ContentLocator:  contentLocator,
		PriceDrops:      priceDrops,
		SellerPrincipal: seller,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *productService) Get(ctx context.Context, id uint64) (*model.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *productService) List(ctx context.Context, limit, offset int) ([]model.Product, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
