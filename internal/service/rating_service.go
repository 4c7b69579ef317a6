package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/harukimz/ledgermart-backend/internal/ledger"
	"github.com/harukimz/ledgermart-backend/internal/model"
	"github.com/harukimz/ledgermart-backend/internal/repository"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type RatingService interface {
	// IssueRating mints a bounded-supply, non-transferable token whose
	// quantity encodes the score, exactly once per (buyer, product) pair.
	IssueRating(ctx context.Context, productID uint64, buyer string, score int) (*model.Rating, error)
	ListByProduct(ctx context.Context, productID uint64) ([]model.Rating, error)
}

type ratingService struct {
	ratings   repository.RatingRepository
	purchases repository.PurchaseRepository
	products  repository.ProductRepository
	gateway   ledger.Gateway
	platform  string
	signer    ledger.Signer
	log       zerolog.Logger
}

func NewRatingService(
	ratings repository.RatingRepository,
	purchases repository.PurchaseRepository,
	products repository.ProductRepository,
	gateway ledger.Gateway,
	platform string,
	signer ledger.Signer,
	log zerolog.Logger,
) RatingService {
	return &ratingService{
		ratings:   ratings,
		purchases: purchases,
		products:  products,
		gateway:   gateway,
		platform:  platform,
		signer:    signer,
		log:       log,
	}
}

func (s *ratingService) IssueRating(ctx context.Context, productID uint64, buyer string, score int) (*model.Rating, error) {
	if buyer == "" {
		return nil, ErrPrincipalRequired
	}
	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	completed, err := s.purchases.FindCompleted(ctx, productID, buyer)
	if err != nil {
		return nil, err
	}
	if completed == nil {
		return nil, ErrNotPurchased
	}
	existing, err := s.ratings.FindByProductAndBuyer(ctx, productID, buyer)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyRated
	}

	intent := ledger.TokenIssueIntent{
		Issuer:           s.platform,
		Holder:           buyer,
		MaxSupply:        int64(score),
		TransferDisabled: true,
		Metadata: map[string]string{
			"product_id": strconv.FormatUint(productID, 10),
			"buyer":      buyer,
		},
	}
	submitted, err := s.gateway.Submit(ctx, intent, s.signer)
	if err != nil {
		return nil, err
	}
	status, err := s.gateway.AwaitValidation(ctx, submitted.TxHash)
	if err != nil {
		return nil, err
	}
	if !status.Code.Success() {
		return nil, &ledger.ExecutionError{TxHash: status.TxHash, Code: status.Code}
	}

	rating := &model.Rating{
		ProductID:      productID,
		BuyerPrincipal: buyer,
		Score:          score,
		TokenID:        status.TxHash,
	}
	if err := s.ratings.Create(ctx, rating); err != nil {
		// The unique index backs the race between two concurrent submissions.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyRated
		}
		return nil, err
	}
	s.log.Info().Uint64("product_id", productID).Str("buyer", buyer).Int("score", score).Msg("rating issued")
	return rating, nil
}

func (s *ratingService) ListByProduct(ctx context.Context, productID uint64) ([]model.Rating, error) {
	return s.ratings.ListByProduct(ctx, productID)
}
