package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/harukimz/ledgermart-backend/internal/model"
)

// AccessGrant is a time-limited right to fetch a product's content.
type AccessGrant struct {
	Locator   string
	Token     string
	ExpiresAt time.Time
}

// AccessService resolves a content locator plus an access token for a buyer.
// File transfer itself stays outside the core.
type AccessService interface {
	RequestAccess(ctx context.Context, product *model.Product, buyer string) (*AccessGrant, error)
}

type gcsAccessService struct {
	client *storage.Client
	bucket string
	ttl    time.Duration
}

func NewGCSAccessService(client *storage.Client, bucket string, ttl time.Duration) AccessService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &gcsAccessService{client: client, bucket: bucket, ttl: ttl}
}

func (s *gcsAccessService) RequestAccess(ctx context.Context, product *model.Product, buyer string) (*AccessGrant, error) {
	if buyer == "" {
		return nil, ErrPrincipalRequired
	}
	expires := time.Now().Add(s.ttl)
	url, err := s.client.Bucket(s.bucket).SignedURL(product.ContentLocator, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: expires,
	})
	if err != nil {
		return nil, fmt.Errorf("sign content url: %w", err)
	}
	return &AccessGrant{
		Locator:   url,
		Token:     uuid.NewString(),
		ExpiresAt: expires,
	}, nil
}
