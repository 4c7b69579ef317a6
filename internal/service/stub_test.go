package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/model"
	"gorm.io/gorm"
)

type memProductRepo struct {
	mu       sync.Mutex
	products map[uint64]*model.Product
}

func newMemProductRepo(products ...*model.Product) *memProductRepo {
	r := &memProductRepo{products: make(map[uint64]*model.Product)}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *memProductRepo) Create(ctx context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uint64(len(r.products) + 1)
	r.products[p.ID] = p
	return nil
}

func (r *memProductRepo) FindByID(ctx context.Context, id uint64) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memProductRepo) List(ctx context.Context, limit, offset int) ([]model.Product, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.Product
	for _, p := range r.products {
		list = append(list, *p)
	}
	return list, int64(len(list)), nil
}

func (r *memProductRepo) UpdateDetails(ctx context.Context, id uint64, name, description string, priceDrops int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Name, p.Description, p.PriceDrops = name, description, priceDrops
	return nil
}

func (r *memProductRepo) SetCredentialID(ctx context.Context, id uint64, credentialID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.CredentialID = &credentialID
	return nil
}

func (r *memProductRepo) SetDB(db *gorm.DB) {}

type memPurchaseRepo struct {
	mu        sync.Mutex
	nextID    uint64
	purchases map[uint64]*model.Purchase
}

func newMemPurchaseRepo() *memPurchaseRepo {
	return &memPurchaseRepo{purchases: make(map[uint64]*model.Purchase)}
}

func (r *memPurchaseRepo) Create(ctx context.Context, p *model.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	copied := *p
	r.purchases[p.ID] = &copied
	return nil
}

func (r *memPurchaseRepo) FindByID(ctx context.Context, id uint64) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memPurchaseRepo) FindByProductAndBuyer(ctx context.Context, productID uint64, buyer string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.Purchase
	for _, p := range r.purchases {
		if p.ProductID == productID && p.BuyerPrincipal == buyer {
			if latest == nil || p.ID > latest.ID {
				latest = p
			}
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *memPurchaseRepo) FindCompleted(ctx context.Context, productID uint64, buyer string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.purchases {
		if p.ProductID == productID && p.BuyerPrincipal == buyer && p.Status == model.PurchaseStatusCompleted {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memPurchaseRepo) Update(ctx context.Context, p *model.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.purchases[p.ID] = &copied
	return nil
}

func (r *memPurchaseRepo) CompleteIfPending(ctx context.Context, id uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok || p.Status != model.PurchaseStatusPending {
		return 0, nil
	}
	now := time.Now()
	p.Status = model.PurchaseStatusCompleted
	p.CompletedAt = &now
	return 1, nil
}

func (r *memPurchaseRepo) CancelIfPending(ctx context.Context, id uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok || p.Status != model.PurchaseStatusPending {
		return 0, nil
	}
	p.Status = model.PurchaseStatusCancelled
	return 1, nil
}

func (r *memPurchaseRepo) ListByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.Purchase
	for _, p := range r.purchases {
		if p.BuyerPrincipal == buyer {
			list = append(list, *p)
		}
	}
	return list, nil
}

func (r *memPurchaseRepo) ListBySeller(ctx context.Context, seller string) ([]model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.Purchase
	for _, p := range r.purchases {
		if p.SellerPrincipal == seller {
			list = append(list, *p)
		}
	}
	return list, nil
}

func (r *memPurchaseRepo) SetDB(db *gorm.DB) {}

func (r *memPurchaseRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.purchases)
}

type memRatingRepo struct {
	mu      sync.Mutex
	ratings []model.Rating
}

func newMemRatingRepo() *memRatingRepo { return &memRatingRepo{} }

func (r *memRatingRepo) Create(ctx context.Context, rating *model.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.ratings {
		if existing.ProductID == rating.ProductID && existing.BuyerPrincipal == rating.BuyerPrincipal {
			return gorm.ErrDuplicatedKey
		}
	}
	rating.ID = uint64(len(r.ratings) + 1)
	r.ratings = append(r.ratings, *rating)
	return nil
}

func (r *memRatingRepo) FindByProductAndBuyer(ctx context.Context, productID uint64, buyer string) (*model.Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.ratings {
		if r.ratings[i].ProductID == productID && r.ratings[i].BuyerPrincipal == buyer {
			copied := r.ratings[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memRatingRepo) ListByProduct(ctx context.Context, productID uint64) ([]model.Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.Rating
	for _, rating := range r.ratings {
		if rating.ProductID == productID {
			list = append(list, rating)
		}
	}
	return list, nil
}

func (r *memRatingRepo) SetDB(db *gorm.DB) {}

type memEscrowRepo struct {
	mu      sync.Mutex
	shadows map[uint32]*model.EscrowShadow
}

func newMemEscrowRepo() *memEscrowRepo {
	return &memEscrowRepo{shadows: make(map[uint32]*model.EscrowShadow)}
}

func (r *memEscrowRepo) Create(ctx context.Context, rec *model.EscrowShadow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = uint64(len(r.shadows) + 1)
	copied := *rec
	r.shadows[rec.Sequence] = &copied
	return nil
}

func (r *memEscrowRepo) FindBySequence(ctx context.Context, sequence uint32) (*model.EscrowShadow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.shadows[sequence]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (r *memEscrowRepo) MarkAccepted(ctx context.Context, sequence uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.shadows[sequence]; ok {
		rec.AcceptanceObserved = true
	}
	return nil
}

func (r *memEscrowRepo) Delete(ctx context.Context, sequence uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shadows, sequence)
	return nil
}

func (r *memEscrowRepo) ListAll(ctx context.Context) ([]model.EscrowShadow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []model.EscrowShadow
	for _, rec := range r.shadows {
		list = append(list, *rec)
	}
	return list, nil
}

func (r *memEscrowRepo) SetDB(db *gorm.DB) {}

// stubLocker mirrors the single-holder semantics of the Redis flow lock:
// a second acquisition of a held (product, buyer) key is refused.
type stubLocker struct {
	mu       sync.Mutex
	denied   bool
	held     map[string]bool
	acquired int
	released int
}

func (l *stubLocker) Acquire(ctx context.Context, productID uint64, buyer string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied {
		return false, nil
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	key := fmt.Sprintf("%d:%s", productID, buyer)
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	l.acquired++
	return true, nil
}

func (l *stubLocker) Release(ctx context.Context, productID uint64, buyer string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, fmt.Sprintf("%d:%s", productID, buyer))
	l.released++
	return nil
}

// stubScheduler records scheduled escrows; onMarkAccepted lets a test hook
// into the acceptance step.
type stubScheduler struct {
	mu             sync.Mutex
	scheduled      []uint32
	acceptedSeqs   []uint32
	onMarkAccepted func(sequence uint32)
}

func (s *stubScheduler) ScheduleFinish(rec *model.EscrowShadow, notBefore time.Time) {
	s.mu.Lock()
	s.scheduled = append(s.scheduled, rec.Sequence)
	s.mu.Unlock()
}

func (s *stubScheduler) MarkAccepted(sequence uint32) {
	s.mu.Lock()
	s.acceptedSeqs = append(s.acceptedSeqs, sequence)
	hook := s.onMarkAccepted
	s.mu.Unlock()
	if hook != nil {
		hook(sequence)
	}
}

func (s *stubScheduler) scheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

type stubAccess struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *stubAccess) RequestAccess(ctx context.Context, product *model.Product, buyer string) (*AccessGrant, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return &AccessGrant{
		Locator:   "https://content.test/" + product.ContentLocator,
		Token:     "access-token",
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}, nil
}
