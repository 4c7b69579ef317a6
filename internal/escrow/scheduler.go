// Package escrow drives the deferred finish of conditional payments. The
// interactive purchase flow enqueues an escrow and returns; a long-lived
// worker owned by this package keeps attempting the finish until the ledger
// either releases the funds or reports the escrow gone.
package escrow

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/ledger"
	"github.com/harukimz/ledgermart-backend/internal/model"
	"github.com/rs/zerolog"
)

type purchaseCompleter interface {
	CompleteIfPending(ctx context.Context, purchaseID uint64) (int64, error)
}

type entry struct {
	purchaseID  uint64
	owner       string
	sequence    uint32
	finishAfter time.Time
	cancelAfter time.Time
	accepted    bool
	notBefore   time.Time
	index       int
}

type queue []*entry

func (q queue) Len() int            { return len(q) }
func (q queue) Less(i, j int) bool  { return q[i].notBefore.Before(q[j].notBefore) }
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *queue) Push(x interface{}) { e := x.(*entry); e.index = len(*q); *q = append(*q, e) }
func (q *queue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

type Scheduler struct {
	gateway   ledger.Gateway
	signer    ledger.Signer
	account   string
	purchases purchaseCompleter
	backoff   time.Duration
	log       zerolog.Logger

	mu sync.Mutex
	q  queue
	// acceptedSet survives an entry being popped for an attempt: acceptance
	// landing in that window would otherwise be lost on requeue.
	acceptedSet map[uint32]bool
	wake        chan struct{}
}

type Config struct {
	Gateway ledger.Gateway
	// Signer signs finish transactions on behalf of Account (the platform).
	Signer    ledger.Signer
	Account   string
	Purchases purchaseCompleter
	Backoff   time.Duration
	Logger    zerolog.Logger
}

func NewScheduler(cfg Config) *Scheduler {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	s := &Scheduler{
		gateway:   cfg.Gateway,
		signer:    cfg.Signer,
		account:   cfg.Account,
		purchases: cfg.Purchases,
		backoff:   cfg.Backoff,
		log:       cfg.Logger,
	}
	s.acceptedSet = make(map[uint32]bool)
	s.wake = make(chan struct{}, 1)
	heap.Init(&s.q)
	return s
}

// ScheduleFinish enqueues a deferred finish attempt for rec, no earlier than
// notBefore. It never blocks the caller.
func (s *Scheduler) ScheduleFinish(rec *model.EscrowShadow, notBefore time.Time) {
	e := &entry{
		purchaseID:  rec.PurchaseID,
		owner:       rec.OwnerPrincipal,
		sequence:    rec.Sequence,
		finishAfter: rec.FinishAfter,
		cancelAfter: rec.CancelAfter,
		accepted:    rec.AcceptanceObserved,
		notBefore:   notBefore,
	}
	s.mu.Lock()
	if s.acceptedSet[e.sequence] {
		e.accepted = true
	}
	heap.Push(&s.q, e)
	s.mu.Unlock()
	s.signalWake()
}

// MarkAccepted records that the buyer's acceptance has been observed for the
// escrow with the given sequence, unblocking its deferred finish. The sequence
// is remembered even when no queued entry carries it, so acceptance is not
// lost for an entry that is mid-attempt.
func (s *Scheduler) MarkAccepted(sequence uint32) {
	s.mu.Lock()
	s.acceptedSet[sequence] = true
	for _, e := range s.q {
		if e.sequence == sequence {
			e.accepted = true
		}
	}
	s.mu.Unlock()
	s.signalWake()
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run executes the scheduler loop until the context is canceled. It must
// outlive the requests that enqueue work.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		wait := s.nextWait()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("escrow scheduler stopped")
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			s.processDue(ctx)
		}
	}
}

func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q.Len() == 0 {
		return time.Hour
	}
	wait := time.Until(s.q[0].notBefore)
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Scheduler) processDue(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.q.Len() == 0 || s.q[0].notBefore.After(time.Now()) {
			s.mu.Unlock()
			return
		}
		e := heap.Pop(&s.q).(*entry)
		s.mu.Unlock()

		if requeue := s.attempt(ctx, e); requeue {
			e.notBefore = time.Now().Add(s.backoff)
			s.mu.Lock()
			heap.Push(&s.q, e)
			s.mu.Unlock()
		} else {
			s.mu.Lock()
			delete(s.acceptedSet, e.sequence)
			s.mu.Unlock()
		}
	}
}

// attempt tries to finish one escrow. It returns true when the entry should
// be re-enqueued with a backoff.
func (s *Scheduler) attempt(ctx context.Context, e *entry) bool {
	// Finish is gated on the buyer's observed acceptance until the cancel
	// window opens; past that point the ledger is the only arbiter left.
	if !e.accepted {
		s.mu.Lock()
		e.accepted = s.acceptedSet[e.sequence]
		s.mu.Unlock()
	}
	if !e.accepted && time.Now().Before(e.cancelAfter) {
		s.log.Debug().Uint32("sequence", e.sequence).Msg("acceptance not observed yet, deferring finish")
		return true
	}

	intent := ledger.EscrowFinishIntent{Account: s.account, Owner: e.owner, Sequence: e.sequence}
	result, err := s.gateway.Submit(ctx, intent, s.signer)
	if err != nil {
		var execErr *ledger.ExecutionError
		if errors.As(err, &execErr) {
			switch {
			case execErr.Code.Retryable():
				s.log.Debug().Uint32("sequence", e.sequence).Msg("finish window not open yet, backing off")
				return true
			case execErr.Code == ledger.CodeNoEntry:
				// Escrow already finished, or reclaimed via cancel-after.
				// Either way there is nothing left to release: a finish that
				// already happened completed the purchase on its own path,
				// and a cancelled escrow is a buyer/seller decision this
				// worker must not override.
				s.log.Info().Uint32("sequence", e.sequence).Msg("escrow gone from ledger, dropping entry")
				return false
			default:
				s.log.Error().Uint32("sequence", e.sequence).Str("code", string(execErr.Code)).Msg("escrow finish rejected, dropping")
				return false
			}
		}
		var submitErr *ledger.SubmitError
		if errors.As(err, &submitErr) {
			s.log.Warn().Err(err).Uint32("sequence", e.sequence).Msg("escrow finish submission failed, backing off")
			return true
		}
		s.log.Error().Err(err).Uint32("sequence", e.sequence).Msg("escrow finish failed, backing off")
		return true
	}

	status, err := s.gateway.AwaitValidation(ctx, result.TxHash)
	if err != nil {
		if errors.Is(err, ledger.ErrPollBudgetExhausted) {
			return true
		}
		s.log.Warn().Err(err).Uint32("sequence", e.sequence).Msg("escrow finish validation failed, backing off")
		return true
	}
	if !status.Code.Success() {
		if status.Code.Retryable() {
			return true
		}
		s.log.Error().Uint32("sequence", e.sequence).Str("code", string(status.Code)).Msg("escrow finish rejected on validation, dropping")
		return false
	}

	if _, err := s.purchases.CompleteIfPending(ctx, e.purchaseID); err != nil {
		s.log.Error().Err(err).Uint64("purchase_id", e.purchaseID).Msg("failed to complete purchase after finish")
	}
	s.log.Info().Uint32("sequence", e.sequence).Uint64("purchase_id", e.purchaseID).Str("tx_hash", status.TxHash).Msg("escrow finished")
	return false
}

// Pending reports how many entries are waiting. Used by health reporting.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}
