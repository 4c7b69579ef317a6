package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/credential"
	"github.com/harukimz/ledgermart-backend/internal/ledger"
	"github.com/harukimz/ledgermart-backend/internal/model"
	"github.com/harukimz/ledgermart-backend/internal/repository"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// FlowState names the step the purchase state machine is in.
type FlowState string

const (
	StateInit               FlowState = "init"
	StateEscrowPending      FlowState = "escrow_pending"
	StateCredentialIssuing  FlowState = "credential_issuing"
	StateAwaitingAcceptance FlowState = "awaiting_acceptance"
	StateFinishing          FlowState = "finishing"
	StateGrantAccess        FlowState = "grant_access"
	StateFailed             FlowState = "failed"
)

type FlowStatus string

const (
	StatusCompleted FlowStatus = "completed"
	// StatusPending means the flow could not reach a terminal state inside
	// this call (deferred finish scheduled, or a transaction still awaiting
	// validation). It is reconciled on the next query, never a failure.
	StatusPending FlowStatus = "pending"
	StatusFailed  FlowStatus = "failed"
)

// FailReason identifies the step that terminated a failed flow.
type FailReason string

const (
	FailEscrowSubmit    FailReason = "escrow_submit"
	FailEscrowRejected  FailReason = "escrow_rejected"
	FailCredentialIssue FailReason = "credential_issue"
	FailAcceptance      FailReason = "acceptance"
	FailFinishRejected  FailReason = "finish_rejected"
	FailAccessGrant     FailReason = "access_grant"
)

// Artifacts accumulate per completed step of one flow execution.
type Artifacts struct {
	EscrowTxHash   string
	EscrowSequence uint32
	CredentialID   string
	AcceptTxHash   string
	FinishTxHash   string
	Access         *AccessGrant
}

type PurchaseResult struct {
	State      FlowState
	Status     FlowStatus
	FailReason FailReason
	Artifacts  Artifacts
	Purchase   *model.Purchase
}

// AccessStateKind is the tagged variant resolved in the Init step.
type AccessStateKind int

const (
	NoCredential AccessStateKind = iota
	// CredentialIssued means a live credential exists but the buyer never
	// accepted it: an earlier flow died in AwaitingAcceptance. The escrow is
	// still open, so the flow resumes at acceptance instead of granting access.
	CredentialIssued
	ValidCredential
	ValidCredentialAndRated
)

type AccessState struct {
	Kind        AccessStateKind
	Attestation *credential.Attestation
}

// FlowLocker rejects concurrent duplicate starts of the same (product, buyer)
// flow.
type FlowLocker interface {
	Acquire(ctx context.Context, productID uint64, buyer string) (bool, error)
	Release(ctx context.Context, productID uint64, buyer string) error
}

// FinishScheduler receives escrows whose release must happen after the
// interactive flow has returned.
type FinishScheduler interface {
	ScheduleFinish(rec *model.EscrowShadow, notBefore time.Time)
	MarkAccepted(sequence uint32)
}

// PurchaseOrchestrator drives the ordered purchase flow: credential check,
// conditional payment, credential issuance, buyer acceptance, escrow release,
// access grant. Each flow runs on the caller's goroutine; flows for different
// (product, buyer) pairs proceed fully in parallel and share no state beyond
// the record store and the ledger.
type PurchaseOrchestrator struct {
	products  repository.ProductRepository
	purchases repository.PurchaseRepository
	ratings   repository.RatingRepository
	escrows   repository.EscrowRepository
	gateway   ledger.Gateway
	creds     *credential.Adapter
	scheduler FinishScheduler
	access    AccessService
	lock      FlowLocker

	platform       string
	platformSigner ledger.Signer
	finishDelta    time.Duration
	cancelDelta    time.Duration
	credentialTTL  time.Duration
	log            zerolog.Logger
}

type OrchestratorConfig struct {
	Products  repository.ProductRepository
	Purchases repository.PurchaseRepository
	Ratings   repository.RatingRepository
	Escrows   repository.EscrowRepository
	Gateway   ledger.Gateway
	Creds     *credential.Adapter
	Scheduler FinishScheduler
	Access    AccessService
	Lock      FlowLocker

	PlatformPrincipal string
	PlatformSigner    ledger.Signer
	// FinishDelta and CancelDelta set the escrow window relative to ledger
	// time at creation. FinishDelta must be strictly smaller.
	FinishDelta   time.Duration
	CancelDelta   time.Duration
	CredentialTTL time.Duration
	Logger        zerolog.Logger
}

func NewPurchaseOrchestrator(cfg OrchestratorConfig) *PurchaseOrchestrator {
	if cfg.FinishDelta <= 0 {
		cfg.FinishDelta = 65 * time.Second
	}
	if cfg.CancelDelta <= cfg.FinishDelta {
		cfg.CancelDelta = 24 * time.Hour
	}
	return &PurchaseOrchestrator{
		products:       cfg.Products,
		purchases:      cfg.Purchases,
		ratings:        cfg.Ratings,
		escrows:        cfg.Escrows,
		gateway:        cfg.Gateway,
		creds:          cfg.Creds,
		scheduler:      cfg.Scheduler,
		access:         cfg.Access,
		lock:           cfg.Lock,
		platform:       cfg.PlatformPrincipal,
		platformSigner: cfg.PlatformSigner,
		finishDelta:    cfg.FinishDelta,
		cancelDelta:    cfg.CancelDelta,
		credentialTTL:  cfg.CredentialTTL,
		log:            cfg.Logger,
	}
}

func productMetadata(productID uint64) map[string]string {
	return map[string]string{"product_id": strconv.FormatUint(productID, 10)}
}

// ExecutePurchase runs the full flow for one (product, buyer) pair. Errors
// are returned only for precondition violations (unknown product, duplicate
// in-flight flow, own product, already settled); everything the state machine
// decides is encoded in the result.
func (o *PurchaseOrchestrator) ExecutePurchase(ctx context.Context, productID uint64, buyer string, signer ledger.Signer) (*PurchaseResult, error) {
	if buyer == "" {
		return nil, ErrPrincipalRequired
	}
	product, err := o.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if product.SellerPrincipal == buyer {
		return nil, ErrOwnProduct
	}

	acquired, err := o.lock.Acquire(ctx, productID, buyer)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrPurchaseInFlight
	}
	defer func() {
		if err := o.lock.Release(context.WithoutCancel(ctx), productID, buyer); err != nil {
			o.log.Warn().Err(err).Uint64("product_id", productID).Msg("failed to release flow lock")
		}
	}()

	result := &PurchaseResult{State: StateInit, Status: StatusPending}

	// Init: an accepted valid credential bypasses the whole settlement path;
	// an issued but never accepted one resumes it at the acceptance step.
	access, err := o.resolveAccessState(ctx, productID, buyer)
	if err != nil {
		return nil, err
	}
	switch access.Kind {
	case ValidCredential, ValidCredentialAndRated:
		result.Artifacts.CredentialID = access.Attestation.ID
		return o.grantAccess(ctx, result, product, buyer, access.Kind == ValidCredentialAndRated)
	case CredentialIssued:
		return o.resumeSettlement(ctx, result, product, buyer, signer, access.Attestation)
	}

	// A completed purchase without a live credential must not settle twice;
	// re-access goes through RequestAccess instead.
	completed, err := o.purchases.FindCompleted(ctx, productID, buyer)
	if err != nil {
		return nil, err
	}
	if completed != nil {
		return nil, ErrAlreadyPurchased
	}

	shadow, ok := o.createEscrow(ctx, result, product, buyer, signer)
	if !ok {
		return result, nil
	}

	if !o.issueCredential(ctx, result, product, buyer, shadow) {
		return result, nil
	}

	if !o.awaitAcceptance(ctx, result, buyer, signer, shadow) {
		return result, nil
	}

	if !o.finishEscrow(ctx, result, buyer, shadow) {
		return result, nil
	}

	return o.grantAccess(ctx, result, product, buyer, false)
}

func (o *PurchaseOrchestrator) resolveAccessState(ctx context.Context, productID uint64, buyer string) (AccessState, error) {
	att, ok, err := o.creds.HasValid(ctx, buyer, credential.TypePurchaseAuthorized, productMetadata(productID))
	if err != nil {
		return AccessState{}, err
	}
	if !ok {
		return AccessState{Kind: NoCredential}, nil
	}
	if !att.Accepted {
		return AccessState{Kind: CredentialIssued, Attestation: att}, nil
	}
	rating, err := o.ratings.FindByProductAndBuyer(ctx, productID, buyer)
	if err != nil {
		return AccessState{}, err
	}
	if rating != nil {
		return AccessState{Kind: ValidCredentialAndRated, Attestation: att}, nil
	}
	return AccessState{Kind: ValidCredential, Attestation: att}, nil
}

// resumeSettlement picks up a flow that previously died between credential
// issuance and acceptance. The escrow and credential already exist on the
// ledger, so only acceptance, finish, and the access grant remain.
func (o *PurchaseOrchestrator) resumeSettlement(ctx context.Context, result *PurchaseResult, product *model.Product, buyer string, signer ledger.Signer, att *credential.Attestation) (*PurchaseResult, error) {
	result.Artifacts.CredentialID = att.ID
	shadow := o.resumeShadow(ctx, att)
	o.log.Info().
		Uint64("product_id", product.ID).
		Str("buyer", buyer).
		Uint32("sequence", shadow.Sequence).
		Msg("resuming settlement from unaccepted credential")

	if !o.awaitAcceptance(ctx, result, buyer, signer, shadow) {
		return result, nil
	}
	if !o.finishEscrow(ctx, result, buyer, shadow) {
		return result, nil
	}
	return o.grantAccess(ctx, result, product, buyer, false)
}

// resumeShadow recovers the escrow shadow for a resumed flow, preferring the
// persisted row and falling back to the sequence carried in the credential's
// correlation metadata.
func (o *PurchaseOrchestrator) resumeShadow(ctx context.Context, att *credential.Attestation) *model.EscrowShadow {
	seq64, err := strconv.ParseUint(att.Metadata["escrow_sequence"], 10, 32)
	if err != nil {
		o.log.Warn().Str("credential_id", att.ID).Msg("credential carries no escrow sequence")
		return &model.EscrowShadow{}
	}
	seq := uint32(seq64)
	if rec, err := o.escrows.FindBySequence(ctx, seq); err == nil && rec != nil {
		return rec
	}
	return &model.EscrowShadow{Sequence: seq}
}

// createEscrow drives the EscrowPending state. It reports whether the flow
// may continue; on false the result carries the terminal outcome. The
// purchase record is written only after the escrow is on the ledger, so a
// rejected submission leaves the record store untouched.
func (o *PurchaseOrchestrator) createEscrow(ctx context.Context, result *PurchaseResult, product *model.Product, buyer string, signer ledger.Signer) (*model.EscrowShadow, bool) {
	result.State = StateEscrowPending

	now, err := o.gateway.LedgerTime(ctx)
	if err != nil {
		o.fail(result, FailEscrowSubmit, err)
		return nil, false
	}
	finishAfter := now.Add(o.finishDelta)
	cancelAfter := now.Add(o.cancelDelta)

	intent := ledger.EscrowCreateIntent{
		Owner:       buyer,
		Destination: product.SellerPrincipal,
		AmountDrops: product.PriceDrops,
		FinishAfter: finishAfter,
		CancelAfter: cancelAfter,
		Metadata:    productMetadata(product.ID),
	}
	submitted, err := o.gateway.Submit(ctx, intent, signer)
	if err != nil {
		var execErr *ledger.ExecutionError
		if errors.As(err, &execErr) {
			o.fail(result, FailEscrowRejected, err)
		} else {
			o.fail(result, FailEscrowSubmit, err)
		}
		return nil, false
	}
	result.Artifacts.EscrowTxHash = submitted.TxHash
	result.Artifacts.EscrowSequence = submitted.Sequence

	status, err := o.gateway.AwaitValidation(ctx, submitted.TxHash)
	if err != nil && !errors.Is(err, ledger.ErrPollBudgetExhausted) {
		o.fail(result, FailEscrowSubmit, err)
		return nil, false
	}
	if status != nil && !status.Code.Success() {
		o.fail(result, FailEscrowRejected, &ledger.ExecutionError{TxHash: status.TxHash, Code: status.Code})
		return nil, false
	}

	seq := submitted.Sequence
	hash := submitted.TxHash
	purchase := &model.Purchase{
		ProductID:       product.ID,
		BuyerPrincipal:  buyer,
		SellerPrincipal: product.SellerPrincipal,
		Status:          model.PurchaseStatusPending,
		EscrowSequence:  &seq,
		TxHash:          &hash,
	}
	if err := o.purchases.Create(ctx, purchase); err != nil {
		o.fail(result, FailEscrowSubmit, err)
		return nil, false
	}
	result.Purchase = purchase

	shadow := &model.EscrowShadow{
		PurchaseID:           purchase.ID,
		OwnerPrincipal:       buyer,
		DestinationPrincipal: product.SellerPrincipal,
		AmountDrops:          product.PriceDrops,
		Sequence:             seq,
		FinishAfter:          finishAfter.Std(),
		CancelAfter:          cancelAfter.Std(),
	}
	if err := o.escrows.Create(ctx, shadow); err != nil {
		o.log.Error().Err(err).Uint32("sequence", seq).Msg("failed to persist escrow shadow")
	}
	// Registered immediately: whatever happens to the rest of the flow, the
	// deferred finish path now owns this escrow.
	o.scheduler.ScheduleFinish(shadow, shadow.FinishAfter)

	o.log.Info().
		Uint64("product_id", product.ID).
		Str("buyer", buyer).
		Uint32("sequence", seq).
		Str("tx_hash", hash).
		Msg("escrow created")
	return shadow, true
}

// issueCredential drives CredentialIssuing. A failure here is fatal to the
// interactive path only: the escrow is not rolled back (the platform cannot
// revoke a conditional payment) and stays registered with the scheduler, so
// the buyer can reclaim after the cancel window if acceptance never happens.
func (o *PurchaseOrchestrator) issueCredential(ctx context.Context, result *PurchaseResult, product *model.Product, buyer string, shadow *model.EscrowShadow) bool {
	result.State = StateCredentialIssuing

	metadata := map[string]string{
		"product_id":      strconv.FormatUint(product.ID, 10),
		"escrow_sequence": strconv.FormatUint(uint64(shadow.Sequence), 10),
		"seller":          product.SellerPrincipal,
		"price_drops":     strconv.FormatInt(product.PriceDrops, 10),
	}
	credentialID, err := o.creds.Issue(ctx, buyer, credential.TypePurchaseAuthorized, metadata, o.credentialTTL)
	if err != nil {
		o.fail(result, FailCredentialIssue, err)
		return false
	}
	result.Artifacts.CredentialID = credentialID
	return true
}

func (o *PurchaseOrchestrator) awaitAcceptance(ctx context.Context, result *PurchaseResult, buyer string, signer ledger.Signer, shadow *model.EscrowShadow) bool {
	result.State = StateAwaitingAcceptance

	acceptHash, err := o.creds.Accept(ctx, buyer, credential.TypePurchaseAuthorized, signer)
	if err != nil {
		if errors.Is(err, ledger.ErrPollBudgetExhausted) {
			result.Status = StatusPending
			return false
		}
		o.fail(result, FailAcceptance, err)
		return false
	}
	result.Artifacts.AcceptTxHash = acceptHash

	shadow.AcceptanceObserved = true
	o.scheduler.MarkAccepted(shadow.Sequence)
	if err := o.escrows.MarkAccepted(ctx, shadow.Sequence); err != nil {
		o.log.Warn().Err(err).Uint32("sequence", shadow.Sequence).Msg("failed to persist acceptance")
	}
	return true
}

// finishEscrow drives Finishing. A time-gated rejection is never surfaced as
// a failure: the attempt is already queued with the scheduler, so the flow
// returns pending and the release happens on the deferred path.
func (o *PurchaseOrchestrator) finishEscrow(ctx context.Context, result *PurchaseResult, buyer string, shadow *model.EscrowShadow) bool {
	result.State = StateFinishing

	intent := ledger.EscrowFinishIntent{
		Account:  o.platform,
		Owner:    buyer,
		Sequence: shadow.Sequence,
	}
	submitted, err := o.gateway.Submit(ctx, intent, o.platformSigner)
	if err != nil {
		var execErr *ledger.ExecutionError
		switch {
		case errors.As(err, &execErr) && execErr.Code.Retryable():
			o.log.Info().Uint32("sequence", shadow.Sequence).Msg("finish window not open, deferring to scheduler")
			result.Status = StatusPending
			return false
		case errors.As(err, &execErr) && execErr.Code == ledger.CodeNoEntry:
			// Already finished on another path; idempotent success.
			return true
		case errors.As(err, &execErr):
			o.fail(result, FailFinishRejected, err)
			return false
		default:
			result.Status = StatusPending
			return false
		}
	}

	status, err := o.gateway.AwaitValidation(ctx, submitted.TxHash)
	if err != nil {
		result.Status = StatusPending
		return false
	}
	if !status.Code.Success() {
		if status.Code.Retryable() {
			result.Status = StatusPending
			return false
		}
		o.fail(result, FailFinishRejected, &ledger.ExecutionError{TxHash: status.TxHash, Code: status.Code})
		return false
	}
	result.Artifacts.FinishTxHash = status.TxHash
	return true
}

// grantAccess is the terminal success state. readOnly marks the idempotent
// re-access short-circuit, which must not touch the record store.
func (o *PurchaseOrchestrator) grantAccess(ctx context.Context, result *PurchaseResult, product *model.Product, buyer string, readOnly bool) (*PurchaseResult, error) {
	result.State = StateGrantAccess

	grant, err := o.access.RequestAccess(ctx, product, buyer)
	if err != nil {
		o.fail(result, FailAccessGrant, err)
		return result, nil
	}
	result.Artifacts.Access = grant

	if result.Purchase == nil {
		if p, err := o.purchases.FindByProductAndBuyer(ctx, product.ID, buyer); err == nil {
			result.Purchase = p
		}
	}
	if !readOnly && result.Purchase != nil {
		if _, err := o.purchases.CompleteIfPending(ctx, result.Purchase.ID); err != nil {
			o.log.Error().Err(err).Uint64("purchase_id", result.Purchase.ID).Msg("failed to complete purchase")
		} else {
			result.Purchase.Status = model.PurchaseStatusCompleted
		}
	}

	result.Status = StatusCompleted
	o.log.Info().Uint64("product_id", product.ID).Str("buyer", buyer).Msg("access granted")
	return result, nil
}

func (o *PurchaseOrchestrator) fail(result *PurchaseResult, reason FailReason, err error) {
	result.State = StateFailed
	result.Status = StatusFailed
	result.FailReason = reason
	o.log.Error().Err(err).Str("reason", string(reason)).Msg("purchase flow failed")
}

// GetByProduct returns the latest purchase of a product visible to principal.
func (o *PurchaseOrchestrator) GetByProduct(ctx context.Context, productID uint64, principal string) (*model.Purchase, error) {
	p, err := o.purchases.FindByProductAndBuyer(ctx, productID, principal)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// RequestAccess re-issues an access grant for a buyer who already settled:
// an accepted purchase-authorized credential or a completed purchase
// qualifies. An issued but unaccepted credential does not; that flow has not
// settled yet.
func (o *PurchaseOrchestrator) RequestAccess(ctx context.Context, productID uint64, buyer string) (*AccessGrant, error) {
	product, err := o.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	att, ok, err := o.creds.HasValid(ctx, buyer, credential.TypePurchaseAuthorized, productMetadata(productID))
	if err != nil {
		return nil, err
	}
	if !ok || !att.Accepted {
		completed, err := o.purchases.FindCompleted(ctx, productID, buyer)
		if err != nil {
			return nil, err
		}
		if completed == nil {
			return nil, ErrForbidden
		}
	}
	return o.access.RequestAccess(ctx, product, buyer)
}

// ListByBuyer lists the buyer's purchases.
func (o *PurchaseOrchestrator) ListByBuyer(ctx context.Context, buyer string) ([]model.Purchase, error) {
	if buyer == "" {
		return nil, ErrPrincipalRequired
	}
	return o.purchases.ListByBuyer(ctx, buyer)
}
