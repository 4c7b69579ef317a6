// Package ledgertest provides an in-memory Gateway implementation for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/ledger"
)

// Escrow is one conditional payment held by the fake ledger.
type Escrow struct {
	Owner       string
	Destination string
	AmountDrops int64
	Sequence    uint32
	FinishAfter ledger.Time
	CancelAfter ledger.Time
}

// IssuedToken records a bounded-supply token minted through the fake.
type IssuedToken struct {
	ID               string
	Issuer           string
	Holder           string
	MaxSupply        int64
	TransferDisabled bool
	Metadata         map[string]string
}

// Fake implements ledger.Gateway against in-memory state with a controllable
// clock and failure injection per transaction type.
type Fake struct {
	mu          sync.Mutex
	now         ledger.Time
	nextSeq     uint32
	nextTx      int
	ledgerIndex uint64

	escrows   map[uint32]*Escrow
	finished  map[uint32]bool
	cancelled map[uint32]bool
	creds     []ledger.Object
	tokens    []IssuedToken

	txs          map[string]*ledger.TxStatus
	txTypeByHash map[string]string
	submitCounts map[string]int

	// SubmitErrs injects a transport failure for a transaction type.
	SubmitErrs map[string]error
	// RejectCodes injects an engine rejection for a transaction type.
	RejectCodes map[string]ledger.Code
	// StallValidation makes AwaitValidation exhaust its budget for a type.
	StallValidation map[string]bool
}

func New() *Fake {
	return &Fake{
		now:             ledger.FromTime(time.Now()),
		nextSeq:         100,
		ledgerIndex:     1,
		escrows:         make(map[uint32]*Escrow),
		finished:        make(map[uint32]bool),
		cancelled:       make(map[uint32]bool),
		txs:             make(map[string]*ledger.TxStatus),
		txTypeByHash:    make(map[string]string),
		submitCounts:    make(map[string]int),
		SubmitErrs:      make(map[string]error),
		RejectCodes:     make(map[string]ledger.Code),
		StallValidation: make(map[string]bool),
	}
}

func (f *Fake) SetTime(t ledger.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *Fake) Now() ledger.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Submit(ctx context.Context, intent ledger.Intent, s ledger.Signer) (*ledger.SubmitResult, error) {
	if err := intent.Validate(); err != nil {
		return nil, &ledger.SubmitError{Op: intent.TxType(), Err: err}
	}
	if _, _, err := s.Sign(ctx, intent); err != nil {
		return nil, &ledger.SubmitError{Op: intent.TxType(), Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	txType := intent.TxType()
	f.submitCounts[txType]++

	if err, ok := f.SubmitErrs[txType]; ok {
		return nil, &ledger.SubmitError{Op: txType, Err: err}
	}
	hash := f.nextHashLocked(txType)
	if code, ok := f.RejectCodes[txType]; ok {
		return nil, &ledger.ExecutionError{TxHash: hash, Code: code}
	}

	var seq uint32
	switch it := intent.(type) {
	case ledger.EscrowCreateIntent:
		f.nextSeq++
		seq = f.nextSeq
		f.escrows[seq] = &Escrow{
			Owner:       it.Owner,
			Destination: it.Destination,
			AmountDrops: it.AmountDrops,
			Sequence:    seq,
			FinishAfter: it.FinishAfter,
			CancelAfter: it.CancelAfter,
		}
	case ledger.EscrowFinishIntent:
		e, ok := f.escrows[it.Sequence]
		if !ok {
			return nil, &ledger.ExecutionError{TxHash: hash, Code: ledger.CodeNoEntry}
		}
		if f.now.Before(e.FinishAfter) {
			return nil, &ledger.ExecutionError{TxHash: hash, Code: ledger.CodeTooEarly}
		}
		delete(f.escrows, it.Sequence)
		f.finished[it.Sequence] = true
	case ledger.EscrowCancelIntent:
		e, ok := f.escrows[it.Sequence]
		if !ok {
			return nil, &ledger.ExecutionError{TxHash: hash, Code: ledger.CodeNoEntry}
		}
		if f.now.Before(e.CancelAfter) {
			return nil, &ledger.ExecutionError{TxHash: hash, Code: ledger.CodeTooEarly}
		}
		delete(f.escrows, it.Sequence)
		f.cancelled[it.Sequence] = true
	case ledger.CredentialCreateIntent:
		f.creds = append(f.creds, ledger.Object{
			Kind:       ledger.ObjectKindCredential,
			ID:         fmt.Sprintf("CRED-%d", len(f.creds)+1),
			Issuer:     it.Issuer,
			Subject:    it.Subject,
			Type:       it.Type,
			Expiration: it.Expiration,
			Metadata:   it.Metadata,
		})
	case ledger.CredentialAcceptIntent:
		accepted := false
		for i := range f.creds {
			c := &f.creds[i]
			if c.Issuer == it.Issuer && c.Subject == it.Subject && c.Type == it.Type {
				c.Accepted = true
				accepted = true
			}
		}
		if !accepted {
			return nil, &ledger.ExecutionError{TxHash: hash, Code: ledger.CodeNoEntry}
		}
	case ledger.TokenIssueIntent:
		f.tokens = append(f.tokens, IssuedToken{
			ID:               fmt.Sprintf("TOKEN-%d", len(f.tokens)+1),
			Issuer:           it.Issuer,
			Holder:           it.Holder,
			MaxSupply:        it.MaxSupply,
			TransferDisabled: it.TransferDisabled,
			Metadata:         it.Metadata,
		})
	default:
		return nil, &ledger.SubmitError{Op: txType, Err: fmt.Errorf("unsupported intent %T", intent)}
	}

	f.ledgerIndex++
	f.txs[hash] = &ledger.TxStatus{
		TxHash:      hash,
		Validated:   true,
		Code:        ledger.CodeSuccess,
		LedgerIndex: f.ledgerIndex,
		CloseTime:   f.now,
	}
	return &ledger.SubmitResult{TxHash: hash, Code: ledger.CodeSuccess, Sequence: seq}, nil
}

func (f *Fake) nextHashLocked(txType string) string {
	f.nextTx++
	hash := fmt.Sprintf("TX%06d", f.nextTx)
	f.txTypeByHash[hash] = txType
	return hash
}

func (f *Fake) PollStatus(ctx context.Context, txHash string) (*ledger.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.txs[txHash]
	if !ok {
		return nil, fmt.Errorf("tx %s not found", txHash)
	}
	copied := *status
	return &copied, nil
}

func (f *Fake) AwaitValidation(ctx context.Context, txHash string) (*ledger.TxStatus, error) {
	f.mu.Lock()
	stalled := f.StallValidation[f.txTypeByHash[txHash]]
	f.mu.Unlock()
	if stalled {
		return nil, ledger.ErrPollBudgetExhausted
	}
	return f.PollStatus(ctx, txHash)
}

func (f *Fake) QueryObjects(ctx context.Context, principal, kind string) ([]ledger.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Object
	switch kind {
	case ledger.ObjectKindCredential:
		for _, c := range f.creds {
			if c.Subject == principal {
				out = append(out, c)
			}
		}
	case ledger.ObjectKindEscrow:
		for _, e := range f.escrows {
			if e.Owner == principal {
				out = append(out, ledger.Object{
					Kind:    ledger.ObjectKindEscrow,
					ID:      fmt.Sprintf("ESCROW-%d", e.Sequence),
					Issuer:  e.Owner,
					Subject: e.Destination,
				})
			}
		}
	}
	return out, nil
}

func (f *Fake) LedgerTime(ctx context.Context) (ledger.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now, nil
}

// AddCredential preseeds a ledger-held credential.
func (f *Fake) AddCredential(obj ledger.Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj.Kind = ledger.ObjectKindCredential
	if obj.ID == "" {
		obj.ID = fmt.Sprintf("CRED-%d", len(f.creds)+1)
	}
	f.creds = append(f.creds, obj)
}

// ForceCancel removes an escrow as if the owner reclaimed it after expiry.
func (f *Fake) ForceCancel(seq uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.escrows, seq)
	f.cancelled[seq] = true
}

func (f *Fake) EscrowFinished(seq uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished[seq]
}

func (f *Fake) EscrowCancelled(seq uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[seq]
}

func (f *Fake) OpenEscrow(seq uint32) (Escrow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.escrows[seq]
	if !ok {
		return Escrow{}, false
	}
	return *e, true
}

func (f *Fake) IssuedTokens() []IssuedToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]IssuedToken(nil), f.tokens...)
}

func (f *Fake) Credentials() []ledger.Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Object(nil), f.creds...)
}

// SubmitCount reports how many submissions of one transaction type the fake
// has seen, including rejected ones.
func (f *Fake) SubmitCount(txType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCounts[txType]
}

// TotalSubmits counts every ledger write attempted through the fake.
func (f *Fake) TotalSubmits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.submitCounts {
		total += n
	}
	return total
}

// Signer is a deterministic ledger.Signer for one principal.
type Signer struct {
	Principal string
	Err       error
}

func (s Signer) Sign(ctx context.Context, intent ledger.Intent) (string, string, error) {
	if s.Err != nil {
		return "", "", s.Err
	}
	return fmt.Sprintf("signed:%s:%s", s.Principal, intent.TxType()), "", nil
}

// SignerFactory hands out Signer values keyed by principal.
type SignerFactory struct{}

func (SignerFactory) For(principal string) ledger.Signer {
	return Signer{Principal: principal}
}
