package ledger

import "errors"

// Intent is an unsigned transaction to be signed by a Signer and submitted
// through the Gateway. The core never assembles signed blobs itself.
type Intent interface {
	TxType() string
	// Actor is the principal whose signature the intent requires.
	Actor() string
	Validate() error
}

const (
	TxTypeEscrowCreate     = "EscrowCreate"
	TxTypeEscrowFinish     = "EscrowFinish"
	TxTypeEscrowCancel     = "EscrowCancel"
	TxTypeCredentialCreate = "CredentialCreate"
	TxTypeCredentialAccept = "CredentialAccept"
	TxTypeTokenIssue       = "TokenIssue"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidTimeWindow = errors.New("finish-after must be strictly before cancel-after")
	ErrMissingPrincipal  = errors.New("principal is required")
)

// EscrowCreateIntent holds funds from Owner toward Destination, releasable
// from FinishAfter and reclaimable by the owner from CancelAfter.
type EscrowCreateIntent struct {
	Owner       string            `json:"owner"`
	Destination string            `json:"destination"`
	AmountDrops int64             `json:"amount_drops"`
	FinishAfter Time              `json:"finish_after"`
	CancelAfter Time              `json:"cancel_after"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (i EscrowCreateIntent) TxType() string { return TxTypeEscrowCreate }
func (i EscrowCreateIntent) Actor() string  { return i.Owner }

func (i EscrowCreateIntent) Validate() error {
	if i.Owner == "" || i.Destination == "" {
		return ErrMissingPrincipal
	}
	if i.AmountDrops <= 0 {
		return ErrInvalidAmount
	}
	if !i.FinishAfter.Before(i.CancelAfter) {
		return ErrInvalidTimeWindow
	}
	return nil
}

type EscrowFinishIntent struct {
	Account  string `json:"account"`
	Owner    string `json:"owner"`
	Sequence uint32 `json:"sequence"`
}

func (i EscrowFinishIntent) TxType() string { return TxTypeEscrowFinish }
func (i EscrowFinishIntent) Actor() string  { return i.Account }

func (i EscrowFinishIntent) Validate() error {
	if i.Account == "" || i.Owner == "" {
		return ErrMissingPrincipal
	}
	return nil
}

type EscrowCancelIntent struct {
	Account  string `json:"account"`
	Owner    string `json:"owner"`
	Sequence uint32 `json:"sequence"`
}

func (i EscrowCancelIntent) TxType() string { return TxTypeEscrowCancel }
func (i EscrowCancelIntent) Actor() string  { return i.Account }

func (i EscrowCancelIntent) Validate() error {
	if i.Account == "" || i.Owner == "" {
		return ErrMissingPrincipal
	}
	return nil
}

// CredentialCreateIntent records a claim by Issuer about Subject. A zero
// Expiration means the credential never expires.
type CredentialCreateIntent struct {
	Issuer     string            `json:"issuer"`
	Subject    string            `json:"subject"`
	Type       string            `json:"type"`
	Expiration Time              `json:"expiration,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (i CredentialCreateIntent) TxType() string { return TxTypeCredentialCreate }
func (i CredentialCreateIntent) Actor() string  { return i.Issuer }

func (i CredentialCreateIntent) Validate() error {
	if i.Issuer == "" || i.Subject == "" {
		return ErrMissingPrincipal
	}
	if i.Type == "" {
		return errors.New("credential type is required")
	}
	return nil
}

type CredentialAcceptIntent struct {
	Subject string `json:"subject"`
	Issuer  string `json:"issuer"`
	Type    string `json:"type"`
}

func (i CredentialAcceptIntent) TxType() string { return TxTypeCredentialAccept }
func (i CredentialAcceptIntent) Actor() string  { return i.Subject }

func (i CredentialAcceptIntent) Validate() error {
	if i.Subject == "" || i.Issuer == "" {
		return ErrMissingPrincipal
	}
	if i.Type == "" {
		return errors.New("credential type is required")
	}
	return nil
}

// TokenIssueIntent mints a bounded-supply token to Holder. MaxSupply encodes
// the quantity; TransferDisabled pins the token to the holder.
type TokenIssueIntent struct {
	Issuer           string            `json:"issuer"`
	Holder           string            `json:"holder"`
	MaxSupply        int64             `json:"max_supply"`
	TransferDisabled bool              `json:"transfer_disabled"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func (i TokenIssueIntent) TxType() string { return TxTypeTokenIssue }
func (i TokenIssueIntent) Actor() string  { return i.Issuer }

func (i TokenIssueIntent) Validate() error {
	if i.Issuer == "" || i.Holder == "" {
		return ErrMissingPrincipal
	}
	if i.MaxSupply <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
