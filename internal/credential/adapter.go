// Package credential reads and writes ledger-held attestations. It is a thin
// translation layer over the ledger gateway's object queries; credentials are
// never persisted locally.
package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/ledger"
	"github.com/rs/zerolog"
)

type Type string

const (
	TypePlatformVerified   Type = "platform-verified"
	TypePurchaseAuthorized Type = "purchase-authorized"
	TypeSellerVerified     Type = "seller-verified"
	TypeBuyerVerified      Type = "buyer-verified"
)

// Attestation is a ledger-recorded claim issued by the platform about a
// subject principal.
type Attestation struct {
	ID         string
	Issuer     string
	Subject    string
	Type       Type
	Accepted   bool
	Expiration ledger.Time
	Metadata   map[string]string
}

type Adapter struct {
	gateway        ledger.Gateway
	issuer         string
	platformSigner ledger.Signer
	log            zerolog.Logger
}

func NewAdapter(gateway ledger.Gateway, issuer string, platformSigner ledger.Signer, log zerolog.Logger) *Adapter {
	return &Adapter{gateway: gateway, issuer: issuer, platformSigner: platformSigner, log: log}
}

// HasValid reports whether subject holds a non-expired attestation of the
// given type issued by the platform. Every key/value pair in match must be
// present in the attestation's correlation metadata; a nil match accepts any.
// Expiration is compared against ledger time, not wall-clock time, so clock
// skew against the ledger cannot flip the answer.
func (a *Adapter) HasValid(ctx context.Context, subject string, typ Type, match map[string]string) (*Attestation, bool, error) {
	objects, err := a.gateway.QueryObjects(ctx, subject, ledger.ObjectKindCredential)
	if err != nil {
		return nil, false, err
	}
	now, err := a.gateway.LedgerTime(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, obj := range objects {
		if obj.Issuer != a.issuer || Type(obj.Type) != typ {
			continue
		}
		if obj.Expiration != 0 && !now.Before(obj.Expiration) {
			continue
		}
		if !metadataMatches(obj.Metadata, match) {
			continue
		}
		att := fromObject(obj)
		return &att, true, nil
	}
	return nil, false, nil
}

func metadataMatches(metadata, match map[string]string) bool {
	for k, v := range match {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Issue records a new attestation about subject and waits for it to validate.
// A zero ttl issues a credential with no expiration.
func (a *Adapter) Issue(ctx context.Context, subject string, typ Type, metadata map[string]string, ttl time.Duration) (string, error) {
	intent := ledger.CredentialCreateIntent{
		Issuer:   a.issuer,
		Subject:  subject,
		Type:     string(typ),
		Metadata: metadata,
	}
	if ttl > 0 {
		now, err := a.gateway.LedgerTime(ctx)
		if err != nil {
			return "", err
		}
		intent.Expiration = now.Add(ttl)
	}
	result, err := a.gateway.Submit(ctx, intent, a.platformSigner)
	if err != nil {
		return "", err
	}
	status, err := a.gateway.AwaitValidation(ctx, result.TxHash)
	if err != nil {
		return "", err
	}
	if !status.Code.Success() {
		return "", &ledger.ExecutionError{TxHash: status.TxHash, Code: status.Code}
	}
	a.log.Info().Str("subject", subject).Str("type", string(typ)).Msg("credential issued")

	id, err := a.findID(ctx, subject, typ, metadata)
	if err != nil {
		return "", err
	}
	return id, nil
}

// findID resolves the ledger object ID of an issued credential. The match is
// on correlation metadata as well as (issuer, type): a subject can hold
// several credentials of the same type for different products, and the ID
// must belong to the one just issued.
func (a *Adapter) findID(ctx context.Context, subject string, typ Type, match map[string]string) (string, error) {
	objects, err := a.gateway.QueryObjects(ctx, subject, ledger.ObjectKindCredential)
	if err != nil {
		return "", err
	}
	id := ""
	for _, obj := range objects {
		if obj.Issuer != a.issuer || Type(obj.Type) != typ {
			continue
		}
		if !metadataMatches(obj.Metadata, match) {
			continue
		}
		id = obj.ID
	}
	if id == "" {
		return "", fmt.Errorf("credential for %s not found after issuance", subject)
	}
	return id, nil
}

// Accept records the subject's acceptance of a previously issued attestation.
// The acceptance transaction is signed by the subject, not the platform.
func (a *Adapter) Accept(ctx context.Context, subject string, typ Type, signer ledger.Signer) (string, error) {
	intent := ledger.CredentialAcceptIntent{
		Subject: subject,
		Issuer:  a.issuer,
		Type:    string(typ),
	}
	result, err := a.gateway.Submit(ctx, intent, signer)
	if err != nil {
		return "", err
	}
	status, err := a.gateway.AwaitValidation(ctx, result.TxHash)
	if err != nil {
		return "", err
	}
	if !status.Code.Success() {
		return "", &ledger.ExecutionError{TxHash: status.TxHash, Code: status.Code}
	}
	return status.TxHash, nil
}

func fromObject(obj ledger.Object) Attestation {
	return Attestation{
		ID:         obj.ID,
		Issuer:     obj.Issuer,
		Subject:    obj.Subject,
		Type:       Type(obj.Type),
		Accepted:   obj.Accepted,
		Expiration: obj.Expiration,
		Metadata:   obj.Metadata,
	}
}
