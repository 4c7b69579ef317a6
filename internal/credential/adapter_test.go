package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harukimz/ledgermart-backend/internal/ledger"
	"github.com/harukimz/ledgermart-backend/internal/ledger/ledgertest"
	"github.com/rs/zerolog"
)

const (
	issuerPrincipal  = "pPLATFORM"
	subjectPrincipal = "pBUYER"
)

func newTestAdapter(fake *ledgertest.Fake) *Adapter {
	return NewAdapter(fake, issuerPrincipal, ledgertest.Signer{Principal: issuerPrincipal}, zerolog.Nop())
}

func TestHasValid(t *testing.T) {
	base := ledger.Object{
		Issuer:   issuerPrincipal,
		Subject:  subjectPrincipal,
		Type:     string(TypePurchaseAuthorized),
		Accepted: true,
		Metadata: map[string]string{"product_id": "1"},
	}
	tests := []struct {
		name   string
		mutate func(fake *ledgertest.Fake, obj ledger.Object)
		match  map[string]string
		want   bool
	}{
		{
			name:   "valid without expiration",
			mutate: func(f *ledgertest.Fake, o ledger.Object) { f.AddCredential(o) },
			match:  map[string]string{"product_id": "1"},
			want:   true,
		},
		{
			name: "valid before expiration",
			mutate: func(f *ledgertest.Fake, o ledger.Object) {
				o.Expiration = f.Now().Add(time.Hour)
				f.AddCredential(o)
			},
			match: map[string]string{"product_id": "1"},
			want:  true,
		},
		{
			name: "expired exactly at ledger time",
			mutate: func(f *ledgertest.Fake, o ledger.Object) {
				o.Expiration = f.Now()
				f.AddCredential(o)
			},
			match: map[string]string{"product_id": "1"},
			want:  false,
		},
		{
			name: "expired in the past",
			mutate: func(f *ledgertest.Fake, o ledger.Object) {
				o.Expiration = f.Now()
				f.AddCredential(o)
				f.Advance(time.Minute)
			},
			match: map[string]string{"product_id": "1"},
			want:  false,
		},
		{
			name: "wrong issuer",
			mutate: func(f *ledgertest.Fake, o ledger.Object) {
				o.Issuer = "pSOMEONE"
				f.AddCredential(o)
			},
			match: map[string]string{"product_id": "1"},
			want:  false,
		},
		{
			name: "wrong type",
			mutate: func(f *ledgertest.Fake, o ledger.Object) {
				o.Type = string(TypeSellerVerified)
				f.AddCredential(o)
			},
			match: map[string]string{"product_id": "1"},
			want:  false,
		},
		{
			name:   "metadata mismatch",
			mutate: func(f *ledgertest.Fake, o ledger.Object) { f.AddCredential(o) },
			match:  map[string]string{"product_id": "2"},
			want:   false,
		},
		{
			name:   "nil match accepts any metadata",
			mutate: func(f *ledgertest.Fake, o ledger.Object) { f.AddCredential(o) },
			match:  nil,
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := ledgertest.New()
			tt.mutate(fake, base)
			a := newTestAdapter(fake)
			att, ok, err := a.HasValid(context.Background(), subjectPrincipal, TypePurchaseAuthorized, tt.match)
			if err != nil {
				t.Fatalf("HasValid: %v", err)
			}
			if ok != tt.want {
				t.Fatalf("ok=%v want=%v", ok, tt.want)
			}
			if ok && att.ID == "" {
				t.Fatalf("valid attestation missing ID")
			}
		})
	}
}

func TestIssueAcceptRoundTrip(t *testing.T) {
	fake := ledgertest.New()
	a := newTestAdapter(fake)
	ctx := context.Background()

	id, err := a.Issue(ctx, subjectPrincipal, TypePurchaseAuthorized, map[string]string{"product_id": "1"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if id == "" {
		t.Fatalf("empty credential ID")
	}

	att, ok, err := a.HasValid(ctx, subjectPrincipal, TypePurchaseAuthorized, nil)
	if err != nil || !ok {
		t.Fatalf("HasValid after issue: ok=%v err=%v", ok, err)
	}
	if att.Accepted {
		t.Fatalf("credential accepted before the subject signed")
	}

	hash, err := a.Accept(ctx, subjectPrincipal, TypePurchaseAuthorized, ledgertest.Signer{Principal: subjectPrincipal})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if hash == "" {
		t.Fatalf("empty acceptance tx hash")
	}
	att, ok, err = a.HasValid(ctx, subjectPrincipal, TypePurchaseAuthorized, nil)
	if err != nil || !ok {
		t.Fatalf("HasValid after accept: ok=%v err=%v", ok, err)
	}
	if !att.Accepted {
		t.Fatalf("acceptance not reflected on the ledger object")
	}
}

func TestIssueAttributesCredentialByMetadata(t *testing.T) {
	fake := ledgertest.New()
	a := newTestAdapter(fake)
	ctx := context.Background()

	// One subject, two purchases of the same credential type. The ID each
	// Issue returns must belong to its own purchase, not to whichever object
	// the ledger happens to list last.
	first, err := a.Issue(ctx, subjectPrincipal, TypePurchaseAuthorized, map[string]string{"product_id": "1", "escrow_sequence": "101"}, 0)
	if err != nil {
		t.Fatalf("first Issue: %v", err)
	}
	second, err := a.Issue(ctx, subjectPrincipal, TypePurchaseAuthorized, map[string]string{"product_id": "2", "escrow_sequence": "102"}, 0)
	if err != nil {
		t.Fatalf("second Issue: %v", err)
	}
	if first == second {
		t.Fatalf("both issuances resolved to %s", first)
	}

	tests := []struct {
		name  string
		match map[string]string
		want  string
	}{
		{"first product", map[string]string{"product_id": "1"}, first},
		{"second product", map[string]string{"product_id": "2"}, second},
		{"by escrow sequence", map[string]string{"escrow_sequence": "101"}, first},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.findID(ctx, subjectPrincipal, TypePurchaseAuthorized, tt.match)
			if err != nil {
				t.Fatalf("findID: %v", err)
			}
			if id != tt.want {
				t.Fatalf("id=%s want=%s", id, tt.want)
			}
		})
	}
}

func TestIssueWithTTLSetsLedgerExpiration(t *testing.T) {
	fake := ledgertest.New()
	a := newTestAdapter(fake)

	if _, err := a.Issue(context.Background(), subjectPrincipal, TypeBuyerVerified, nil, time.Hour); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	creds := fake.Credentials()
	if len(creds) != 1 {
		t.Fatalf("credentials=%d want=1", len(creds))
	}
	want := fake.Now().Add(time.Hour)
	if creds[0].Expiration != want {
		t.Fatalf("expiration=%d want=%d", creds[0].Expiration, want)
	}
}

func TestAcceptWithoutCredential(t *testing.T) {
	fake := ledgertest.New()
	a := newTestAdapter(fake)

	_, err := a.Accept(context.Background(), subjectPrincipal, TypePurchaseAuthorized, ledgertest.Signer{Principal: subjectPrincipal})
	var execErr *ledger.ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != ledger.CodeNoEntry {
		t.Fatalf("err=%v want execution error with %s", err, ledger.CodeNoEntry)
	}
}
