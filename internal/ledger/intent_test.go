package ledger

import (
	"errors"
	"testing"
)

func TestEscrowCreateIntentValidate(t *testing.T) {
	valid := EscrowCreateIntent{
		Owner:       "pBUYER",
		Destination: "pSELLER",
		AmountDrops: 1_000_000,
		FinishAfter: 100,
		CancelAfter: 200,
	}
	tests := []struct {
		name    string
		mutate  func(i *EscrowCreateIntent)
		wantErr error
	}{
		{"valid", func(i *EscrowCreateIntent) {}, nil},
		{"missing owner", func(i *EscrowCreateIntent) { i.Owner = "" }, ErrMissingPrincipal},
		{"missing destination", func(i *EscrowCreateIntent) { i.Destination = "" }, ErrMissingPrincipal},
		{"zero amount", func(i *EscrowCreateIntent) { i.AmountDrops = 0 }, ErrInvalidAmount},
		{"negative amount", func(i *EscrowCreateIntent) { i.AmountDrops = -5 }, ErrInvalidAmount},
		{"equal window bounds", func(i *EscrowCreateIntent) { i.CancelAfter = i.FinishAfter }, ErrInvalidTimeWindow},
		{"inverted window", func(i *EscrowCreateIntent) { i.FinishAfter, i.CancelAfter = 200, 100 }, ErrInvalidTimeWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := valid
			tt.mutate(&intent)
			if err := intent.Validate(); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v want=%v", err, tt.wantErr)
			}
		})
	}
}

func TestTokenIssueIntentValidate(t *testing.T) {
	valid := TokenIssueIntent{Issuer: "pPLATFORM", Holder: "pBUYER", MaxSupply: 5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid intent: %v", err)
	}
	zero := valid
	zero.MaxSupply = 0
	if err := zero.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero supply: err=%v want=%v", err, ErrInvalidAmount)
	}
	anon := valid
	anon.Holder = ""
	if err := anon.Validate(); !errors.Is(err, ErrMissingPrincipal) {
		t.Fatalf("missing holder: err=%v want=%v", err, ErrMissingPrincipal)
	}
}

func TestCredentialIntentValidate(t *testing.T) {
	create := CredentialCreateIntent{Issuer: "pPLATFORM", Subject: "pBUYER", Type: "purchase-authorized"}
	if err := create.Validate(); err != nil {
		t.Fatalf("valid create: %v", err)
	}
	create.Type = ""
	if err := create.Validate(); err == nil {
		t.Fatalf("untyped credential must not validate")
	}

	accept := CredentialAcceptIntent{Subject: "pBUYER", Issuer: "pPLATFORM", Type: "purchase-authorized"}
	if err := accept.Validate(); err != nil {
		t.Fatalf("valid accept: %v", err)
	}
	accept.Subject = ""
	if err := accept.Validate(); !errors.Is(err, ErrMissingPrincipal) {
		t.Fatalf("missing subject: err=%v want=%v", err, ErrMissingPrincipal)
	}
}

func TestOutcomeCodes(t *testing.T) {
	tests := []struct {
		code      Code
		success   bool
		retryable bool
	}{
		{CodeSuccess, true, false},
		{CodeTooEarly, false, true},
		{CodeNoEntry, false, false},
		{CodeNoPermission, false, false},
		{CodeInsufficientFunds, false, false},
		{CodeRejected, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if tt.code.Success() != tt.success {
				t.Fatalf("success=%v want=%v", tt.code.Success(), tt.success)
			}
			if tt.code.Retryable() != tt.retryable {
				t.Fatalf("retryable=%v want=%v", tt.code.Retryable(), tt.retryable)
			}
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	cause := errors.New("connection refused")
	var err error = &SubmitError{Op: TxTypeEscrowCreate, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("submit error must unwrap to its cause")
	}
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("errors.As failed for SubmitError")
	}

	err = &ExecutionError{TxHash: "TX000001", Code: CodeNoEntry}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Code != CodeNoEntry {
		t.Fatalf("errors.As failed for ExecutionError")
	}
}
