package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type staticSigner struct {
	blob string
	err  error
}

func (s staticSigner) Sign(ctx context.Context, intent Intent) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return s.blob, "", nil
}

func newRPCServer(t *testing.T, handlers map[string]func(params json.RawMessage) (any, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler, ok := handlers[req.Method]
		if !ok {
			t.Errorf("unexpected method %q", req.Method)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var params json.RawMessage
		if len(req.Params) > 0 {
			params = req.Params[0]
		}
		result, rpcErr := handler(params)
		var envelope rpcResponse
		if rpcErr != nil {
			envelope.Error = rpcErr
		} else {
			raw, _ := json.Marshal(result)
			envelope.Result = raw
		}
		_ = json.NewEncoder(w).Encode(envelope)
	}))
}

func testGateway(url string, interval, budget time.Duration) Gateway {
	return NewGateway(Config{
		RPCURL:       url,
		PollInterval: interval,
		PollBudget:   budget,
		Logger:       zerolog.Nop(),
	})
}

func validEscrowIntent() EscrowCreateIntent {
	return EscrowCreateIntent{
		Owner:       "pBUYER",
		Destination: "pSELLER",
		AmountDrops: 1_000_000,
		FinishAfter: 100,
		CancelAfter: 200,
	}
}

func TestGatewaySubmit(t *testing.T) {
	srv := newRPCServer(t, map[string]func(json.RawMessage) (any, *rpcError){
		"submit": func(params json.RawMessage) (any, *rpcError) {
			var p submitParams
			if err := json.Unmarshal(params, &p); err != nil || p.TxBlob != "signed-blob" {
				return nil, &rpcError{Code: -1, Message: "bad blob"}
			}
			return submitReply{EngineResult: "SUCCESS", TxHash: "ABC123", Sequence: 42}, nil
		},
	})
	defer srv.Close()

	g := testGateway(srv.URL, time.Millisecond, time.Second)
	result, err := g.Submit(context.Background(), validEscrowIntent(), staticSigner{blob: "signed-blob"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.TxHash != "ABC123" || result.Sequence != 42 {
		t.Fatalf("result=%+v", result)
	}
}

func TestGatewaySubmitEngineRejection(t *testing.T) {
	srv := newRPCServer(t, map[string]func(json.RawMessage) (any, *rpcError){
		"submit": func(json.RawMessage) (any, *rpcError) {
			return submitReply{EngineResult: "TOO_EARLY", TxHash: "DEF456"}, nil
		},
	})
	defer srv.Close()

	g := testGateway(srv.URL, time.Millisecond, time.Second)
	_, err := g.Submit(context.Background(), validEscrowIntent(), staticSigner{blob: "b"})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("err=%v want ExecutionError", err)
	}
	if execErr.Code != CodeTooEarly || !execErr.Code.Retryable() {
		t.Fatalf("code=%s want retryable %s", execErr.Code, CodeTooEarly)
	}
}

func TestGatewaySubmitFailures(t *testing.T) {
	t.Run("invalid intent", func(t *testing.T) {
		g := testGateway("http://127.0.0.1:0", time.Millisecond, time.Second)
		intent := validEscrowIntent()
		intent.AmountDrops = 0
		_, err := g.Submit(context.Background(), intent, staticSigner{blob: "b"})
		var submitErr *SubmitError
		if !errors.As(err, &submitErr) || !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("err=%v want SubmitError wrapping %v", err, ErrInvalidAmount)
		}
	})
	t.Run("signer failure", func(t *testing.T) {
		g := testGateway("http://127.0.0.1:0", time.Millisecond, time.Second)
		cause := errors.New("custody service down")
		_, err := g.Submit(context.Background(), validEscrowIntent(), staticSigner{err: cause})
		if !errors.Is(err, cause) {
			t.Fatalf("err=%v want wrapped %v", err, cause)
		}
	})
	t.Run("rpc error envelope", func(t *testing.T) {
		srv := newRPCServer(t, map[string]func(json.RawMessage) (any, *rpcError){
			"submit": func(json.RawMessage) (any, *rpcError) {
				return nil, &rpcError{Code: 73, Message: "malformed blob"}
			},
		})
		defer srv.Close()
		g := testGateway(srv.URL, time.Millisecond, time.Second)
		_, err := g.Submit(context.Background(), validEscrowIntent(), staticSigner{blob: "b"})
		var submitErr *SubmitError
		if !errors.As(err, &submitErr) {
			t.Fatalf("err=%v want SubmitError", err)
		}
	})
}

func TestGatewayAwaitValidation(t *testing.T) {
	var polls atomic.Int32
	srv := newRPCServer(t, map[string]func(json.RawMessage) (any, *rpcError){
		"tx": func(json.RawMessage) (any, *rpcError) {
			if polls.Add(1) < 3 {
				return txReply{Validated: false}, nil
			}
			return txReply{Validated: true, Result: "SUCCESS", LedgerIndex: 900, CloseTime: 5000}, nil
		},
	})
	defer srv.Close()

	g := testGateway(srv.URL, time.Millisecond, time.Second)
	status, err := g.AwaitValidation(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("AwaitValidation: %v", err)
	}
	if !status.Validated || status.Code != CodeSuccess || status.LedgerIndex != 900 {
		t.Fatalf("status=%+v", status)
	}
	if got := polls.Load(); got != 3 {
		t.Fatalf("polls=%d want=3", got)
	}
}

func TestGatewayAwaitValidationBudget(t *testing.T) {
	srv := newRPCServer(t, map[string]func(json.RawMessage) (any, *rpcError){
		"tx": func(json.RawMessage) (any, *rpcError) {
			return txReply{Validated: false}, nil
		},
	})
	defer srv.Close()

	g := testGateway(srv.URL, time.Millisecond, 20*time.Millisecond)
	_, err := g.AwaitValidation(context.Background(), "ABC123")
	if !errors.Is(err, ErrPollBudgetExhausted) {
		t.Fatalf("err=%v want=%v", err, ErrPollBudgetExhausted)
	}
}

func TestGatewayQueryObjectsAndLedgerTime(t *testing.T) {
	srv := newRPCServer(t, map[string]func(json.RawMessage) (any, *rpcError){
		"account_objects": func(params json.RawMessage) (any, *rpcError) {
			var p accountObjectsParams
			if err := json.Unmarshal(params, &p); err != nil || p.Account != "pBUYER" || p.Kind != ObjectKindCredential {
				return nil, &rpcError{Code: -1, Message: "bad params"}
			}
			return accountObjectsReply{Objects: []Object{{
				Kind:    ObjectKindCredential,
				ID:      "CRED-1",
				Issuer:  "pPLATFORM",
				Subject: "pBUYER",
				Type:    "purchase-authorized",
			}}}, nil
		},
		"ledger_current": func(json.RawMessage) (any, *rpcError) {
			return ledgerTimeReply{CloseTime: 830000000}, nil
		},
	})
	defer srv.Close()

	g := testGateway(srv.URL, time.Millisecond, time.Second)
	objects, err := g.QueryObjects(context.Background(), "pBUYER", ObjectKindCredential)
	if err != nil {
		t.Fatalf("QueryObjects: %v", err)
	}
	if len(objects) != 1 || objects[0].ID != "CRED-1" {
		t.Fatalf("objects=%+v", objects)
	}
	now, err := g.LedgerTime(context.Background())
	if err != nil {
		t.Fatalf("LedgerTime: %v", err)
	}
	if now != 830000000 {
		t.Fatalf("ledger time=%d", now)
	}
}
