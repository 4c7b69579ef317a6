package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Gateway is the only path between the core and the distributed ledger. It is
// stateless beyond the HTTP client it holds; every call may block on network
// I/O, so callers must not hold locks across them.
type Gateway interface {
	// Submit signs and submits an intent. A transport or validation failure
	// before the ledger accepted the blob surfaces as *SubmitError; an engine
	// rejection in the acknowledgment surfaces as *ExecutionError.
	Submit(ctx context.Context, intent Intent, s Signer) (*SubmitResult, error)
	// PollStatus runs a single finality query.
	PollStatus(ctx context.Context, txHash string) (*TxStatus, error)
	// AwaitValidation polls at a bounded interval until the transaction
	// validates or the polling budget runs out (ErrPollBudgetExhausted).
	AwaitValidation(ctx context.Context, txHash string) (*TxStatus, error)
	// QueryObjects lists ledger objects of one kind held by a principal.
	QueryObjects(ctx context.Context, principal, kind string) ([]Object, error)
	// LedgerTime returns the close time of the last validated ledger.
	LedgerTime(ctx context.Context) (Time, error)
}

type Config struct {
	RPCURL       string
	HTTPClient   *http.Client
	PollInterval time.Duration
	PollBudget   time.Duration
	Logger       zerolog.Logger
}

type rpcGateway struct {
	url          string
	client       *http.Client
	pollInterval time.Duration
	pollBudget   time.Duration
	log          zerolog.Logger
}

func NewGateway(cfg Config) Gateway {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = 3 * time.Minute
	}
	return &rpcGateway{
		url:          cfg.RPCURL,
		client:       cfg.HTTPClient,
		pollInterval: cfg.PollInterval,
		pollBudget:   cfg.PollBudget,
		log:          cfg.Logger,
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error,omitempty"`
}

func (g *rpcGateway) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: status %d", method, resp.StatusCode)
	}
	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc %s: %s (%d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	return json.Unmarshal(envelope.Result, out)
}

type submitParams struct {
	TxBlob string `json:"tx_blob"`
}

type submitReply struct {
	EngineResult string `json:"engine_result"`
	TxHash       string `json:"tx_hash"`
	Sequence     uint32 `json:"sequence"`
}

func (g *rpcGateway) Submit(ctx context.Context, intent Intent, s Signer) (*SubmitResult, error) {
	if err := intent.Validate(); err != nil {
		return nil, &SubmitError{Op: intent.TxType(), Err: err}
	}
	blob, txHash, err := s.Sign(ctx, intent)
	if err != nil {
		return nil, &SubmitError{Op: intent.TxType(), Err: err}
	}
	var reply submitReply
	if err := g.call(ctx, "submit", submitParams{TxBlob: blob}, &reply); err != nil {
		return nil, &SubmitError{Op: intent.TxType(), Err: err}
	}
	if reply.TxHash == "" {
		reply.TxHash = txHash
	}
	code := Code(reply.EngineResult)
	if !code.Success() {
		return nil, &ExecutionError{TxHash: reply.TxHash, Code: code}
	}
	g.log.Debug().Str("tx_type", intent.TxType()).Str("tx_hash", reply.TxHash).Msg("transaction submitted")
	return &SubmitResult{TxHash: reply.TxHash, Code: code, Sequence: reply.Sequence}, nil
}

type txParams struct {
	Transaction string `json:"transaction"`
}

type txReply struct {
	Validated   bool   `json:"validated"`
	Result      string `json:"result"`
	LedgerIndex uint64 `json:"ledger_index"`
	CloseTime   Time   `json:"close_time"`
}

func (g *rpcGateway) PollStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	var reply txReply
	if err := g.call(ctx, "tx", txParams{Transaction: txHash}, &reply); err != nil {
		return nil, err
	}
	return &TxStatus{
		TxHash:      txHash,
		Validated:   reply.Validated,
		Code:        Code(reply.Result),
		LedgerIndex: reply.LedgerIndex,
		CloseTime:   reply.CloseTime,
	}, nil
}

func (g *rpcGateway) AwaitValidation(ctx context.Context, txHash string) (*TxStatus, error) {
	deadline := time.Now().Add(g.pollBudget)
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		status, err := g.PollStatus(ctx, txHash)
		if err == nil && status.Validated {
			return status, nil
		}
		if err != nil {
			g.log.Debug().Err(err).Str("tx_hash", txHash).Msg("finality poll failed, retrying")
		}
		if time.Now().After(deadline) {
			return nil, ErrPollBudgetExhausted
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type accountObjectsParams struct {
	Account string `json:"account"`
	Kind    string `json:"kind"`
}

type accountObjectsReply struct {
	Objects []Object `json:"objects"`
}

func (g *rpcGateway) QueryObjects(ctx context.Context, principal, kind string) ([]Object, error) {
	var reply accountObjectsReply
	if err := g.call(ctx, "account_objects", accountObjectsParams{Account: principal, Kind: kind}, &reply); err != nil {
		return nil, err
	}
	return reply.Objects, nil
}

type ledgerTimeReply struct {
	CloseTime Time `json:"close_time"`
}

func (g *rpcGateway) LedgerTime(ctx context.Context) (Time, error) {
	var reply ledgerTimeReply
	if err := g.call(ctx, "ledger_current", struct{}{}, &reply); err != nil {
		return 0, err
	}
	return reply.CloseTime, nil
}
