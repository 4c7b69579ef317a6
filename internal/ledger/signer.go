package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Signer turns an intent into a signed blob plus its transaction hash. Key
// material never enters this process; production signers delegate to an
// external custody service.
type Signer interface {
	Sign(ctx context.Context, intent Intent) (blob string, txHash string, err error)
}

// SignerFactory hands out a Signer bound to one principal.
type SignerFactory interface {
	For(principal string) Signer
}

// RemoteSigner asks a custody service to sign on behalf of one principal.
type RemoteSigner struct {
	baseURL   string
	principal string
	client    *http.Client
}

type remoteSignerFactory struct {
	baseURL string
	client  *http.Client
}

func NewRemoteSignerFactory(baseURL string, client *http.Client) SignerFactory {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &remoteSignerFactory{baseURL: baseURL, client: client}
}

func (f *remoteSignerFactory) For(principal string) Signer {
	return &RemoteSigner{baseURL: f.baseURL, principal: principal, client: f.client}
}

type signRequest struct {
	Principal string `json:"principal"`
	TxType    string `json:"tx_type"`
	Intent    Intent `json:"intent"`
}

type signResponse struct {
	Blob   string `json:"blob"`
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

func (s *RemoteSigner) Sign(ctx context.Context, intent Intent) (string, string, error) {
	body, err := json.Marshal(signRequest{Principal: s.principal, TxType: intent.TxType(), Intent: intent})
	if err != nil {
		return "", "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("signing service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("signing service: status %d", resp.StatusCode)
	}
	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", err
	}
	if out.Error != "" {
		return "", "", fmt.Errorf("signing service: %s", out.Error)
	}
	return out.Blob, out.TxHash, nil
}
