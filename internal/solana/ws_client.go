package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-pool-cycler/internal/observability"
)

// WSConfirmerConfig configures WebSocket confirmer behavior.
type WSConfirmerConfig struct {
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// ReconnectDelay is initial delay before a redial attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between redial attempts.
	MaxReconnectDelay time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfirmerConfig returns default WebSocket confirmer configuration.
func DefaultWSConfirmerConfig() WSConfirmerConfig {
	return WSConfirmerConfig{
		HandshakeTimeout:  10 * time.Second,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSConfirmer confirms transaction signatures over the Solana WebSocket API.
// Each confirmation opens a short-lived connection, issues a one-shot
// signatureSubscribe, and waits for the single notification the node sends
// once the signature reaches confirmed commitment. A dropped connection is
// redialed with exponential backoff until the context ends.
type WSConfirmer struct {
	endpoint  string
	config    WSConfirmerConfig
	requestID atomic.Uint64
}

var _ Confirmer = (*WSConfirmer)(nil)

// NewWSConfirmer creates a signature confirmer for the given WebSocket endpoint.
func NewWSConfirmer(endpoint string, config *WSConfirmerConfig) *WSConfirmer {
	cfg := DefaultWSConfirmerConfig()
	if config != nil {
		cfg = *config
	}
	return &WSConfirmer{
		endpoint: endpoint,
		config:   cfg,
	}
}

// ConfirmSignature blocks until the signature reaches confirmed commitment,
// the transaction fails on-chain (*TxError), or the context ends.
func (c *WSConfirmer) ConfirmSignature(ctx context.Context, signature string) error {
	delay := c.config.ReconnectDelay
	attempt := 0

	for {
		if attempt > 0 {
			observability.RecordWSReconnect()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = delay * 2
			if delay > c.config.MaxReconnectDelay {
				delay = c.config.MaxReconnectDelay
			}
		}
		attempt++

		err := c.confirmOnce(ctx, signature)
		if err == nil {
			return nil
		}
		var txErr *TxError
		if errors.As(err, &txErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Transport error, redial and resubscribe.
	}
}

// confirmOnce performs a single subscribe-and-wait round trip.
func (c *WSConfirmer) confirmOnce(ctx context.Context, signature string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unstick the blocking read when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": "confirmed"},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		// Subscription confirmation; keep reading for the notification.
		var resp wsSubscribeResponse
		if err := json.Unmarshal(message, &resp); err == nil && resp.ID == reqID && resp.Result > 0 {
			continue
		}

		var notif wsSignatureNotification
		if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "signatureNotification" {
			if notif.Params == nil {
				continue
			}
			if notif.Params.Result.Value.Err != nil {
				return &TxError{Signature: signature, Err: notif.Params.Result.Value.Err}
			}
			return nil
		}

		var errResp struct {
			JSONRPC string `json:"jsonrpc"`
			ID      uint64 `json:"id"`
			Error   *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
			return fmt.Errorf("subscribe rejected: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsSignatureNotification struct {
	JSONRPC string                   `json:"jsonrpc"`
	Method  string                   `json:"method"`
	Params  *wsSignatureNotifyParams `json:"params"`
}

type wsSignatureNotifyParams struct {
	Subscription int64                   `json:"subscription"`
	Result       wsSignatureNotifyResult `json:"result"`
}

type wsSignatureNotifyResult struct {
	Value wsSignatureValue `json:"value"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}
