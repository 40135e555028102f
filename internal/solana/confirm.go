package solana

import (
	"context"
	"time"
)

// DefaultPollInterval is how often the polling confirmer checks a signature.
const DefaultPollInterval = 2 * time.Second

// PollingConfirmer confirms signatures by polling getSignatureStatuses.
// Used when no WebSocket endpoint is configured.
type PollingConfirmer struct {
	gateway  Gateway
	interval time.Duration
}

var _ Confirmer = (*PollingConfirmer)(nil)

// NewPollingConfirmer creates a confirmer that polls the given gateway.
// A non-positive interval uses DefaultPollInterval.
func NewPollingConfirmer(gateway Gateway, interval time.Duration) *PollingConfirmer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingConfirmer{gateway: gateway, interval: interval}
}

// ConfirmSignature blocks until the signature reaches confirmed commitment,
// the transaction fails on-chain (*TxError), or the context ends. RPC errors
// during polling are swallowed and the next tick retries.
func (c *PollingConfirmer) ConfirmSignature(ctx context.Context, signature string) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		statuses, err := c.gateway.GetSignatureStatuses(ctx, signature)
		if err == nil && len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return &TxError{Signature: signature, Err: st.Err}
			}
			if st.Confirmed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
