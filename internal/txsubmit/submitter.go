// Package txsubmit sends transactions through the fresh-blockhash retry
// protocol: each attempt re-fetches a blockhash, re-signs, broadcasts, and
// waits for confirmation before the next attempt is allowed.
package txsubmit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-pool-cycler/internal/observability"
	"solana-pool-cycler/internal/solana"
)

// Default submission parameters.
const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultConfirmTimeout = 45 * time.Second
)

// Config tunes the submission protocol.
type Config struct {
	// MaxAttempts is the number of full broadcast-and-confirm rounds.
	MaxAttempts int
	// InitialBackoff is the delay after the first failed attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential backoff between attempts.
	MaxBackoff time.Duration
	// ConfirmTimeout bounds how long one attempt waits for confirmation.
	ConfirmTimeout time.Duration
	// SkipConfirmation broadcasts without waiting for the cluster.
	SkipConfirmation bool
}

// DefaultConfig returns the standard submission parameters.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

// Submitter drives signed transactions to confirmed commitment.
type Submitter struct {
	gateway   solana.Gateway
	confirmer solana.Confirmer
	payer     *solana.Keypair
	config    Config
}

// Options for creating Submitter.
type Options struct {
	Gateway   solana.Gateway
	Confirmer solana.Confirmer
	Payer     *solana.Keypair
	Config    Config
}

// New creates a Submitter. Zero-valued config fields fall back to defaults.
func New(opts Options) *Submitter {
	cfg := opts.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Submitter{
		gateway:   opts.Gateway,
		confirmer: opts.Confirmer,
		payer:     opts.Payer,
		config:    cfg,
	}
}

// SubmissionError is returned when every attempt was exhausted.
type SubmissionError struct {
	Label    string
	Attempts int
	LastErr  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: submission failed after %d attempts: %v", e.Label, e.Attempts, e.LastErr)
}

func (e *SubmissionError) Unwrap() error {
	return e.LastErr
}

// Submit runs the full protocol for a built transaction and returns its
// confirmed signature. The label names the transaction in logs and metrics.
// Extra signers co-sign alongside the fee payer on every attempt.
//
// An on-chain execution failure (*solana.TxError) is terminal: the
// transaction landed and deterministically failed, so retrying the same
// bytes cannot help.
func (s *Submitter) Submit(ctx context.Context, label string, tx *solana.Transaction, extraSigners ...*solana.Keypair) (string, error) {
	sig, err := s.submit(ctx, label, tx, !s.config.SkipConfirmation, extraSigners)
	if err != nil {
		observability.RecordSubmission(label, "failed")
		return "", err
	}
	observability.RecordSubmission(label, "confirmed")
	return sig, nil
}

// Broadcast signs and sends without waiting for confirmation, still with
// per-attempt fresh blockhashes. Used on networks where waiting is disabled.
func (s *Submitter) Broadcast(ctx context.Context, label string, tx *solana.Transaction, extraSigners ...*solana.Keypair) (string, error) {
	sig, err := s.submit(ctx, label, tx, false, extraSigners)
	if err != nil {
		observability.RecordSubmission(label, "failed")
		return "", err
	}
	observability.RecordSubmission(label, "broadcast")
	return sig, nil
}

func (s *Submitter) submit(ctx context.Context, label string, tx *solana.Transaction, confirm bool, extraSigners []*solana.Keypair) (string, error) {
	tx.SetFeePayer(s.payer.PublicKey())

	backoff := s.config.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			s.log("%s: attempt %d/%d after %v (last error: %v)", label, attempt, s.config.MaxAttempts, backoff, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff = backoff * 2
			if backoff > s.config.MaxBackoff {
				backoff = s.config.MaxBackoff
			}
		}
		observability.RecordSubmissionAttempt(label)

		sig, err := s.attempt(ctx, label, tx, confirm, extraSigners)
		if err == nil {
			return sig, nil
		}

		var txErr *solana.TxError
		if errors.As(err, &txErr) {
			s.log("%s: transaction %s failed on-chain, not retrying", label, txErr.Signature)
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}

	return "", &SubmissionError{Label: label, Attempts: s.config.MaxAttempts, LastErr: lastErr}
}

// attempt runs one broadcast-and-confirm round.
func (s *Submitter) attempt(ctx context.Context, label string, tx *solana.Transaction, confirm bool, extraSigners []*solana.Keypair) (string, error) {
	blockhash, err := s.gateway.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch blockhash: %w", err)
	}
	tx.SetRecentBlockhash(blockhash.Blockhash)

	// Simulation is advisory. A simulation failure is logged for the
	// operator but never blocks the broadcast, since preflight runs the
	// same check authoritatively.
	if sim, err := s.gateway.SimulateTransaction(ctx, tx); err != nil {
		s.log("%s: simulation unavailable: %v", label, err)
	} else if sim.Err != nil {
		s.log("%s: simulation reported error: %v", label, sim.Err)
		for _, line := range sim.Logs {
			s.log("%s: sim log: %s", label, line)
		}
	}

	signers := append([]*solana.Keypair{s.payer}, extraSigners...)
	if err := tx.Sign(signers...); err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	sig, err := s.gateway.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}
	s.log("%s: broadcast %s", label, sig)

	if !confirm {
		return sig, nil
	}

	start := time.Now()
	confirmCtx, cancel := context.WithTimeout(ctx, s.config.ConfirmTimeout)
	err = s.confirmer.ConfirmSignature(confirmCtx, sig)
	cancel()

	if err == nil {
		observability.RecordConfirmationTime(time.Since(start))
		s.log("%s: confirmed %s in %v", label, sig, time.Since(start).Round(time.Millisecond))
		return sig, nil
	}

	var txErr *solana.TxError
	if errors.As(err, &txErr) {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	// Confirmation timed out. The transaction may still have landed, so
	// check its status once before declaring the attempt failed. Without
	// this check a retry could double-execute.
	statuses, stErr := s.gateway.GetSignatureStatuses(ctx, sig)
	if stErr == nil && len(statuses) > 0 && statuses[0] != nil {
		st := statuses[0]
		if st.Err != nil {
			return "", &solana.TxError{Signature: sig, Err: st.Err}
		}
		if st.Confirmed() {
			observability.RecordConfirmationTime(time.Since(start))
			s.log("%s: %s confirmed per status poll after confirmation timeout", label, sig)
			return sig, nil
		}
	}

	return "", fmt.Errorf("confirm %s: %w", sig, err)
}

func (s *Submitter) log(format string, args ...interface{}) {
	log.Printf("[txsubmit] "+format, args...)
}
