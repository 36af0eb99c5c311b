package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// HandleSize is the byte length of a ciphertext handle at the head of a payload.
const HandleSize = common.HashLength

// Strategy selects how an encrypted comparison is turned into a decision.
type Strategy string

const (
	// StrategyEnforce calls a service operation that only succeeds when the
	// condition holds; a rejected call means "not breached".
	StrategyEnforce Strategy = "enforce"

	// StrategyDecryptBit decrypts the one-bit comparison result, never the threshold.
	StrategyDecryptBit Strategy = "decrypt-bit"
)

// ParseStrategy maps a config value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyEnforce, "":
		return StrategyEnforce, nil
	case StrategyDecryptBit:
		return StrategyDecryptBit, nil
	default:
		return "", fmt.Errorf("verifier.ParseStrategy: unknown strategy %q", s)
	}
}

// Verifier stores and compares encrypted thresholds without decrypting them.
type Verifier struct {
	enc        ports.Encryptor
	strategy   Strategy
	controller common.Address
}

// New creates a Verifier acting on behalf of the controller principal.
func New(enc ports.Encryptor, strategy Strategy, controller common.Address) (*Verifier, error) {
	if enc == nil {
		return nil, errors.New("verifier.New: nil encryptor")
	}
	if controller == (common.Address{}) {
		return nil, fmt.Errorf("verifier.New: controller: %w", domain.ErrZeroAddress)
	}
	if strategy == "" {
		strategy = StrategyEnforce
	}
	return &Verifier{enc: enc, strategy: strategy, controller: controller}, nil
}

// Strategy returns the configured comparison strategy.
func (v *Verifier) Strategy() Strategy {
	return v.strategy
}

// Seal validates the threshold payload, imports it and grants the controller
// and the owner access to the stored handle. The check is structural only: the
// plaintext range is validated client-side before encryption.
func (v *Verifier) Seal(ctx context.Context, payload []byte, owner common.Address) (domain.Ciphertext, error) {
	if err := ValidatePayload(payload); err != nil {
		return domain.Ciphertext{}, fmt.Errorf("verifier.Seal: %w", err)
	}

	ct, err := v.enc.Ingest(ctx, payload, owner)
	if err != nil {
		return domain.Ciphertext{}, fmt.Errorf("verifier.Seal: ingest: %w", err)
	}
	if ct.IsZero() {
		return domain.Ciphertext{}, fmt.Errorf("verifier.Seal: ingest returned empty handle: %w", domain.ErrInvalidCiphertext)
	}

	// Sin el grant al controller el handle no se puede reutilizar en scans
	// posteriores; sin el del owner, el owner no puede recuperar su umbral.
	if err := v.enc.GrantAccess(ctx, ct, v.controller); err != nil {
		return domain.Ciphertext{}, fmt.Errorf("verifier.Seal: grant controller: %w", err)
	}
	if err := v.enc.GrantAccess(ctx, ct, owner); err != nil {
		return domain.Ciphertext{}, fmt.Errorf("verifier.Seal: grant owner: %w", err)
	}
	return ct, nil
}

// ValidatePayload rejects payloads that cannot carry a handle.
func ValidatePayload(payload []byte) error {
	if len(payload) < HandleSize {
		return fmt.Errorf("payload of %d bytes: %w", len(payload), domain.ErrInvalidCiphertext)
	}
	if common.BytesToHash(payload[:HandleSize]) == (common.Hash{}) {
		return fmt.Errorf("zero handle: %w", domain.ErrInvalidCiphertext)
	}
	return nil
}

// NewSession starts a comparison session scoped to one controller call.
func (v *Verifier) NewSession() *Session {
	return &Session{v: v, cache: make(map[string]cachedIL)}
}

type cachedIL struct {
	ilBps uint64
	ct    domain.Ciphertext
}

// Session caches the encrypted current-IL per entry price for the duration of
// one controller call. Drop it when the call returns.
type Session struct {
	v           *Verifier
	cache       map[string]cachedIL
	encryptions int
}

// Encryptions returns how many times the session asked the service to encrypt.
func (s *Session) Encryptions() int {
	return s.encryptions
}

// Check decides whether currentILBps breaches the encrypted threshold.
// Breach is inclusive: currentIL >= threshold.
func (s *Session) Check(ctx context.Context, entrySqrtPrice *uint256.Int, currentILBps uint64, threshold domain.Ciphertext) Outcome {
	if threshold.IsZero() {
		return failed(fmt.Errorf("verifier.Check: %w", domain.ErrInvalidCiphertext))
	}

	current, err := s.encryptedIL(ctx, entrySqrtPrice, currentILBps)
	if err != nil {
		return failed(fmt.Errorf("verifier.Check: encrypt current IL: %w", err))
	}

	switch s.v.strategy {
	case StrategyDecryptBit:
		bit, err := s.v.enc.CompareGreaterOrEqual(ctx, current, threshold)
		if err != nil {
			return failed(fmt.Errorf("verifier.Check: compare: %w", err))
		}
		breached, err := s.v.enc.DecryptBit(ctx, bit)
		if err != nil {
			return failed(fmt.Errorf("verifier.Check: decrypt bit: %w", err))
		}
		if breached {
			return Outcome{Kind: Breached}
		}
		return Outcome{Kind: NotBreached}

	default:
		err := s.v.enc.RequireGreaterOrEqual(ctx, current, threshold)
		switch {
		case err == nil:
			return Outcome{Kind: Breached}
		case errors.Is(err, ports.ErrConditionUnmet):
			return Outcome{Kind: NotBreached}
		default:
			return failed(fmt.Errorf("verifier.Check: require: %w", err))
		}
	}
}

func (s *Session) encryptedIL(ctx context.Context, entrySqrtPrice *uint256.Int, ilBps uint64) (domain.Ciphertext, error) {
	key := ""
	if entrySqrtPrice != nil {
		key = entrySqrtPrice.Hex()
	}
	if c, ok := s.cache[key]; ok && c.ilBps == ilBps {
		return c.ct, nil
	}
	ct, err := s.v.enc.Encrypt(ctx, ilBps)
	if err != nil {
		return domain.Ciphertext{}, err
	}
	s.encryptions++
	s.cache[key] = cachedIL{ilBps: ilBps, ct: ct}
	return ct, nil
}
