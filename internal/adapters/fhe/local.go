package fhe

// local.go: servicio de cifrado en proceso.
//
// Sustituye al coprocesador homomórfico: guarda los plaintexts detrás de
// handles opacos (keccak256) y aplica la misma ACL que el servicio real. Es
// suficiente para el CLI de replay y para los tests; no ofrece ninguna
// confidencialidad criptográfica.
//
// Payload de entrada del cliente: handle(32) || proof(32), con
// proof = keccak256(handle || sender). Un payload firmado para otro sender se rechaza.

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/time/rate"
)

const payloadSize = 2 * common.HashLength

var (
	ErrUnknownHandle = errors.New("fhe: unknown handle")
	ErrAccessDenied  = errors.New("fhe: access denied")
	ErrInvalidProof  = errors.New("fhe: invalid input proof")
	ErrRateLimited   = errors.New("fhe: rate limited")
)

// LocalService implements ports.Encryptor in memory.
type LocalService struct {
	mu      sync.Mutex
	caller  common.Address // principal whose operations this instance performs
	values  map[common.Hash]uint64
	bits    map[common.Hash]bool
	acl     map[common.Hash]map[common.Address]bool
	nonce   uint64
	limiter *rate.Limiter
}

var _ ports.Encryptor = (*LocalService)(nil)

// NewLocalService creates a service operated by caller. opsPerSecond <= 0
// disables throttling; otherwise each operation spends one token and fails
// with ErrRateLimited when the budget is exhausted.
func NewLocalService(caller common.Address, opsPerSecond float64, burst int) *LocalService {
	s := &LocalService{
		caller: caller,
		values: make(map[common.Hash]uint64),
		bits:   make(map[common.Hash]bool),
		acl:    make(map[common.Hash]map[common.Address]bool),
	}
	if opsPerSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opsPerSecond), burst)
	}
	return s
}

// EncryptInput is the client side: it encrypts plain for sender and returns
// the payload to attach to an add-liquidity call.
func (s *LocalService) EncryptInput(plain uint64, sender common.Address) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.newHandle("input")
	s.values[h] = plain
	proof := crypto.Keccak256Hash(h.Bytes(), sender.Bytes())

	payload := make([]byte, 0, payloadSize)
	payload = append(payload, h.Bytes()...)
	return append(payload, proof.Bytes()...)
}

// Ingest validates the input proof and returns the handle. The result carries
// no permissions yet; the caller must grant them explicitly.
func (s *LocalService) Ingest(_ context.Context, payload []byte, sender common.Address) (domain.Ciphertext, error) {
	if err := s.spend(); err != nil {
		return domain.Ciphertext{}, err
	}
	if len(payload) != payloadSize {
		return domain.Ciphertext{}, fmt.Errorf("fhe.Ingest: payload of %d bytes: %w", len(payload), domain.ErrInvalidCiphertext)
	}
	h := common.BytesToHash(payload[:common.HashLength])
	proof := common.BytesToHash(payload[common.HashLength:])
	if crypto.Keccak256Hash(h.Bytes(), sender.Bytes()) != proof {
		return domain.Ciphertext{}, fmt.Errorf("fhe.Ingest: %w", ErrInvalidProof)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[h]; !ok {
		return domain.Ciphertext{}, fmt.Errorf("fhe.Ingest: %w", ErrUnknownHandle)
	}
	return domain.NewCiphertext(h), nil
}

// Encrypt stores plain under a fresh handle usable by the caller.
func (s *LocalService) Encrypt(_ context.Context, plain uint64) (domain.Ciphertext, error) {
	if err := s.spend(); err != nil {
		return domain.Ciphertext{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.newHandle("trivial")
	s.values[h] = plain
	s.allow(h, s.caller)
	return domain.NewCiphertext(h), nil
}

// RequireGreaterOrEqual succeeds when a >= b, else returns ports.ErrConditionUnmet.
func (s *LocalService) RequireGreaterOrEqual(_ context.Context, a, b domain.Ciphertext) error {
	if err := s.spend(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ge, err := s.compare(a, b)
	if err != nil {
		return fmt.Errorf("fhe.RequireGreaterOrEqual: %w", err)
	}
	if !ge {
		return ports.ErrConditionUnmet
	}
	return nil
}

// CompareGreaterOrEqual returns an encrypted a >= b.
func (s *LocalService) CompareGreaterOrEqual(_ context.Context, a, b domain.Ciphertext) (domain.EncryptedBool, error) {
	if err := s.spend(); err != nil {
		return domain.EncryptedBool{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ge, err := s.compare(a, b)
	if err != nil {
		return domain.EncryptedBool{}, fmt.Errorf("fhe.CompareGreaterOrEqual: %w", err)
	}
	h := s.newHandle("ebool")
	s.bits[h] = ge
	s.allow(h, s.caller)
	return domain.NewEncryptedBool(h), nil
}

// DecryptBit reveals a comparison bit to the caller.
func (s *LocalService) DecryptBit(_ context.Context, bit domain.EncryptedBool) (bool, error) {
	if err := s.spend(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.bits[bit.Handle()]
	if !ok {
		return false, fmt.Errorf("fhe.DecryptBit: %w", ErrUnknownHandle)
	}
	if !s.acl[bit.Handle()][s.caller] {
		return false, fmt.Errorf("fhe.DecryptBit: %w", ErrAccessDenied)
	}
	return v, nil
}

// GrantAccess adds principal to the handle's ACL.
func (s *LocalService) GrantAccess(_ context.Context, ct domain.Ciphertext, principal common.Address) error {
	if principal == (common.Address{}) {
		return fmt.Errorf("fhe.GrantAccess: %w", domain.ErrZeroAddress)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[ct.Handle()]; !ok {
		return fmt.Errorf("fhe.GrantAccess: %w", ErrUnknownHandle)
	}
	s.allow(ct.Handle(), principal)
	return nil
}

// Reveal is user decryption: requester gets the plaintext only if allowed.
func (s *LocalService) Reveal(_ context.Context, ct domain.Ciphertext, requester common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[ct.Handle()]
	if !ok {
		return 0, fmt.Errorf("fhe.Reveal: %w", ErrUnknownHandle)
	}
	if !s.acl[ct.Handle()][requester] {
		return 0, fmt.Errorf("fhe.Reveal: %w", ErrAccessDenied)
	}
	return v, nil
}

// IsAllowed reports whether principal may use ct.
func (s *LocalService) IsAllowed(ct domain.Ciphertext, principal common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acl[ct.Handle()][principal]
}

// --- helpers internos (mu tomado) ---

func (s *LocalService) compare(a, b domain.Ciphertext) (bool, error) {
	va, ok := s.values[a.Handle()]
	if !ok {
		return false, ErrUnknownHandle
	}
	vb, ok := s.values[b.Handle()]
	if !ok {
		return false, ErrUnknownHandle
	}
	if !s.acl[a.Handle()][s.caller] || !s.acl[b.Handle()][s.caller] {
		return false, ErrAccessDenied
	}
	return va >= vb, nil
}

func (s *LocalService) allow(h common.Hash, principal common.Address) {
	if s.acl[h] == nil {
		s.acl[h] = make(map[common.Address]bool)
	}
	s.acl[h][principal] = true
}

func (s *LocalService) newHandle(kind string) common.Hash {
	s.nonce++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.nonce)
	return crypto.Keccak256Hash([]byte(kind), buf[:], s.caller.Bytes())
}

func (s *LocalService) spend() error {
	if s.limiter != nil && !s.limiter.Allow() {
		return ErrRateLimited
	}
	return nil
}
