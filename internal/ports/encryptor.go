package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// ErrConditionUnmet is returned by RequireGreaterOrEqual when the encrypted
// condition is false. It is an answer, not a failure of the service.
var ErrConditionUnmet = errors.New("encrypted condition unmet")

// Encryptor is the homomorphic encryption/comparison service.
type Encryptor interface {
	// Ingest turns a client-encrypted input payload into a handle usable by caller.
	Ingest(ctx context.Context, payload []byte, sender common.Address) (domain.Ciphertext, error)

	// Encrypt encrypts a plaintext under the service key (trivial encryption).
	Encrypt(ctx context.Context, plain uint64) (domain.Ciphertext, error)

	// RequireGreaterOrEqual succeeds exactly when a >= b and fails with
	// ErrConditionUnmet otherwise.
	RequireGreaterOrEqual(ctx context.Context, a, b domain.Ciphertext) error

	// CompareGreaterOrEqual returns the encrypted result of a >= b.
	CompareGreaterOrEqual(ctx context.Context, a, b domain.Ciphertext) (domain.EncryptedBool, error)

	// DecryptBit reveals a single comparison bit, never an operand.
	DecryptBit(ctx context.Context, bit domain.EncryptedBool) (bool, error)

	// GrantAccess allows principal to use ct in later operations.
	GrantAccess(ctx context.Context, ct domain.Ciphertext, principal common.Address) error
}
