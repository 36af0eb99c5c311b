package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Ciphertext is an opaque handle to a value encrypted by the encryption service.
// Only the service (and the journal restoring a stored handle) builds one; the
// controller moves it around and compares it through the service, nothing more.
type Ciphertext struct {
	handle common.Hash
}

// NewCiphertext wraps a handle issued by the encryption service.
func NewCiphertext(handle common.Hash) Ciphertext {
	return Ciphertext{handle: handle}
}

// IsZero reports an uninitialized handle.
func (c Ciphertext) IsZero() bool {
	return c.handle == (common.Hash{})
}

// Handle exposes the raw handle to the encryption service and the journal.
func (c Ciphertext) Handle() common.Hash {
	return c.handle
}

// String never prints the full handle so logs stay free of reusable references.
func (c Ciphertext) String() string {
	if c.IsZero() {
		return "ct:<nil>"
	}
	return fmt.Sprintf("ct:%x…", c.handle[:4])
}

// EncryptedBool is the handle of an encrypted comparison result.
type EncryptedBool struct {
	handle common.Hash
}

// NewEncryptedBool wraps a comparison handle issued by the encryption service.
func NewEncryptedBool(handle common.Hash) EncryptedBool {
	return EncryptedBool{handle: handle}
}

// Handle exposes the raw handle to the encryption service.
func (b EncryptedBool) Handle() common.Hash {
	return b.handle
}
