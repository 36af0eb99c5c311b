package ports

import (
	"context"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the persisted state the controller restores at startup.
type Snapshot struct {
	Positions []domain.Position
	Pools     []domain.PoolState
	Admin     *domain.Admin
	Breaker   *domain.VerifierBreaker
	// OwnerKeys is the owner index in insertion order.
	OwnerKeys map[common.Address][]domain.PositionKey
}

// Journal persists controller state changes.
type Journal interface {
	// Commit writes a changeset atomically.
	Commit(ctx context.Context, cs domain.Changeset) error

	SaveAdmin(ctx context.Context, admin domain.Admin) error
	SaveBreaker(ctx context.Context, cb domain.VerifierBreaker) error

	// Load returns everything previously committed.
	Load(ctx context.Context) (Snapshot, error)

	Close() error
}
