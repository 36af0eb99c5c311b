package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolID identifies a venue pool (keccak256 of its pool key).
type PoolID = common.Hash

// PositionStatus is the lifecycle state of a protected position.
// Active is the only state a position can leave; both inactive states are terminal.
type PositionStatus string

const (
	StatusActive             PositionStatus = "ACTIVE"
	StatusWithdrawnManual    PositionStatus = "WITHDRAWN_MANUAL"
	StatusWithdrawnAutomatic PositionStatus = "WITHDRAWN_AUTOMATIC"
)

// IsActive reports whether the status is StatusActive.
func (s PositionStatus) IsActive() bool {
	return s == StatusActive
}

// PositionKey addresses a position inside the registry.
type PositionKey struct {
	Pool PoolID
	ID   uint64
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%d", k.Pool.Hex(), k.ID)
}

// Position is a liquidity deposit protected by an encrypted IL threshold.
type Position struct {
	Owner          common.Address
	Pool           PoolID
	ID             uint64       // per pool, assigned from 1, never reused
	EntrySqrtPrice *uint256.Int // Q64.96 at creation
	Amount0        *uint256.Int // WAD
	Amount1        *uint256.Int // WAD
	Threshold      Ciphertext
	CreatedAt      time.Time
	Status         PositionStatus
	ClosedAt       *time.Time
}

// Key returns the registry key of the position.
func (p Position) Key() PositionKey {
	return PositionKey{Pool: p.Pool, ID: p.ID}
}

// Active reports whether the position is still monitored.
func (p Position) Active() bool {
	return p.Status.IsActive()
}

// Clone returns a deep copy; the registry never hands out its own pointers.
func (p Position) Clone() Position {
	out := p
	if p.EntrySqrtPrice != nil {
		out.EntrySqrtPrice = p.EntrySqrtPrice.Clone()
	}
	if p.Amount0 != nil {
		out.Amount0 = p.Amount0.Clone()
	}
	if p.Amount1 != nil {
		out.Amount1 = p.Amount1.Clone()
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

// PoolState is the per-pool aggregate kept next to the position records.
type PoolState struct {
	Pool               PoolID
	Enabled            bool
	ActiveIDs          []uint64 // ascending; ids are appended in assignment order
	ProtectedLiquidity uint64   // number of active protected positions
	NextID             uint64   // last assigned id; the next position gets NextID+1
	Cursor             uint64   // first id the next bounded scan visits
	TotalCreated       uint64
	TotalBreached      uint64
}

// Clone returns a copy with its own ActiveIDs slice.
func (s PoolState) Clone() PoolState {
	out := s
	out.ActiveIDs = append([]uint64(nil), s.ActiveIDs...)
	return out
}

// PositionIL is the plaintext loss of an active position at the current price.
// It is a read-only report; thresholds never appear in it.
type PositionIL struct {
	Key          PositionKey
	Owner        common.Address
	EntryPrice   *uint256.Int // WAD
	CurrentPrice *uint256.Int // WAD
	ILBps        uint64
	ValueILBps   uint64
	Err          error
}
