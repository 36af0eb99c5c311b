package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Venue events. The venue calls the controller hooks with one of these after
// the corresponding pool operation has been applied on its side.

// PoolInitialized is emitted once per pool when the venue initializes it.
type PoolInitialized struct {
	Pool         PoolID
	SqrtPriceX96 *uint256.Int
	At           time.Time
}

// LiquidityAdded carries the deposit and, in HookData, the encrypted threshold payload.
// An empty HookData is an unprotected deposit.
type LiquidityAdded struct {
	Pool     PoolID
	Owner    common.Address
	Amount0  *uint256.Int
	Amount1  *uint256.Int
	HookData []byte
	At       time.Time
}

// LiquidityRemoved is initiated by the owner. PositionID 0 selects the owner's
// newest active position in the pool.
type LiquidityRemoved struct {
	Pool       PoolID
	Owner      common.Address
	PositionID uint64
	At         time.Time
}

// SwapExecuted is emitted after a trade moved the pool price.
type SwapExecuted struct {
	Pool       PoolID
	Sender     common.Address
	ZeroForOne bool
	AmountIn   *uint256.Int
	At         time.Time
}

// NotificationKind classifies what the controller announces.
type NotificationKind string

const (
	NotifyPoolEnabled          NotificationKind = "POOL_ENABLED"
	NotifyPositionCreated      NotificationKind = "POSITION_CREATED"
	NotifyPositionWithdrawn    NotificationKind = "POSITION_WITHDRAWN"
	NotifyThresholdBreached    NotificationKind = "IL_THRESHOLD_BREACHED"
	NotifyPaused               NotificationKind = "PAUSED"
	NotifyUnpaused             NotificationKind = "UNPAUSED"
	NotifyOwnershipTransferred NotificationKind = "OWNERSHIP_TRANSFERRED"
)

// WithdrawReason distinguishes owner-initiated from protective withdrawals.
type WithdrawReason string

const (
	WithdrawManual    WithdrawReason = "manual"
	WithdrawAutomatic WithdrawReason = "automatic"
)

// Notification is one entry of the controller's outgoing event stream.
// The IL figures are informational plaintext of the current loss, never the threshold.
type Notification struct {
	ID         string
	Kind       NotificationKind
	Pool       PoolID
	PositionID uint64
	Owner      common.Address
	Reason     WithdrawReason
	ILBps      uint64
	ValueILBps uint64
	At         time.Time
}

// Changeset is everything one venue event changes. The journal commits it first,
// then the registry applies it, so an event lands completely or not at all.
type Changeset struct {
	Positions     []Position
	Pools         []PoolState
	Notifications []Notification
}

// Empty reports whether the changeset carries no state change.
func (c Changeset) Empty() bool {
	return len(c.Positions) == 0 && len(c.Pools) == 0 && len(c.Notifications) == 0
}
