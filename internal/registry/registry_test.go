package registry_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	poolA = common.HexToHash("0xaa")
	poolB = common.HexToHash("0xbb")
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func makePosition(pool domain.PoolID, id uint64, owner common.Address, at time.Time) domain.Position {
	return domain.Position{
		Owner:          owner,
		Pool:           pool,
		ID:             id,
		EntrySqrtPrice: uint256.NewInt(1 << 40),
		Amount0:        uint256.NewInt(1),
		Amount1:        uint256.NewInt(1),
		CreatedAt:      at,
		Status:         domain.StatusActive,
	}
}

func TestRegistry_ApplyAndQuery(t *testing.T) {
	r := registry.New()
	now := time.Now()

	r.Apply(domain.Changeset{
		Positions: []domain.Position{
			makePosition(poolA, 1, alice, now),
			makePosition(poolA, 2, bob, now),
			makePosition(poolB, 1, alice, now),
		},
		Pools: []domain.PoolState{
			{Pool: poolA, Enabled: true, ActiveIDs: []uint64{1, 2}, NextID: 2, ProtectedLiquidity: 2},
			{Pool: poolB, Enabled: true, ActiveIDs: []uint64{1}, NextID: 1, ProtectedLiquidity: 1},
		},
	})

	assert.Equal(t, 3, r.Len())
	assert.Len(t, r.ActivePositions(poolA), 2)
	assert.Len(t, r.OwnerPositions(alice), 2)
	assert.Equal(t, []domain.PoolID{poolA, poolB}, r.Pools())

	p, ok := r.Position(domain.PositionKey{Pool: poolA, ID: 2})
	require.True(t, ok)
	assert.Equal(t, bob, p.Owner)

	_, ok = r.Position(domain.PositionKey{Pool: poolA, ID: 3})
	assert.False(t, ok)
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := registry.New()
	r.Apply(domain.Changeset{
		Positions: []domain.Position{makePosition(poolA, 1, alice, time.Now())},
		Pools:     []domain.PoolState{{Pool: poolA, Enabled: true, ActiveIDs: []uint64{1}}},
	})

	p, _ := r.Position(domain.PositionKey{Pool: poolA, ID: 1})
	p.EntrySqrtPrice.SetUint64(7)
	p.Status = domain.StatusWithdrawnManual

	s, _ := r.Pool(poolA)
	s.ActiveIDs[0] = 99

	again, _ := r.Position(domain.PositionKey{Pool: poolA, ID: 1})
	assert.Equal(t, uint64(1<<40), again.EntrySqrtPrice.Uint64())
	assert.True(t, again.Active())

	s2, _ := r.Pool(poolA)
	assert.Equal(t, []uint64{1}, s2.ActiveIDs)
}

func TestRegistry_PoolMissing(t *testing.T) {
	r := registry.New()
	s, ok := r.Pool(poolA)
	assert.False(t, ok)
	assert.Equal(t, poolA, s.Pool)
	assert.False(t, s.Enabled)
	assert.Nil(t, r.ActivePositions(poolA))
}

func TestRegistry_UpdateKeepsOwnerIndexUnique(t *testing.T) {
	r := registry.New()
	p := makePosition(poolA, 1, alice, time.Now())
	r.Apply(domain.Changeset{Positions: []domain.Position{p}})

	p.Status = domain.StatusWithdrawnAutomatic
	r.Apply(domain.Changeset{Positions: []domain.Position{p}})

	owned := r.OwnerPositions(alice)
	require.Len(t, owned, 1)
	assert.Equal(t, domain.StatusWithdrawnAutomatic, owned[0].Status)
}

func TestRegistry_NewestActive(t *testing.T) {
	r := registry.New()
	now := time.Now()
	first := makePosition(poolA, 1, alice, now)
	second := makePosition(poolA, 2, alice, now.Add(time.Second))
	other := makePosition(poolB, 1, alice, now.Add(2*time.Second))
	r.Apply(domain.Changeset{Positions: []domain.Position{first, second, other}})

	p, ok := r.NewestActive(poolA, alice)
	require.True(t, ok)
	assert.Equal(t, uint64(2), p.ID)

	second.Status = domain.StatusWithdrawnManual
	r.Apply(domain.Changeset{Positions: []domain.Position{second}})

	p, ok = r.NewestActive(poolA, alice)
	require.True(t, ok)
	assert.Equal(t, uint64(1), p.ID)

	_, ok = r.NewestActive(poolA, bob)
	assert.False(t, ok)
}

func TestRegistry_RestoreOrdersOwnerIndexByCreation(t *testing.T) {
	r := registry.New()
	now := time.Now()
	late := makePosition(poolA, 2, alice, now.Add(time.Minute))
	early := makePosition(poolA, 1, alice, now)

	r.Restore([]domain.Position{late, early}, []domain.PoolState{{Pool: poolA, Enabled: true, ActiveIDs: []uint64{1, 2}}}, nil)

	owned := r.OwnerPositions(alice)
	require.Len(t, owned, 2)
	assert.Equal(t, uint64(1), owned[0].ID)
	assert.Equal(t, uint64(2), owned[1].ID)

	p, ok := r.NewestActive(poolA, alice)
	require.True(t, ok)
	assert.Equal(t, uint64(2), p.ID)
}

func TestRegistry_RestoreKeepsPersistedOwnerOrder(t *testing.T) {
	r := registry.New()
	now := time.Now()
	inB := makePosition(poolB, 1, alice, now)
	inA := makePosition(poolA, 1, alice, now)
	bobs := makePosition(poolA, 2, bob, now)

	r.Restore(
		[]domain.Position{inA, inB, bobs},
		[]domain.PoolState{
			{Pool: poolA, Enabled: true, ActiveIDs: []uint64{1, 2}},
			{Pool: poolB, Enabled: true, ActiveIDs: []uint64{1}},
		},
		map[common.Address][]domain.PositionKey{
			// la clave de bob bajo alice se ignora
			alice: {inB.Key(), bobs.Key(), inA.Key()},
		},
	)

	owned := r.OwnerPositions(alice)
	require.Len(t, owned, 2)
	assert.Equal(t, poolB, owned[0].Pool)
	assert.Equal(t, poolA, owned[1].Pool)

	// bob no estaba en el índice: se reconstruye desde la posición
	require.Len(t, r.OwnerPositions(bob), 1)
	assert.Equal(t, uint64(2), r.OwnerPositions(bob)[0].ID)
}
