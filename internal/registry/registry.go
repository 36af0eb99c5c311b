package registry

// registry.go: almacén en memoria de posiciones protegidas.
//
// Layout:
//   positions : registro por (pool, id); nunca se borra, las inactivas quedan como histórico
//   pools     : agregado por pool: enabled, lista de ids activos, contadores, cursor de scan
//   byOwner   : índice owner → claves, en orden de creación
//
// El Registry no valida transiciones: el controller es el único escritor y le
// entrega changesets ya validados.

import (
	"sort"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Registry guarda posiciones, agregados de pool y el índice por owner.
type Registry struct {
	positions map[domain.PositionKey]domain.Position
	pools     map[domain.PoolID]domain.PoolState
	byOwner   map[common.Address][]domain.PositionKey
}

// New crea un Registry vacío.
func New() *Registry {
	return &Registry{
		positions: make(map[domain.PositionKey]domain.Position),
		pools:     make(map[domain.PoolID]domain.PoolState),
		byOwner:   make(map[common.Address][]domain.PositionKey),
	}
}

// Position devuelve una copia de la posición.
func (r *Registry) Position(key domain.PositionKey) (domain.Position, bool) {
	p, ok := r.positions[key]
	if !ok {
		return domain.Position{}, false
	}
	return p.Clone(), true
}

// Pool devuelve una copia del agregado del pool.
func (r *Registry) Pool(pool domain.PoolID) (domain.PoolState, bool) {
	s, ok := r.pools[pool]
	if !ok {
		return domain.PoolState{Pool: pool}, false
	}
	return s.Clone(), true
}

// ActivePositions devuelve las posiciones activas del pool en orden de id.
func (r *Registry) ActivePositions(pool domain.PoolID) []domain.Position {
	s, ok := r.pools[pool]
	if !ok {
		return nil
	}
	out := make([]domain.Position, 0, len(s.ActiveIDs))
	for _, id := range s.ActiveIDs {
		if p, ok := r.positions[domain.PositionKey{Pool: pool, ID: id}]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

// OwnerPositions devuelve todas las posiciones del owner (activas e históricas).
func (r *Registry) OwnerPositions(owner common.Address) []domain.Position {
	keys := r.byOwner[owner]
	out := make([]domain.Position, 0, len(keys))
	for _, k := range keys {
		if p, ok := r.positions[k]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

// NewestActive devuelve la posición activa más reciente del owner en el pool.
func (r *Registry) NewestActive(pool domain.PoolID, owner common.Address) (domain.Position, bool) {
	keys := r.byOwner[owner]
	for i := len(keys) - 1; i >= 0; i-- {
		if keys[i].Pool != pool {
			continue
		}
		if p := r.positions[keys[i]]; p.Active() {
			return p.Clone(), true
		}
	}
	return domain.Position{}, false
}

// Pools devuelve los ids de pool conocidos, ordenados.
func (r *Registry) Pools() []domain.PoolID {
	out := make([]domain.PoolID, 0, len(r.pools))
	for id := range r.pools {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Len devuelve el número total de posiciones registradas.
func (r *Registry) Len() int {
	return len(r.positions)
}

// Apply escribe un changeset. Las posiciones nuevas entran al índice por owner.
func (r *Registry) Apply(cs domain.Changeset) {
	for _, p := range cs.Positions {
		key := p.Key()
		if _, exists := r.positions[key]; !exists {
			r.byOwner[p.Owner] = append(r.byOwner[p.Owner], key)
		}
		r.positions[key] = p.Clone()
	}
	for _, s := range cs.Pools {
		r.pools[s.Pool] = s.Clone()
	}
}

// Restore carga el estado persistido, reemplazando el actual. owners es el
// índice por owner tal como se guardó; las posiciones que no aparezcan en él
// se añaden al final por fecha de creación, (pool, id) como desempate.
func (r *Registry) Restore(positions []domain.Position, pools []domain.PoolState, owners map[common.Address][]domain.PositionKey) {
	r.positions = make(map[domain.PositionKey]domain.Position, len(positions))
	r.pools = make(map[domain.PoolID]domain.PoolState, len(pools))
	r.byOwner = make(map[common.Address][]domain.PositionKey)

	for _, p := range positions {
		r.positions[p.Key()] = p.Clone()
	}
	for _, s := range pools {
		r.pools[s.Pool] = s.Clone()
	}

	indexed := make(map[domain.PositionKey]bool, len(positions))
	for owner, keys := range owners {
		for _, k := range keys {
			p, ok := r.positions[k]
			if !ok || p.Owner != owner || indexed[k] {
				continue
			}
			r.byOwner[owner] = append(r.byOwner[owner], k)
			indexed[k] = true
		}
	}

	var missing []domain.Position
	for _, p := range positions {
		if !indexed[p.Key()] {
			missing = append(missing, p)
		}
	}
	sort.SliceStable(missing, func(i, j int) bool {
		a, b := missing[i], missing[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if c := a.Pool.Cmp(b.Pool); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
	for _, p := range missing {
		r.byOwner[p.Owner] = append(r.byOwner[p.Owner], p.Key())
	}
}
