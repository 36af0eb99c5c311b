package storage

// sqlite.go: journal del controller sobre SQLite.
//
// Tablas:
//   - `positions`: una fila por (pool, id). Nunca se borra; el cierre actualiza status y closed_at.
//   - `owner_positions`: índice owner → (pool, id) en orden de creación.
//   - `pools`: agregado por pool (enabled, contadores, cursor de scan). La lista de ids
//     activos no se guarda: se reconstruye desde `positions` al cargar.
//   - `notifications`: log append-only de lo emitido por el controller.
//   - `admin`, `verifier_breaker`: una fila cada una (ver state.go).
//
// Los uint256 van como TEXT decimal y los tiempos como TEXT de ancho fijo, así el
// orden y la precisión no dependen del driver.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    pool             TEXT    NOT NULL,
    id               INTEGER NOT NULL,
    owner            TEXT    NOT NULL,
    entry_sqrt_price TEXT    NOT NULL,
    amount0          TEXT    NOT NULL DEFAULT '0',
    amount1          TEXT    NOT NULL DEFAULT '0',
    threshold        TEXT    NOT NULL,
    status           TEXT    NOT NULL,
    created_at       TEXT    NOT NULL,
    closed_at        TEXT,
    PRIMARY KEY (pool, id)
);

CREATE TABLE IF NOT EXISTS owner_positions (
    seq   INTEGER PRIMARY KEY AUTOINCREMENT,
    owner TEXT    NOT NULL,
    pool  TEXT    NOT NULL,
    id    INTEGER NOT NULL,
    UNIQUE (pool, id)
);

CREATE TABLE IF NOT EXISTS pools (
    pool                TEXT PRIMARY KEY,
    enabled             INTEGER NOT NULL DEFAULT 0,
    protected_liquidity INTEGER NOT NULL DEFAULT 0,
    next_id             INTEGER NOT NULL DEFAULT 0,
    cursor              INTEGER NOT NULL DEFAULT 0,
    total_created       INTEGER NOT NULL DEFAULT 0,
    total_breached      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS notifications (
    id           TEXT PRIMARY KEY,
    kind         TEXT    NOT NULL,
    pool         TEXT,
    position_id  INTEGER NOT NULL DEFAULT 0,
    owner        TEXT,
    reason       TEXT,
    il_bps       INTEGER NOT NULL DEFAULT 0,
    value_il_bps INTEGER NOT NULL DEFAULT 0,
    at           TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(pool, status);
CREATE INDEX IF NOT EXISTS idx_owner_positions  ON owner_positions(owner, seq);
CREATE INDEX IF NOT EXISTS idx_notifications_at ON notifications(at DESC);
`

// timeLayout es de ancho fijo para que el orden lexicográfico coincida con el temporal.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var errPositionClosed = errors.New("position already closed")

// SQLiteJournal implementa ports.Journal usando SQLite (pure Go, sin CGo).
type SQLiteJournal struct {
	db *sql.DB
}

var _ ports.Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer; además :memory: vive en una sola conexión
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema + stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Commit escribe el changeset completo en una transacción.
func (s *SQLiteJournal) Commit(ctx context.Context, cs domain.Changeset) error {
	if cs.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Commit: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, p := range cs.Positions {
		if err := upsertPosition(ctx, tx, p); err != nil {
			return fmt.Errorf("storage.Commit: position %s: %w", p.Key(), err)
		}
	}
	for _, ps := range cs.Pools {
		if err := upsertPool(ctx, tx, ps); err != nil {
			return fmt.Errorf("storage.Commit: pool %s: %w", ps.Pool.Hex(), err)
		}
	}
	for _, n := range cs.Notifications {
		if err := insertNotification(ctx, tx, n); err != nil {
			return fmt.Errorf("storage.Commit: notification %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Commit: commit: %w", err)
	}
	return nil
}

// Load devuelve todo lo persistido.
func (s *SQLiteJournal) Load(ctx context.Context) (ports.Snapshot, error) {
	var snap ports.Snapshot

	positions, err := s.loadPositions(ctx)
	if err != nil {
		return snap, fmt.Errorf("storage.Load: %w", err)
	}
	pools, err := s.loadPools(ctx, positions)
	if err != nil {
		return snap, fmt.Errorf("storage.Load: %w", err)
	}
	admin, err := s.loadAdmin(ctx)
	if err != nil {
		return snap, fmt.Errorf("storage.Load: %w", err)
	}
	breaker, err := s.loadBreaker(ctx)
	if err != nil {
		return snap, fmt.Errorf("storage.Load: %w", err)
	}
	owners, err := s.loadOwnerIndex(ctx)
	if err != nil {
		return snap, fmt.Errorf("storage.Load: %w", err)
	}

	snap.Positions = positions
	snap.Pools = pools
	snap.Admin = admin
	snap.Breaker = breaker
	snap.OwnerKeys = owners
	return snap, nil
}

// loadOwnerIndex lee owner_positions en el orden en que se insertaron.
func (s *SQLiteJournal) loadOwnerIndex(ctx context.Context) (map[common.Address][]domain.PositionKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner, pool, id FROM owner_positions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query owner_positions: %w", err)
	}
	defer rows.Close()

	out := make(map[common.Address][]domain.PositionKey)
	for rows.Next() {
		var owner, pool string
		var id uint64
		if err := rows.Scan(&owner, &pool, &id); err != nil {
			return nil, fmt.Errorf("scan owner_positions row: %w", err)
		}
		addr := common.HexToAddress(owner)
		out[addr] = append(out[addr], domain.PositionKey{Pool: common.HexToHash(pool), ID: id})
	}
	return out, rows.Err()
}

// Notifications devuelve las últimas limit notificaciones, la más reciente primero.
// limit <= 0 devuelve todas.
func (s *SQLiteJournal) Notifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	q := `SELECT id, kind, pool, position_id, owner, reason, il_bps, value_il_bps, at
	      FROM notifications ORDER BY at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.Notifications: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind, at string
		var pool, owner, reason sql.NullString
		if err := rows.Scan(&n.ID, &kind, &pool, &n.PositionID, &owner, &reason, &n.ILBps, &n.ValueILBps, &at); err != nil {
			return nil, fmt.Errorf("storage.Notifications: scan row: %w", err)
		}
		n.Kind = domain.NotificationKind(kind)
		n.Reason = domain.WithdrawReason(reason.String)
		if pool.Valid {
			n.Pool = common.HexToHash(pool.String)
		}
		if owner.Valid {
			n.Owner = common.HexToAddress(owner.String)
		}
		n.At = parseTime(at)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func upsertPosition(ctx context.Context, tx *sql.Tx, p domain.Position) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO positions
			(pool, id, owner, entry_sqrt_price, amount0, amount1, threshold, status, created_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool, id) DO UPDATE SET
			status    = excluded.status,
			closed_at = excluded.closed_at
		WHERE positions.status = 'ACTIVE'`,
		p.Pool.Hex(), p.ID, p.Owner.Hex(),
		decString(p.EntrySqrtPrice), decString(p.Amount0), decString(p.Amount1),
		p.Threshold.Handle().Hex(), string(p.Status),
		formatTime(p.CreatedAt), nullTime(p.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// la fila existía ya cerrada: un estado terminal no se reescribe
		return errPositionClosed
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO owner_positions (owner, pool, id) VALUES (?, ?, ?)`,
		p.Owner.Hex(), p.Pool.Hex(), p.ID,
	); err != nil {
		return fmt.Errorf("owner index: %w", err)
	}
	return nil
}

func upsertPool(ctx context.Context, tx *sql.Tx, ps domain.PoolState) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pools
			(pool, enabled, protected_liquidity, next_id, cursor, total_created, total_breached)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pool) DO UPDATE SET
			enabled             = excluded.enabled,
			protected_liquidity = excluded.protected_liquidity,
			next_id             = excluded.next_id,
			cursor              = excluded.cursor,
			total_created       = excluded.total_created,
			total_breached      = excluded.total_breached`,
		ps.Pool.Hex(), boolToInt(ps.Enabled), ps.ProtectedLiquidity, ps.NextID,
		ps.Cursor, ps.TotalCreated, ps.TotalBreached,
	)
	return err
}

func insertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	var pool, owner any
	if n.Pool != (domain.PoolID{}) {
		pool = n.Pool.Hex()
	}
	if n.Owner != (common.Address{}) {
		owner = n.Owner.Hex()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, kind, pool, position_id, owner, reason, il_bps, value_il_bps, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Kind), pool, n.PositionID, owner, string(n.Reason),
		n.ILBps, n.ValueILBps, formatTime(n.At),
	)
	return err
}

func (s *SQLiteJournal) loadPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool, id, owner, entry_sqrt_price, amount0, amount1, threshold, status, created_at, closed_at
		FROM positions ORDER BY created_at, pool, id`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var pool, owner, entry, a0, a1, threshold, status, createdAt string
		var closedAt sql.NullString
		if err := rows.Scan(&pool, &p.ID, &owner, &entry, &a0, &a1, &threshold, &status, &createdAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Pool = common.HexToHash(pool)
		p.Owner = common.HexToAddress(owner)
		if p.EntrySqrtPrice, err = uint256.FromDecimal(entry); err != nil {
			return nil, fmt.Errorf("position %s/%d entry price: %w", pool, p.ID, err)
		}
		if p.Amount0, err = uint256.FromDecimal(a0); err != nil {
			return nil, fmt.Errorf("position %s/%d amount0: %w", pool, p.ID, err)
		}
		if p.Amount1, err = uint256.FromDecimal(a1); err != nil {
			return nil, fmt.Errorf("position %s/%d amount1: %w", pool, p.ID, err)
		}
		p.Threshold = domain.NewCiphertext(common.HexToHash(threshold))
		p.Status = domain.PositionStatus(status)
		p.CreatedAt = parseTime(createdAt)
		if closedAt.Valid && closedAt.String != "" {
			t := parseTime(closedAt.String)
			p.ClosedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// loadPools reconstruye ActiveIDs a partir de las posiciones activas, en orden de id.
func (s *SQLiteJournal) loadPools(ctx context.Context, positions []domain.Position) ([]domain.PoolState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pool, enabled, protected_liquidity, next_id, cursor, total_created, total_breached
		FROM pools ORDER BY pool`)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	active := make(map[domain.PoolID][]uint64)
	for _, p := range positions {
		if p.Active() {
			active[p.Pool] = append(active[p.Pool], p.ID)
		}
	}

	var out []domain.PoolState
	for rows.Next() {
		var ps domain.PoolState
		var pool string
		var enabled int
		if err := rows.Scan(&pool, &enabled, &ps.ProtectedLiquidity, &ps.NextID, &ps.Cursor, &ps.TotalCreated, &ps.TotalBreached); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		ps.Pool = common.HexToHash(pool)
		ps.Enabled = enabled != 0
		ps.ActiveIDs = sortedIDs(active[ps.Pool])
		out = append(out, ps)
	}
	return out, rows.Err()
}

func sortedIDs(ids []uint64) []uint64 {
	out := append([]uint64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func decString(x *uint256.Int) string {
	if x == nil {
		return "0"
	}
	return x.Dec()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
