package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/holiman/uint256"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Console implementa ports.Notifier escribiendo una línea por notificación.
type Console struct {
	out io.Writer
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Notify imprime las notificaciones de un evento en orden de emisión.
func (c *Console) Notify(_ context.Context, notifications []domain.Notification) error {
	for _, n := range notifications {
		fmt.Fprintln(c.out, formatLine(n))
	}
	return nil
}

// formatLine imprime lo esencial en una línea.
func formatLine(n domain.Notification) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %-22s", n.At.Format("15:04:05"), n.Kind)

	switch n.Kind {
	case domain.NotifyPoolEnabled:
		fmt.Fprintf(&sb, " pool=%s", shortHex(n.Pool.Hex()))
	case domain.NotifyPositionCreated:
		fmt.Fprintf(&sb, " pool=%s id=%d owner=%s", shortHex(n.Pool.Hex()), n.PositionID, shortHex(n.Owner.Hex()))
	case domain.NotifyThresholdBreached:
		fmt.Fprintf(&sb, " pool=%s id=%d owner=%s il=%s value_il=%s",
			shortHex(n.Pool.Hex()), n.PositionID, shortHex(n.Owner.Hex()),
			FormatBps(n.ILBps), FormatBps(n.ValueILBps))
	case domain.NotifyPositionWithdrawn:
		fmt.Fprintf(&sb, " pool=%s id=%d owner=%s reason=%s il=%s",
			shortHex(n.Pool.Hex()), n.PositionID, shortHex(n.Owner.Hex()), n.Reason, FormatBps(n.ILBps))
	case domain.NotifyOwnershipTransferred:
		fmt.Fprintf(&sb, " new_owner=%s", n.Owner.Hex())
	}
	return sb.String()
}

// PrintPositions imprime la tabla de posiciones.
func (c *Console) PrintPositions(positions []domain.Position) {
	if len(positions) == 0 {
		fmt.Fprintln(c.out, "  no protected positions")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Pool", "ID", "Owner", "Entry price", "Amount0", "Amount1", "Status", "Threshold")

	for _, p := range positions {
		entry := "-"
		if price, err := domain.SqrtPriceToPrice(p.EntrySqrtPrice); err == nil {
			entry = FormatWAD(price, 4)
		}
		table.Append(
			shortHex(p.Pool.Hex()),
			fmt.Sprintf("%d", p.ID),
			shortHex(p.Owner.Hex()),
			entry,
			FormatWAD(p.Amount0, 4),
			FormatWAD(p.Amount1, 4),
			string(p.Status),
			p.Threshold.String(),
		)
	}
	table.Render()
}

// PrintPools imprime los agregados por pool.
func (c *Console) PrintPools(pools []domain.PoolState) {
	if len(pools) == 0 {
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Pool", "Enabled", "Active", "Created", "Breached", "Next ID", "Cursor")
	for _, s := range pools {
		table.Append(
			shortHex(s.Pool.Hex()),
			fmt.Sprintf("%t", s.Enabled),
			fmt.Sprintf("%d", s.ProtectedLiquidity),
			fmt.Sprintf("%d", s.TotalCreated),
			fmt.Sprintf("%d", s.TotalBreached),
			fmt.Sprintf("%d", s.NextID),
			fmt.Sprintf("%d", s.Cursor),
		)
	}
	table.Render()
}

// PrintHistory imprime notificaciones leídas del journal, que llegan de la más
// reciente a la más antigua, en orden cronológico.
func (c *Console) PrintHistory(notifications []domain.Notification) {
	if len(notifications) == 0 {
		fmt.Fprintln(c.out, "  no notifications")
		return
	}
	for i := len(notifications) - 1; i >= 0; i-- {
		fmt.Fprintln(c.out, formatLine(notifications[i]))
	}
}

// PrintILReport imprime la pérdida actual de cada posición activa.
func (c *Console) PrintILReport(rows []domain.PositionIL) {
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "  no active positions")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Pool", "ID", "Owner", "Entry price", "Current price", "IL", "Value IL")
	for _, r := range rows {
		if r.Err != nil {
			table.Append(shortHex(r.Key.Pool.Hex()), fmt.Sprintf("%d", r.Key.ID), shortHex(r.Owner.Hex()),
				"-", "-", "error", r.Err.Error())
			continue
		}
		table.Append(
			shortHex(r.Key.Pool.Hex()),
			fmt.Sprintf("%d", r.Key.ID),
			shortHex(r.Owner.Hex()),
			FormatWAD(r.EntryPrice, 4),
			FormatWAD(r.CurrentPrice, 4),
			FormatBps(r.ILBps),
			FormatBps(r.ValueILBps),
		)
	}
	table.Render()
}

// FormatWAD renders an 18-decimal fixed point value with places decimals.
func FormatWAD(x *uint256.Int, places int32) string {
	if x == nil {
		return "0"
	}
	return decimal.NewFromBigInt(x.ToBig(), -18).StringFixed(places)
}

// FormatBps renders basis points as a percentage.
func FormatBps(bps uint64) string {
	return decimal.New(int64(bps), -2).StringFixed(2) + "%"
}

// shortHex acorta direcciones y hashes: 0x1234…abcd.
func shortHex(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:6] + "…" + h[len(h)-4:]
}
