package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Pause suspends protection. Venue operations keep working; the hooks stop
// creating, closing and checking positions until Unpause.
func (c *Controller) Pause(ctx context.Context, caller common.Address) error {
	if err := c.onlyOwner(caller); err != nil {
		return fmt.Errorf("controller.Pause: %w", err)
	}
	if c.admin.Paused {
		return nil
	}
	next := c.admin
	next.Paused = true
	if err := c.applyAdmin(ctx, next, domain.NotifyPaused); err != nil {
		return fmt.Errorf("controller.Pause: %w", err)
	}
	slog.Warn("controller: protection paused", "by", caller.Hex())
	return nil
}

// Unpause resumes protection.
func (c *Controller) Unpause(ctx context.Context, caller common.Address) error {
	if err := c.onlyOwner(caller); err != nil {
		return fmt.Errorf("controller.Unpause: %w", err)
	}
	if !c.admin.Paused {
		return nil
	}
	next := c.admin
	next.Paused = false
	if err := c.applyAdmin(ctx, next, domain.NotifyUnpaused); err != nil {
		return fmt.Errorf("controller.Unpause: %w", err)
	}
	slog.Info("controller: protection resumed", "by", caller.Hex())
	return nil
}

// TransferOwnership hands the admin role to newOwner.
func (c *Controller) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	if err := c.onlyOwner(caller); err != nil {
		return fmt.Errorf("controller.TransferOwnership: %w", err)
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("controller.TransferOwnership: %w", domain.ErrZeroAddress)
	}
	next := c.admin
	next.Owner = newOwner
	if err := c.applyAdmin(ctx, next, domain.NotifyOwnershipTransferred); err != nil {
		return fmt.Errorf("controller.TransferOwnership: %w", err)
	}
	slog.Info("controller: ownership transferred", "from", caller.Hex(), "to", newOwner.Hex())
	return nil
}

func (c *Controller) onlyOwner(caller common.Address) error {
	if caller != c.admin.Owner {
		return domain.ErrUnauthorized
	}
	return nil
}

func (c *Controller) applyAdmin(ctx context.Context, next domain.Admin, kind domain.NotificationKind) error {
	if c.journal != nil {
		if err := c.journal.SaveAdmin(ctx, next); err != nil {
			return fmt.Errorf("save admin: %w", err)
		}
	}
	c.admin = next

	n := c.notification(kind, c.now().UTC())
	n.Owner = next.Owner
	if err := c.commit(ctx, domain.Changeset{Notifications: []domain.Notification{n}}); err != nil {
		slog.Warn("controller: record admin notification", "kind", kind, "err", err)
	}
	return nil
}
