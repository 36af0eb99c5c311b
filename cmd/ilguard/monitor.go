package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/alejandrodnm/ilguard/config"
	"github.com/alejandrodnm/ilguard/internal/adapters/notify"
	"github.com/alejandrodnm/ilguard/internal/adapters/onchain"
	"github.com/alejandrodnm/ilguard/internal/controller"
	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/alejandrodnm/ilguard/internal/registry"
	"github.com/alejandrodnm/ilguard/internal/verifier"
)

// runMonitor restores the journaled positions and prints their IL against the
// on-chain price. Read-only: no hooks are registered and nothing is committed.
func runMonitor(ctx context.Context, cfg *config.Config, journal ports.Journal, v *verifier.Verifier, console *notify.Console) error {
	if journal == nil {
		return errors.New("monitor: storage.dsn is required")
	}
	if cfg.Chain.RPCURL == "" {
		return errors.New("monitor: chain.rpc_url is required")
	}

	reader, err := onchain.Dial(ctx, cfg.Chain.RPCURL, cfg.StateViewAddress(), cfg.PriceCacheTTL())
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	rows, err := monitorReport(ctx, cfg, reader, journal, v)
	if err != nil {
		return err
	}
	console.PrintILReport(rows)
	return nil
}

func monitorReport(ctx context.Context, cfg *config.Config, prices ports.PriceReader, journal ports.Journal, v *verifier.Verifier) ([]domain.PositionIL, error) {
	ctrl, err := controller.New(controller.Config{
		Address: cfg.ControllerAddress(),
		Owner:   cfg.OwnerAddress(),
		MaxScan: cfg.Controller.MaxScan,
	}, prices, v, registry.New(), journal)
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	if err := ctrl.Restore(ctx); err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	rows, err := ctrl.ILReport(ctx)
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	return rows, nil
}
