package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/ilguard/internal/adapters/fhe"
	"github.com/alejandrodnm/ilguard/internal/adapters/metrics"
	"github.com/alejandrodnm/ilguard/internal/adapters/venue"
	"github.com/alejandrodnm/ilguard/internal/controller"
	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// replayer feeds scenario events through the venue and the controller.
type replayer struct {
	pm       *venue.PoolManager
	ctrl     *controller.Controller
	enc      *fhe.LocalService
	hooks    common.Address
	recorder *metrics.Recorder // nil sin métricas

	pools map[string]domain.PoolID
	specs map[string]PoolSpec
}

// replayStats counts what happened during a replay.
type replayStats struct {
	Applied  int
	Reverted int
	Breached int
}

func newReplayer(pm *venue.PoolManager, ctrl *controller.Controller, enc *fhe.LocalService, hooks common.Address, rec *metrics.Recorder) *replayer {
	return &replayer{
		pm:       pm,
		ctrl:     ctrl,
		enc:      enc,
		hooks:    hooks,
		recorder: rec,
		pools:    make(map[string]domain.PoolID),
		specs:    make(map[string]PoolSpec),
	}
}

// run applies every event in order. A reverted event is logged and counted;
// only context cancellation stops the replay.
func (r *replayer) run(ctx context.Context, sc *Scenario) (replayStats, error) {
	var stats replayStats
	for _, p := range sc.Pools {
		r.specs[p.Name] = p
		r.pools[p.Name] = p.Key(r.hooks).ID()
	}

	for i, ev := range sc.Events {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := r.apply(ctx, ev, &stats); err != nil {
			stats.Reverted++
			slog.Warn("event reverted", "index", i, "op", ev.Op, "pool", ev.Pool, "err", err)
			continue
		}
		stats.Applied++
	}
	return stats, nil
}

func (r *replayer) apply(ctx context.Context, ev EventSpec, stats *replayStats) error {
	switch ev.Op {
	case "initialize":
		sqrtP, err := parseSqrtPrice(ev.Price)
		if err != nil {
			return err
		}
		_, err = r.pm.Initialize(ctx, r.specs[ev.Pool].Key(r.hooks), sqrtP)
		return err

	case "add":
		owner, err := address(ev.Owner, "owner")
		if err != nil {
			return err
		}
		a0, err := parseWAD(ev.Amount0)
		if err != nil {
			return err
		}
		a1, err := parseWAD(ev.Amount1)
		if err != nil {
			return err
		}
		var hookData []byte
		if ev.ThresholdBps != nil {
			hookData = r.enc.EncryptInput(*ev.ThresholdBps, owner)
		}
		return r.pm.AddLiquidity(ctx, r.pools[ev.Pool], owner, a0, a1, hookData)

	case "remove":
		owner, err := address(ev.Owner, "owner")
		if err != nil {
			return err
		}
		return r.pm.RemoveLiquidity(ctx, r.pools[ev.Pool], owner, ev.PositionID)

	case "swap":
		sqrtP, err := parseSqrtPrice(ev.Price)
		if err != nil {
			return err
		}
		sender := common.HexToAddress(ev.Caller)
		pool := r.pools[ev.Pool]
		if err := r.pm.Swap(ctx, pool, sender, sqrtP, nil); err != nil {
			return err
		}
		if report, ok := r.ctrl.LastScan(pool); ok {
			stats.Breached += len(report.Breached)
			if r.recorder != nil {
				r.recorder.ObserveScan(report.Visited, report.Failed, report.Deferred, report.Encryptions)
			}
		}
		return nil

	case "pause":
		return r.ctrl.Pause(ctx, common.HexToAddress(ev.Caller))

	case "unpause":
		return r.ctrl.Unpause(ctx, common.HexToAddress(ev.Caller))

	case "transfer":
		return r.ctrl.TransferOwnership(ctx, common.HexToAddress(ev.Caller), common.HexToAddress(ev.NewOwner))
	}
	return fmt.Errorf("unknown op %q", ev.Op)
}

func address(s, field string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s %q: not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}
