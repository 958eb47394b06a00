package main

import (
	"context"
	"time"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/log"
	"github.com/cuemby/fabrik/pkg/registry"
	"github.com/cuemby/fabrik/pkg/rollout"
	"github.com/cuemby/fabrik/pkg/storage"
	"github.com/cuemby/fabrik/pkg/worker"
)

// rolloutDriver closes over the pieces an all-in-one node has in one
// process — the registry, the host-local worker Manager, and the
// cluster's component store — to actually run the two-phase batch
// rollout spec.md §4.2 describes when a Deployment activates a new
// revision. It is the onActivate hook newRegistryMux fires after a
// successful ActivateDeployment call.
//
// A split gateway/runtime-host/registry topology has no wire message
// for "trigger a rollout on this host" (pkg/rpc/wire's FabricServer
// only carries invocation traffic), so this only drives workers local
// to this process, the same honest limitation pkg/rpc/fabric.go's
// latestComponent documents for cross-process component resolution.
type rolloutDriver struct {
	reg     *registry.Registry
	workers *worker.Manager
	store   storage.Store
}

func newRolloutDriver(reg *registry.Registry, workers *worker.Manager, store storage.Store) *rolloutDriver {
	return &rolloutDriver{reg: reg, workers: workers, store: store}
}

// onDeploymentActivated resolves environmentID's newly active revision's
// pinned component versions, finds the workers of each component that
// are active on this host, and batch-updates them to match via
// pkg/rollout. Best-effort: it runs after ActivateDeployment has
// already committed the new revision as active, so a rollout failure
// here means workers are running stale code, not that the activation
// itself failed.
func (d *rolloutDriver) onDeploymentActivated(environmentID string) {
	logger := log.WithComponent("rollout-driver")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	view, err := d.reg.GetEnvironmentView("", environmentID, true)
	if err != nil {
		logger.Error().Err(err).Str("environment", environmentID).Msg("rollout: load environment view")
		return
	}

	for componentID, version := range view.Revision.Components {
		target, err := d.resolveVersion(componentID, version)
		if err != nil {
			logger.Error().Err(err).Str("component", componentID).Msg("rollout: resolve component version")
			continue
		}
		if target == nil {
			logger.Warn().Str("component", componentID).Int("version", version).Msg("rollout: pinned version not found, skipping")
			continue
		}

		ids := d.activeWorkersFor(componentID)
		if len(ids) == 0 {
			continue
		}

		ro := rollout.NewRollout(d.workers)
		result, err := ro.Run(ctx, rollout.Plan{
			Workers:     ids,
			Target:      *target,
			Mode:        domain.UpdateModeAutomatic,
			Parallelism: 4,
			BatchDelay:  2 * time.Second,
		})
		if err != nil {
			logger.Error().Err(err).Str("component", componentID).Int("updated", len(result.Updated)).Int("failed", len(result.Failed)).Msg("rollout aborted")
			continue
		}
		logger.Info().Str("component", componentID).Int("updated", len(result.Updated)).Msg("rollout complete")
	}
}

func (d *rolloutDriver) resolveVersion(componentID string, version int) (*domain.ComponentMetadata, error) {
	versions, err := d.store.ListComponentVersions(componentID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, nil
}

func (d *rolloutDriver) activeWorkersFor(componentID string) []domain.WorkerId {
	var ids []domain.WorkerId
	for _, actor := range d.workers.List() {
		if actor.ID.ComponentId == componentID {
			ids = append(ids, actor.ID)
		}
	}
	return ids
}
