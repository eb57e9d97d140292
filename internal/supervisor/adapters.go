package supervisor

import (
	"context"
	"os/exec"

	"github.com/browseros-org/sidecar-supervisor/internal/model"
	"github.com/browseros-org/sidecar-supervisor/internal/prefs"
	"github.com/browseros-org/sidecar-supervisor/internal/process"
)

// defaultProcessController adapts internal/process's package-level
// functions to the ProcessController interface.
type defaultProcessController struct{}

func (defaultProcessController) Launch(ctx context.Context, config model.ServerLaunchConfig) (*exec.Cmd, bool, error) {
	result, err := process.Launch(ctx, config)
	if err != nil {
		return nil, false, err
	}
	return result.Cmd, result.UsedFallback, nil
}

func (defaultProcessController) Terminate(cmd *exec.Cmd, force bool) error {
	return process.Terminate(cmd, force)
}

func (defaultProcessController) IsOrphanAlive(ctx context.Context, state model.ServerState) bool {
	return process.IsOrphanAlive(ctx, state)
}

func (defaultProcessController) KillOrphan(ctx context.Context, pid uint64) error {
	return process.KillOrphan(ctx, pid)
}

// defaultPortResolver implements PortResolver over internal/portprobe and
// the documented default ports, persisting the resolved set back to the
// preference store.
type defaultPortResolver struct{}

func (defaultPortResolver) ResolvePorts(store prefs.Store, excluded map[int]bool) (model.ServerPorts, error) {
	return resolvePortsWithStore(store, excluded)
}
