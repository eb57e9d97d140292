// Package supervisor owns the sidecar's process lifecycle end to end: lock
// acquisition, orphan recovery, port resolution, launch, periodic health
// checks with a failure-escalation ladder, and serialized restarts driven
// either by health failures or by the Updater's hot-swap callback.
package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	gopsutilprocess "github.com/shirou/gopsutil/v4/process"
	"github.com/thejerf/suture/v4"

	"github.com/browseros-org/sidecar-supervisor/internal/clock"
	"github.com/browseros-org/sidecar-supervisor/internal/logging"
	"github.com/browseros-org/sidecar-supervisor/internal/metrics"
	"github.com/browseros-org/sidecar-supervisor/internal/model"
	"github.com/browseros-org/sidecar-supervisor/internal/prefs"
	"github.com/browseros-org/sidecar-supervisor/internal/statestore"
)

// State is a Supervisor's position in its own lifecycle state machine:
// NotRunning -> Starting -> Running <-> Restarting -> Stopping -> NotRunning.
type State int

const (
	NotRunning State = iota
	Starting
	Running
	Restarting
	Stopping
)

func (s State) String() string {
	switch s {
	case NotRunning:
		return "not_running"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	defaultHealthCheckPeriod = 30 * time.Second
	maxConsecutiveFailures   = 3
)

// ProcessController is the narrow interface the Supervisor depends on for
// launching and terminating the sidecar, satisfied by internal/process's
// package-level functions through defaultProcessController below. Injected
// so tests can substitute a fake without starting a real OS process.
type ProcessController interface {
	Launch(ctx context.Context, config model.ServerLaunchConfig) (*exec.Cmd, bool, error)
	Terminate(cmd *exec.Cmd, force bool) error
	IsOrphanAlive(ctx context.Context, state model.ServerState) bool
	KillOrphan(ctx context.Context, pid uint64) error
}

// HealthChecker is the narrow interface the Supervisor polls on its health
// loop. health.Checker satisfies this directly.
type HealthChecker interface {
	Check(ctx context.Context, port int) bool
}

// StateStore is the narrow persistence interface the Supervisor depends on.
// statestore.Store satisfies this directly.
type StateStore interface {
	Read() (*model.ServerState, error)
	Write(state model.ServerState) error
	Delete() error
}

// Updater is the narrow interface the Supervisor calls into. It
// deliberately excludes any back-pointer to the Supervisor: the cyclic
// Supervisor<->Updater relationship is broken by having the Updater hold a
// RestartFunc callback (set via Config.MCPPort/Config.RestartForUpdate on
// the Updater's own Config) instead of a reference to this type.
type Updater interface {
	Start(ctx context.Context) error
	Stop()
	BestBinaryPath() string
	BestResourcesPath() string
	InvalidateDownloadedVersion() error
}

// PortResolver resolves a coherent set of three distinct TCP ports,
// persisting the result to the preference store. Abstracted over
// internal/portprobe so tests can inject deterministic ports.
type PortResolver interface {
	ResolvePorts(prefsStore prefs.Store, excluded map[int]bool) (model.ServerPorts, error)
}

// Config wires a Supervisor to its collaborators and build-time constants.
type Config struct {
	BundledPaths model.ServerPaths
	Identity     model.ServerIdentity
	AllowRemote  bool

	// Disabled mirrors --disable-server: Start returns immediately without
	// reading prefs or launching anything.
	Disabled bool
	// DisableUpdater mirrors --disable-server-updater: the Updater is never
	// started and path resolution always falls back to BundledPaths.
	DisableUpdater bool

	HealthCheckPeriod time.Duration

	Process      ProcessController
	Health       HealthChecker
	State        StateStore
	Updater      Updater
	Ports        PortResolver
	Prefs        prefs.Store
	Metrics      metrics.Sink
	Logger       logging.Logger
	Clock        clock.Clock
}

func (c *Config) setDefaults() {
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = defaultHealthCheckPeriod
	}
	if c.Process == nil {
		c.Process = defaultProcessController{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	if c.Logger == nil {
		c.Logger = logging.NoOp()
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Ports == nil {
		c.Ports = defaultPortResolver{}
	}
}

type restartRequest struct {
	resultCh chan bool
}

// Supervisor owns the sidecar's lifecycle. The zero value is not usable;
// construct with New.
type Supervisor struct {
	cfg Config

	mu                    sync.RWMutex
	state                 State
	ports                 model.ServerPorts
	lastRestartWasFull    bool
	consecutiveFailures   int
	cmd                   *exec.Cmd

	lock      *statestore.Lock
	cancel    context.CancelFunc
	done      <-chan error // receives the suture tree's terminal error once it has fully stopped
	restartCh chan restartRequest

	restarting sync.Mutex // serializes Stop and RestartServerForUpdate's exclusive sections
}

// New constructs a Supervisor. Call Start to acquire the lock and launch
// the sidecar.
func New(cfg Config) *Supervisor {
	cfg.setDefaults()
	return &Supervisor{
		cfg:       cfg,
		restartCh: make(chan restartRequest),
	}
}

// IsRunning reports whether the sidecar is currently in the Running state.
func (s *Supervisor) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Running
}

// CurrentState returns the Supervisor's current lifecycle state.
func (s *Supervisor) CurrentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentPorts returns the last resolved port set. Zero-valued before the
// first successful Start.
func (s *Supervisor) CurrentPorts() model.ServerPorts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ports
}

// LastRestartWasFullRevalidation reports whether the most recent
// health-driven restart was a full port revalidation (the third rung of the
// escalation ladder), observable for tests.
func (s *Supervisor) LastRestartWasFullRevalidation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRestartWasFull
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Supervisor) setPorts(ports model.ServerPorts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports = ports
}

// mcpPort is handed to the Updater as its non-blocking port accessor,
// closing the narrow half of the Supervisor<->Updater cycle without giving
// the Updater a reference back to the Supervisor.
func (s *Supervisor) mcpPort() int {
	return s.CurrentPorts().MCP
}

// MCPPortFunc returns a closure suitable for updater.Config.MCPPort.
func (s *Supervisor) MCPPortFunc() func() int {
	return s.mcpPort
}

// RestartForUpdateFunc returns a closure suitable for updater.Config's
// RestartForUpdate, letting the Updater drive a hot-swap restart without
// holding a reference to the Supervisor's concrete type.
func (s *Supervisor) RestartForUpdateFunc() func(ctx context.Context) bool {
	return func(ctx context.Context) bool {
		resultCh := make(chan bool, 1)
		s.RestartServerForUpdate(ctx, func(ok bool) { resultCh <- ok })
		select {
		case ok := <-resultCh:
			return ok
		case <-ctx.Done():
			return false
		}
	}
}

// Start acquires the advisory lock, recovers any orphaned sidecar from a
// prior crashed run, resolves ports, launches the sidecar, and begins the
// health-check and Updater loops.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.Disabled {
		s.cfg.Logger.Info("server disabled by configuration")
		return nil
	}

	s.setState(Starting)

	lock, err := statestore.AcquireLock(s.cfg.BundledPaths.ExecutionDir)
	if err != nil {
		s.setState(NotRunning)
		s.cfg.Logger.Warn("could not acquire supervisor lock", "error", err)
		return fmt.Errorf("acquire supervisor lock: %w", err)
	}
	s.lock = lock

	s.recoverOrphan(ctx)

	ports, err := s.cfg.Ports.ResolvePorts(s.cfg.Prefs, nil)
	if err != nil {
		s.lock.Release()
		s.setState(NotRunning)
		return fmt.Errorf("resolve ports: %w", err)
	}
	s.setPorts(ports)
	s.cfg.AllowRemote = resolveAllowRemote(s.cfg.Prefs, s.cfg.AllowRemote)

	if err := s.launch(ctx, ports); err != nil {
		s.lock.Release()
		s.setState(NotRunning)
		return fmt.Errorf("launch sidecar: %w", err)
	}

	driverCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	tree := suture.New("sidecar-supervisor", suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	tree.Add(healthLoopService{s: s})
	if !s.cfg.DisableUpdater && s.cfg.Updater != nil {
		tree.Add(updaterService{s: s})
	}
	s.done = tree.ServeBackground(driverCtx)

	s.setState(Running)
	return nil
}

// recoverOrphan checks the on-disk state record left by a prior instance
// and kills any process it still refers to, before unconditionally clearing
// the record.
func (s *Supervisor) recoverOrphan(ctx context.Context) {
	store := s.stateStore()
	state, err := store.Read()
	if err != nil {
		s.cfg.Logger.Warn("failed to read prior server state", "error", err)
	}
	if state != nil && s.cfg.Process.IsOrphanAlive(ctx, *state) {
		s.cfg.Logger.Info("killing orphaned sidecar from a prior run", "pid", state.PID)
		if err := s.cfg.Process.KillOrphan(ctx, state.PID); err != nil {
			s.cfg.Logger.Warn("failed to kill orphaned sidecar", "error", err, "pid", state.PID)
		}
	}
	if err := store.Delete(); err != nil {
		s.cfg.Logger.Warn("failed to delete prior server state", "error", err)
	}
}

func (s *Supervisor) stateStore() StateStore {
	if s.cfg.State != nil {
		return s.cfg.State
	}
	return statestore.New(s.cfg.BundledPaths.ExecutionDir)
}

// bestPaths resolves the binary/resources paths to launch, preferring the
// Updater's downloaded version unless the Updater is disabled.
func (s *Supervisor) bestPaths() model.ServerPaths {
	paths := s.cfg.BundledPaths
	if s.cfg.DisableUpdater || s.cfg.Updater == nil {
		return paths
	}
	paths.PrimaryExe = s.cfg.Updater.BestBinaryPath()
	paths.PrimaryResources = s.cfg.Updater.BestResourcesPath()
	paths.FallbackExe = s.cfg.BundledPaths.PrimaryExe
	paths.FallbackResources = s.cfg.BundledPaths.PrimaryResources
	return paths
}

// launch builds a fresh ServerLaunchConfig, starts the sidecar, invalidates
// the downloaded version on a fallback launch, and persists the new
// {pid, creation_time} record.
func (s *Supervisor) launch(ctx context.Context, ports model.ServerPorts) error {
	config := model.ServerLaunchConfig{
		Ports:       ports,
		Paths:       s.bestPaths(),
		Identity:    s.cfg.Identity,
		AllowRemote: s.cfg.AllowRemote,
	}

	cmd, usedFallback, err := s.cfg.Process.Launch(ctx, config)
	if err != nil {
		return err
	}

	if usedFallback && !s.cfg.DisableUpdater && s.cfg.Updater != nil {
		if err := s.cfg.Updater.InvalidateDownloadedVersion(); err != nil {
			s.cfg.Logger.Warn("failed to invalidate downloaded version after fallback launch", "error", err)
		}
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	creationTime, err := processCreationTime(ctx, cmd)
	if err != nil {
		s.cfg.Logger.Warn("could not determine sidecar creation time", "error", err)
	}

	state := model.ServerState{PID: uint64(cmd.Process.Pid), CreationTime: creationTime}
	if err := s.stateStore().Write(state); err != nil {
		return fmt.Errorf("persist server state: %w", err)
	}
	return nil
}

func processCreationTime(ctx context.Context, cmd *exec.Cmd) (uint64, error) {
	proc, err := gopsutilprocess.NewProcessWithContext(ctx, int32(cmd.Process.Pid))
	if err != nil {
		return 0, err
	}
	createTime, err := proc.CreateTimeWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return uint64(createTime), nil
}

func (s *Supervisor) currentCmd() *exec.Cmd {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cmd
}

// Stop terminates the sidecar, stops the health and Updater loops, and
// deletes the persisted state record. Idempotent.
func (s *Supervisor) Stop(ctx context.Context) {
	s.restarting.Lock()
	defer s.restarting.Unlock()

	if s.CurrentState() == NotRunning {
		return
	}
	s.setState(Stopping)

	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}

	if err := s.stateStore().Delete(); err != nil {
		s.cfg.Logger.Warn("failed to delete server state on stop", "error", err)
	}

	if err := s.cfg.Process.Terminate(s.currentCmd(), false); err != nil {
		s.cfg.Logger.Warn("failed to terminate sidecar on stop", "error", err)
	}

	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			s.cfg.Logger.Warn("failed to release supervisor lock", "error", err)
		}
		s.lock = nil
	}

	s.setState(NotRunning)
}
