// Package updater implements the OTA update state machine: periodic
// appcast checks, signed downloads, extraction, a smoke test of the new
// binary, and a status-gated hot-swap that hands control back to the
// Supervisor.
package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/browseros-org/sidecar-supervisor/internal/archive"
	"github.com/browseros-org/sidecar-supervisor/internal/clock"
	"github.com/browseros-org/sidecar-supervisor/internal/logging"
	"github.com/browseros-org/sidecar-supervisor/internal/metrics"
	"github.com/browseros-org/sidecar-supervisor/internal/model"
	"github.com/browseros-org/sidecar-supervisor/internal/platform"
	"github.com/browseros-org/sidecar-supervisor/internal/prefs"
	"github.com/browseros-org/sidecar-supervisor/internal/verify"
)

// Timeouts and limits named directly in the specification.
const (
	appcastFetchTimeout = 30 * time.Second
	appcastMaxBytes     = 1 << 20 // 1 MiB
	downloadTimeout     = 10 * time.Minute
	statusProbeTimeout  = 2 * time.Second
	defaultCheckPeriod  = 15 * time.Minute
	kMaxVersionsToKeep  = 3

	downloadToleranceBytes  = 1 << 20  // 1 MiB over the declared enclosure length
	downloadDefaultCapBytes = 500 << 20 // fallback cap when the enclosure omits length
)

// ErrUpdateInProgress is returned by CheckNow when a traversal is already
// running; re-entry is a no-op rather than a queued retry.
var ErrUpdateInProgress = errors.New("updater: an update check is already in progress")

// RestartFunc asks the Supervisor to restart the sidecar onto the
// newly-installed version, returning whether the restart succeeded.
type RestartFunc func(ctx context.Context) bool

// Config wires an Updater to its collaborators and the specification's
// build-time constants.
type Config struct {
	ExecutionDir string
	BundledPaths model.ServerPaths

	StableFeedURL        string
	AlphaFeedURL         string
	FeedURLOverride      string
	AlphaFeaturesEnabled bool

	CheckPeriod time.Duration

	// MCPPort returns the sidecar's current MCP port, used for the
	// /status gate; it must not block.
	MCPPort func() int
	// RestartForUpdate asks the Supervisor to hot-swap onto the version
	// the Updater just installed.
	RestartForUpdate RestartFunc

	Platform  platform.Tuple
	Prefs     prefs.Store
	Metrics   metrics.Sink
	Logger    logging.Logger
	Clock     clock.Clock
	Verifier  *verify.Verifier
	Extractor *archive.Extractor
}

func (c *Config) setDefaults() {
	if c.CheckPeriod <= 0 {
		c.CheckPeriod = defaultCheckPeriod
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
	if c.MCPPort == nil {
		c.MCPPort = func() int { return 0 }
	}
}

// versionCache holds the bootstrap-computed bundled version and the
// currently downloaded version, if any. It is mutated by the bootstrap in
// Start, by the driver goroutine and by InvalidateDownloadedVersion, and
// read from BestBinaryPath/BestResourcesPath, which must not block — hence
// the mutex rather than channel round-trip.
type versionCache struct {
	mu         sync.RWMutex
	bundled    *semver.Version
	downloaded *semver.Version
}

func (v *versionCache) current() *semver.Version {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.downloaded != nil && (v.bundled == nil || v.downloaded.GreaterThan(v.bundled)) {
		return v.downloaded
	}
	return v.bundled
}

func (v *versionCache) usesDownloaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.downloaded != nil && (v.bundled == nil || v.downloaded.GreaterThan(v.bundled))
}

func (v *versionCache) setBundled(ver *semver.Version) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bundled = ver
}

func (v *versionCache) setDownloaded(ver *semver.Version) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.downloaded = ver
}

// Updater drives the OTA state machine via a single owning goroutine.
type Updater struct {
	cfg     Config
	version versionCache

	checking sync.Mutex // held only while a traversal runs; guards re-entry

	cancel  context.CancelFunc
	stopped chan struct{}
	checkCh chan chan error
}

// New constructs an Updater. Call Start to run the bootstrap and begin the
// periodic loop.
func New(cfg Config) *Updater {
	cfg.setDefaults()
	return &Updater{
		cfg:     cfg,
		checkCh: make(chan chan error),
	}
}

// Start runs the version bootstrap synchronously, then launches the driver
// goroutine that owns the periodic-check ticker.
func (u *Updater) Start(ctx context.Context) error {
	if u.cfg.Platform == (platform.Tuple{}) {
		tuple, err := platform.NewDetector().Detect(ctx)
		if err != nil {
			return fmt.Errorf("detect platform: %w", err)
		}
		u.cfg.Platform = tuple
	}

	if err := u.bootstrap(ctx); err != nil {
		u.cfg.Logger.Warn("updater bootstrap failed", "error", err)
	}

	driverCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	u.stopped = make(chan struct{})

	go u.driverLoop(driverCtx)
	return nil
}

// Stop cancels the driver goroutine and waits for it to exit.
func (u *Updater) Stop() {
	if u.cancel == nil {
		return
	}
	u.cancel()
	<-u.stopped
}

func (u *Updater) driverLoop(ctx context.Context) {
	defer close(u.stopped)

	ticker := u.cfg.Clock.NewTicker(u.cfg.CheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := u.runCheck(ctx); err != nil {
				u.cfg.Logger.Warn("periodic update check failed", "error", err)
			}
		case resultCh := <-u.checkCh:
			resultCh <- u.runCheck(ctx)
		}
	}
}

// CheckNow triggers an immediate traversal, sharing the same single-flight
// guard as the periodic timer. It blocks until the traversal completes or
// ctx is cancelled.
func (u *Updater) CheckNow(ctx context.Context) error {
	if u.cancel == nil {
		return errors.New("updater: not started")
	}
	if !u.checking.TryLock() {
		return ErrUpdateInProgress
	}
	u.checking.Unlock()
	resultCh := make(chan error, 1)
	select {
	case u.checkCh <- resultCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-u.stopped:
		return errors.New("updater: stopped")
	}
	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCheck enforces the single-flight guard and runs one traversal of the
// periodic-check algorithm.
func (u *Updater) runCheck(ctx context.Context) error {
	if !u.checking.TryLock() {
		return ErrUpdateInProgress
	}
	defer u.checking.Unlock()
	return u.checkOnce(ctx)
}

// BestBinaryPath returns the downloaded binary path iff the downloaded
// version is strictly newer than the bundled one, else the bundled path.
// It is a pure read of the cached version tuple and must not block.
func (u *Updater) BestBinaryPath() string {
	if u.version.usesDownloaded() {
		return filepath.Join(u.versionDir(u.version.current()), "resources", "bin", u.binaryName())
	}
	return u.cfg.BundledPaths.PrimaryExe
}

// BestResourcesPath is BestBinaryPath's sibling for the resources
// directory, backed by the same cached version tuple.
func (u *Updater) BestResourcesPath() string {
	if u.version.usesDownloaded() {
		return filepath.Join(u.versionDir(u.version.current()), "resources")
	}
	return u.cfg.BundledPaths.PrimaryResources
}

// InvalidateDownloadedVersion deletes current_version, clears the
// downloaded-version cache, and removes the entire versions/ tree. Called
// by the Supervisor whenever a launch falls back to the bundled binary.
func (u *Updater) InvalidateDownloadedVersion() error {
	u.version.setDownloaded(nil)
	if err := os.Remove(u.currentVersionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("invalidate downloaded version: remove current_version: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(u.cfg.ExecutionDir, "versions")); err != nil {
		return fmt.Errorf("invalidate downloaded version: remove versions tree: %w", err)
	}
	return nil
}

func (u *Updater) currentVersionPath() string {
	return filepath.Join(u.cfg.ExecutionDir, "current_version")
}

func (u *Updater) versionsDir() string {
	return filepath.Join(u.cfg.ExecutionDir, "versions")
}

func (u *Updater) versionDir(v *semver.Version) string {
	if v == nil {
		return ""
	}
	return filepath.Join(u.versionsDir(), v.String())
}

func (u *Updater) pendingZipPath() string {
	return filepath.Join(u.cfg.ExecutionDir, "pending", "download.zip")
}

func (u *Updater) binaryName() string {
	if u.cfg.Platform.OS == "windows" {
		return "browseros_server.exe"
	}
	return "browseros_server"
}

// bootstrap runs once at Start: loads the downloaded version from disk,
// the bundled version by invoking the bundled binary, and publishes
// max(downloaded, bundled) to the preference store for observability.
func (u *Updater) bootstrap(ctx context.Context) error {
	if downloaded, err := loadCurrentVersion(u.currentVersionPath()); err == nil {
		u.version.setDownloaded(downloaded)
	}

	bundled, err := runVersionCommand(ctx, u.cfg.BundledPaths.PrimaryExe)
	if err != nil {
		u.cfg.Logger.Warn("could not determine bundled version", "error", err)
	} else {
		u.version.setBundled(bundled)
	}

	if u.cfg.Prefs != nil {
		if current := u.version.current(); current != nil {
			u.cfg.Prefs.SetString(prefs.KeyVersion, current.String())
		}
	}
	return nil
}

// loadCurrentVersion reads execution_dir/current_version. Whitespace is
// trimmed before parsing; absence or a parse failure returns an error so
// the caller can leave the cache unset.
func loadCurrentVersion(path string) (*semver.Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return semver.NewVersion(strings.TrimSpace(string(data)))
}
