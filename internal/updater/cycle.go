package updater

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/browseros-org/sidecar-supervisor/internal/appcast"
	"github.com/browseros-org/sidecar-supervisor/internal/metrics"
	"github.com/browseros-org/sidecar-supervisor/internal/prefs"
)

// checkOnce runs a single traversal of the periodic-check algorithm
// described in the Updater's component design: fetch appcast, pick the
// latest platform-matching item, download, verify, extract, smoke-test,
// status-gate, hot-swap, prune.
func (u *Updater) checkOnce(ctx context.Context) error {
	feedData, err := u.fetchAppcast(ctx)
	if err != nil {
		u.cfg.Logger.Warn("appcast fetch failed", "error", err)
		return fmt.Errorf("fetch appcast: %w", err)
	}

	item, enclosure := u.pickLatestMatchingItem(feedData)
	if item == nil || enclosure == nil {
		return nil
	}

	current := u.version.current()
	if current != nil && item.Version.Compare(current) <= 0 {
		return nil
	}

	versionDir := u.versionDir(item.Version)
	if _, err := os.Stat(versionDir); err == nil {
		// Prior partial progress: skip straight to the smoke test.
		return u.smokeTestThenHotSwap(ctx, item.Version, versionDir)
	}

	if err := u.downloadAndInstall(ctx, item.Version, *enclosure); err != nil {
		return err
	}
	return nil
}

func (u *Updater) pickLatestMatchingItem(feedData []byte) (*appcast.Item, *appcast.Enclosure) {
	items, err := appcast.ParseAll(feedData)
	if err != nil {
		u.cfg.Logger.Warn("appcast parse failed", "error", err)
		return nil, nil
	}
	for i := range items {
		if enc := items[i].EnclosureForCurrentPlatform(u.cfg.Platform.OS, u.cfg.Platform.Arch); enc != nil {
			return &items[i], enc
		}
	}
	return nil, nil
}

func (u *Updater) feedURL() string {
	if u.cfg.FeedURLOverride != "" {
		return u.cfg.FeedURLOverride
	}
	if u.cfg.AlphaFeaturesEnabled && u.cfg.AlphaFeedURL != "" {
		return u.cfg.AlphaFeedURL
	}
	return u.cfg.StableFeedURL
}

func (u *Updater) fetchAppcast(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, appcastFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.feedURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build appcast request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request appcast: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, appcastMaxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read appcast body: %w", err)
	}
	if len(data) > appcastMaxBytes {
		return nil, fmt.Errorf("appcast exceeded %d byte cap", appcastMaxBytes)
	}
	return data, nil
}

// downloadAndInstall runs steps 6-9 of the periodic-check algorithm:
// download, verify, clean-and-extract, smoke test.
func (u *Updater) downloadAndInstall(ctx context.Context, version *semver.Version, enclosure appcast.Enclosure) error {
	if err := os.RemoveAll(filepath.Dir(u.pendingZipPath())); err != nil {
		return fmt.Errorf("clear pending directory: %w", err)
	}
	if err := u.downloadEnclosure(ctx, enclosure); err != nil {
		u.emitError("download", err, version)
		return err
	}

	if !u.cfg.Verifier.VerifyFile(u.pendingZipPath(), enclosure.Signature) {
		os.Remove(u.pendingZipPath())
		err := errors.New("signature verification failed")
		u.emitError("verify", err, version)
		return err
	}

	versionDir := u.versionDir(version)
	os.RemoveAll(versionDir)
	if err := u.cfg.Extractor.ExtractZip(u.pendingZipPath(), versionDir); err != nil {
		os.RemoveAll(versionDir)
		os.Remove(u.pendingZipPath())
		u.emitError("extract", err, version)
		return err
	}

	return u.smokeTestThenHotSwap(ctx, version, versionDir)
}

func (u *Updater) downloadEnclosure(ctx context.Context, enclosure appcast.Enclosure) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, enclosure.URL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download enclosure: %w", err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(u.pendingZipPath()), 0o700); err != nil {
		return fmt.Errorf("create pending directory: %w", err)
	}

	out, err := os.Create(u.pendingZipPath())
	if err != nil {
		return fmt.Errorf("create pending download file: %w", err)
	}
	defer out.Close()

	capBytes := downloadCap(enclosure.Length)
	limited := io.LimitReader(resp.Body, capBytes+1)
	written, err := io.Copy(out, limited)
	if err != nil {
		return fmt.Errorf("write pending download: %w", err)
	}
	if written > capBytes {
		return fmt.Errorf("download exceeded size cap of %d bytes", capBytes)
	}
	return nil
}

func downloadCap(declaredLength int64) int64 {
	if declaredLength <= 0 {
		return downloadDefaultCapBytes
	}
	return declaredLength + downloadToleranceBytes
}

// smokeTestThenHotSwap runs steps 9-12: invoke `<binary> version`, gate on
// /status, hot-swap, and prune on success.
func (u *Updater) smokeTestThenHotSwap(ctx context.Context, version *semver.Version, versionDir string) error {
	exePath := filepath.Join(versionDir, "resources", "bin", u.binaryName())
	if _, err := runVersionCommand(ctx, exePath); err != nil {
		os.RemoveAll(versionDir)
		u.emitError("test", err, version)
		return fmt.Errorf("smoke test: %w", err)
	}

	if !u.canUpdateNow(ctx) {
		u.cfg.Metrics.Emit(metrics.EventOTABusy, map[string]interface{}{"version": version.String()})
		return nil
	}

	oldVersion := "none"
	if current := u.version.current(); current != nil {
		oldVersion = current.String()
	}

	if err := u.hotSwap(ctx, version); err != nil {
		return err
	}

	deleted, err := u.pruneVersions(kMaxVersionsToKeep)
	if err != nil {
		u.cfg.Logger.Warn("prune versions failed", "error", err)
	}
	os.RemoveAll(filepath.Dir(u.pendingZipPath()))
	u.cfg.Metrics.Emit(metrics.EventOTACleanup, map[string]interface{}{"deleted_count": deleted})
	u.cfg.Metrics.Emit(metrics.EventOTASuccess, map[string]interface{}{
		"old_version": oldVersion,
		"new_version": version.String(),
	})
	return nil
}

// canUpdateNow implements the /status gate. Any network or JSON error is
// treated as can_update=true (fail-open).
func (u *Updater) canUpdateNow(ctx context.Context) bool {
	port := u.cfg.MCPPort()
	if port <= 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	url := fmt.Sprintf("http://127.0.0.1:%d/status", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return true
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()

	var status struct {
		CanUpdate *bool `json:"can_update"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return true
	}
	if status.CanUpdate == nil {
		return true
	}
	return *status.CanUpdate
}

func (u *Updater) hotSwap(ctx context.Context, version *semver.Version) error {
	if err := writeCurrentVersionAtomic(u.currentVersionPath(), version); err != nil {
		u.emitError("hotswap", err, version)
		return fmt.Errorf("write current_version: %w", err)
	}
	u.version.setDownloaded(version)

	if u.cfg.RestartForUpdate != nil && !u.cfg.RestartForUpdate(ctx) {
		os.Remove(u.currentVersionPath())
		u.version.setDownloaded(nil)
		err := fmt.Errorf("restart for update failed")
		u.emitError("hotswap", err, version)
		return err
	}
	if u.cfg.Prefs != nil {
		u.cfg.Prefs.SetString(prefs.KeyVersion, version.String())
	}
	return nil
}

func writeCurrentVersionAtomic(path string, version *semver.Version) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(version.String()), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (u *Updater) emitError(stage string, err error, version *semver.Version) {
	fields := map[string]interface{}{"stage": stage, "error": err.Error()}
	if version != nil {
		fields["version"] = version.String()
	}
	u.cfg.Metrics.Emit(metrics.EventOTAError, fields)
}

// pruneVersions keeps the `keep` newest semver-named directories under
// versions/ and deletes the rest, returning the count deleted.
func (u *Updater) pruneVersions(keep int) (int, error) {
	entries, err := os.ReadDir(u.versionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read versions directory: %w", err)
	}

	type versioned struct {
		name string
		ver  *semver.Version
	}
	var versions []versioned
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if v, err := semver.NewVersion(e.Name()); err == nil {
			versions = append(versions, versioned{name: e.Name(), ver: v})
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].ver.GreaterThan(versions[j].ver)
	})

	deleted := 0
	for i := keep; i < len(versions); i++ {
		if err := os.RemoveAll(filepath.Join(u.versionsDir(), versions[i].name)); err != nil {
			return deleted, fmt.Errorf("remove pruned version %s: %w", versions[i].name, err)
		}
		deleted++
	}
	return deleted, nil
}

// runVersionCommand invokes exePath with a single "version" argument and
// parses the first whitespace-trimmed line of its stdout as SemVer. A
// nonzero exit code or unparseable output is an error.
func runVersionCommand(ctx context.Context, exePath string) (*semver.Version, error) {
	if exePath == "" {
		return nil, fmt.Errorf("no executable path configured")
	}
	cmd := exec.CommandContext(ctx, exePath, "version")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run %s version: %w", exePath, err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if !scanner.Scan() {
		return nil, fmt.Errorf("no output from %s version", exePath)
	}
	return semver.NewVersion(strings.TrimSpace(scanner.Text()))
}

