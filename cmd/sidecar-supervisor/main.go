// Command sidecar-supervisor is a demo harness: it wires the Supervisor and
// Updater together the way a desktop embedder would, without an actual
// sidecar binary to launch. It exists to exercise the wiring end to end, not
// as a production entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/browseros-org/sidecar-supervisor/internal/archive"
	"github.com/browseros-org/sidecar-supervisor/internal/health"
	"github.com/browseros-org/sidecar-supervisor/internal/logging"
	"github.com/browseros-org/sidecar-supervisor/internal/metrics"
	"github.com/browseros-org/sidecar-supervisor/internal/model"
	"github.com/browseros-org/sidecar-supervisor/internal/platform"
	"github.com/browseros-org/sidecar-supervisor/internal/prefs"
	"github.com/browseros-org/sidecar-supervisor/internal/supervisor"
	"github.com/browseros-org/sidecar-supervisor/internal/updater"
	"github.com/browseros-org/sidecar-supervisor/internal/verify"
)

// Build-time feed constants, overridable via --server-appcast-url.
const (
	stableFeedURL = "https://updates.example.com/appcast.xml"
	alphaFeedURL  = "https://updates.example.com/appcast-alpha.xml"
)

// Version is set at build time via -ldflags.
var Version = "v0.0.1-dev"

type flags struct {
	disableServer        bool
	disableServerUpdater bool
	appcastURLOverride   string
	extensionsURL        string
	alphaFeatures        bool
	executionDir         string
	bundledExe           string
	bundledResources     string
}

func parseFlags(args []string) (flags, error) {
	f := flags{}
	for _, arg := range args {
		switch {
		case arg == "--disable-server":
			f.disableServer = true
		case arg == "--disable-server-updater":
			f.disableServerUpdater = true
		case arg == "--alpha-features":
			f.alphaFeatures = true
		case hasPrefix(arg, "--server-appcast-url="):
			f.appcastURLOverride = arg[len("--server-appcast-url="):]
		case hasPrefix(arg, "--extensions-url="):
			f.extensionsURL = arg[len("--extensions-url="):]
		case hasPrefix(arg, "--execution-dir="):
			f.executionDir = arg[len("--execution-dir="):]
		case hasPrefix(arg, "--bundled-exe="):
			f.bundledExe = arg[len("--bundled-exe="):]
		case hasPrefix(arg, "--bundled-resources="):
			f.bundledResources = arg[len("--bundled-resources="):]
		case arg == "--help" || arg == "-h":
			printHelp()
			os.Exit(0)
		default:
			return flags{}, fmt.Errorf("unknown option: %s\nRun 'sidecar-supervisor --help' for usage", arg)
		}
	}
	return f, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func printHelp() {
	fmt.Println("sidecar-supervisor - demo harness for the managed-sidecar supervisor")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sidecar-supervisor [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --disable-server             Never launch the sidecar")
	fmt.Println("  --disable-server-updater     Never start the background updater")
	fmt.Println("  --server-appcast-url=<url>   Override both stable and alpha feed URLs")
	fmt.Println("  --extensions-url=<url>       Override the extension-config URL (external collaborator)")
	fmt.Println("  --alpha-features             Select the alpha appcast and extension feed")
	fmt.Println("  --execution-dir=<path>       Directory for server.lock/server.state/versions")
	fmt.Println("  --bundled-exe=<path>         Path to the bundled sidecar binary")
	fmt.Println("  --bundled-resources=<path>   Path to the bundled sidecar resources directory")
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewZerolog(os.Stderr)
	logger.Info("starting sidecar-supervisor demo harness", "version", Version)

	if f.executionDir == "" {
		dir, err := os.MkdirTemp("", "sidecar-supervisor-")
		if err != nil {
			logger.Error("failed to create execution directory", "error", err)
			os.Exit(1)
		}
		f.executionDir = dir
		logger.Info("no --execution-dir given, using a temporary directory", "dir", dir)
	}
	if err := os.MkdirAll(f.executionDir, 0o755); err != nil {
		logger.Error("failed to prepare execution directory", "error", err)
		os.Exit(1)
	}

	if f.bundledExe == "" {
		f.bundledExe = bundledExeNameForPlatform()
	}

	tuple, err := platform.NewDetector().Detect(context.Background())
	if err != nil {
		logger.Warn("could not detect platform, the updater will retry detection when it starts", "error", err)
	}

	verifier, err := verify.New(verify.PublicKeyBase64)
	if err != nil {
		logger.Error("failed to construct signature verifier", "error", err)
		os.Exit(1)
	}

	prefsStore := prefs.NewInMemoryStore()
	metricsSink := metrics.NewLoggingSink(logger)

	identity := model.ServerIdentity{
		InstallID:      uuid.New().String(),
		HostVersion:    Version,
		SidecarVersion: "",
	}

	// The Supervisor and Updater are cyclically dependent: the Updater needs
	// the Supervisor's current MCP port and a way to request a restart, and
	// the Supervisor needs the Updater's best-known binary/resources paths.
	// Forward-declare the Supervisor so the Updater's Config can close over
	// it before it exists, then construct the Supervisor with a reference to
	// the already-constructed Updater.
	var sup *supervisor.Supervisor

	upd := updater.New(updater.Config{
		ExecutionDir: f.executionDir,
		BundledPaths: model.ServerPaths{
			PrimaryExe:       f.bundledExe,
			PrimaryResources: f.bundledResources,
			ExecutionDir:     f.executionDir,
		},
		StableFeedURL:        stableFeedURL,
		AlphaFeedURL:         alphaFeedURL,
		FeedURLOverride:      f.appcastURLOverride,
		AlphaFeaturesEnabled: f.alphaFeatures,
		MCPPort:              func() int { return sup.MCPPortFunc()() },
		RestartForUpdate:     func(ctx context.Context) bool { return sup.RestartForUpdateFunc()(ctx) },
		Platform:             tuple,
		Prefs:                prefsStore,
		Metrics:              metricsSink,
		Logger:               logger,
		Verifier:             verifier,
		Extractor:            archive.New(),
	})

	sup = supervisor.New(supervisor.Config{
		BundledPaths: model.ServerPaths{
			PrimaryExe:       f.bundledExe,
			PrimaryResources: f.bundledResources,
			ExecutionDir:     f.executionDir,
		},
		Identity:          identity,
		Disabled:          f.disableServer,
		DisableUpdater:    f.disableServerUpdater,
		HealthCheckPeriod: 30 * time.Second,
		Health:            health.New(),
		Updater:           upd,
		Prefs:             prefsStore,
		Metrics:           metricsSink,
		Logger:            logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := sup.Start(ctx); err != nil {
		logger.Error("supervisor failed to start", "error", err)
		os.Exit(1)
	}
	logger.Info("supervisor started", "ports", fmt.Sprintf("%+v", sup.CurrentPorts()))

	<-ctx.Done()
	logger.Info("shutting down")
	sup.Stop(context.Background())
	logger.Info("stopped cleanly")
}

func bundledExeNameForPlatform() string {
	if os.Getenv("OS") == "Windows_NT" {
		return "resources/bin/browseros_server.exe"
	}
	return "resources/bin/browseros_server"
}
