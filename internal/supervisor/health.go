package supervisor

import (
	"context"

	"github.com/browseros-org/sidecar-supervisor/internal/metrics"
	"github.com/browseros-org/sidecar-supervisor/internal/prefs"
)

// consumeRestartRequested reports and clears server.restart_requested, the
// embedder's auto-reset bit for forcing a targeted restart out of band from
// the health-check ladder. Reports false when no preference store is wired.
func (s *Supervisor) consumeRestartRequested() bool {
	if s.cfg.Prefs == nil {
		return false
	}
	if !s.cfg.Prefs.GetBool(prefs.KeyRestartRequested) {
		return false
	}
	s.cfg.Prefs.SetBool(prefs.KeyRestartRequested, false)
	return true
}

// driverLoop is the Supervisor's single owning goroutine: it runs the
// health-check ticker and serializes RestartServerForUpdate requests
// against health-driven restarts, so the two restart paths are never
// interleaved.
func (s *Supervisor) driverLoop(ctx context.Context) {
	ticker := s.cfg.Clock.NewTicker(s.cfg.HealthCheckPeriod)
	defer ticker.Stop()

	healthResult := make(chan bool, 1)
	healthInFlight := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C():
			if s.CurrentState() != Running {
				continue
			}
			if s.consumeRestartRequested() {
				s.cfg.Logger.Info("server.restart_requested pref set, performing targeted restart")
				s.targetedRestart(ctx)
				continue
			}
			if healthInFlight {
				continue
			}
			healthInFlight = true
			port := s.mcpPort()
			go func() {
				healthResult <- s.cfg.Health.Check(ctx, port)
			}()

		case healthy := <-healthResult:
			healthInFlight = false
			select {
			case <-ctx.Done():
				// A Stop raced the in-flight check; discard its result.
			default:
				s.onHealthResult(ctx, healthy)
			}

		case req := <-s.restartCh:
			req.resultCh <- s.performRestartForUpdate(ctx)
		}
	}
}

// onHealthResult applies the escalation ladder: success resets the
// failure counter; failures 1-2 trigger a targeted restart on the
// existing ports; failure 3 triggers a full port revalidation and resets
// the counter.
func (s *Supervisor) onHealthResult(ctx context.Context, healthy bool) {
	if healthy {
		s.mu.Lock()
		s.consecutiveFailures = 0
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.consecutiveFailures++
	failures := s.consecutiveFailures
	s.mu.Unlock()

	if failures < maxConsecutiveFailures {
		s.cfg.Logger.Warn("health check failed, performing targeted restart", "consecutive_failures", failures)
		s.targetedRestart(ctx)
		return
	}

	s.cfg.Logger.Warn("health check failed repeatedly, performing full port revalidation", "consecutive_failures", failures)
	s.fullRevalidationRestart(ctx)
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.mu.Unlock()
}

// targetedRestart terminates and relaunches the sidecar on its existing
// ports, without touching port assignment.
func (s *Supervisor) targetedRestart(ctx context.Context) {
	s.setState(Restarting)
	defer s.setState(Running)

	s.mu.Lock()
	s.lastRestartWasFull = false
	s.mu.Unlock()

	if err := s.cfg.Process.Terminate(s.currentCmd(), false); err != nil {
		s.cfg.Logger.Warn("targeted restart: terminate failed", "error", err)
	}
	if err := s.launch(ctx, s.CurrentPorts()); err != nil {
		s.cfg.Logger.Warn("targeted restart: launch failed", "error", err)
	}
}

// fullRevalidationRestart resets all three ports to their documented
// defaults, re-probes from scratch, and relaunches.
func (s *Supervisor) fullRevalidationRestart(ctx context.Context) {
	s.setState(Restarting)
	defer s.setState(Running)

	s.mu.Lock()
	s.lastRestartWasFull = true
	s.mu.Unlock()

	if err := s.cfg.Process.Terminate(s.currentCmd(), false); err != nil {
		s.cfg.Logger.Warn("full revalidation restart: terminate failed", "error", err)
	}

	if s.cfg.Prefs != nil {
		for _, key := range []string{prefs.KeyCDPPort, prefs.KeyMCPPort, prefs.KeyExtensionPort} {
			s.cfg.Prefs.SetInt(key, defaultPortFor(key))
		}
	}

	ports, err := s.cfg.Ports.ResolvePorts(s.cfg.Prefs, nil)
	if err != nil {
		s.cfg.Logger.Warn("full revalidation restart: port resolution failed", "error", err)
		return
	}
	s.setPorts(ports)

	if err := s.launch(ctx, ports); err != nil {
		s.cfg.Logger.Warn("full revalidation restart: launch failed", "error", err)
	}
}

// performRestartForUpdate runs on the driver goroutine, exclusive with
// health-driven restarts by construction (both are handled from the same
// select loop).
func (s *Supervisor) performRestartForUpdate(ctx context.Context) bool {
	s.setState(Restarting)
	defer s.setState(Running)

	previousPorts := s.CurrentPorts()

	if err := s.cfg.Process.Terminate(s.currentCmd(), false); err != nil {
		s.cfg.Logger.Warn("restart for update: terminate failed", "error", err)
		return false
	}

	if err := s.launch(ctx, previousPorts); err != nil {
		s.cfg.Logger.Warn("restart for update: launch failed", "error", err)
		s.cfg.Metrics.Emit(metrics.EventOTAError, map[string]interface{}{"stage": "supervisor_relaunch", "error": err.Error()})
		return false
	}
	return true
}

// RestartServerForUpdate asks the Supervisor to relaunch onto whatever the
// Updater just hot-swapped into place. If a restart is already in
// progress, or the sidecar is not Running, callback(false) is invoked
// immediately rather than queued.
func (s *Supervisor) RestartServerForUpdate(ctx context.Context, callback func(ok bool)) {
	if !s.restarting.TryLock() {
		callback(false)
		return
	}
	defer s.restarting.Unlock()
	if s.CurrentState() != Running {
		callback(false)
		return
	}

	resultCh := make(chan bool, 1)
	select {
	case s.restartCh <- restartRequest{resultCh: resultCh}:
	case <-ctx.Done():
		callback(false)
		return
	}

	select {
	case ok := <-resultCh:
		callback(ok)
	case <-ctx.Done():
		callback(false)
	}
}
