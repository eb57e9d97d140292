package supervisor

import "context"

// healthLoopService wraps driverLoop as a suture.Service: driverLoop already
// owns all of the Supervisor's restart-serialization state and only returns
// when its context is cancelled, so Serve just runs it and reports the
// cancellation as a clean shutdown rather than a crash.
type healthLoopService struct {
	s *Supervisor
}

func (h healthLoopService) Serve(ctx context.Context) error {
	h.s.driverLoop(ctx)
	return ctx.Err()
}

func (h healthLoopService) String() string {
	return "health-loop"
}

// updaterService adapts the Updater's own Start/Stop lifecycle to
// suture.Service, following the start/stop pattern for collaborators that
// don't already run their own blocking Serve loop: Start kicks off the
// Updater's internal driver goroutine, Serve then blocks until the
// supervision tree cancels its context, and Stop tears the Updater down.
type updaterService struct {
	s *Supervisor
}

func (u updaterService) Serve(ctx context.Context) error {
	if err := u.s.cfg.Updater.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	u.s.cfg.Updater.Stop()
	return ctx.Err()
}

func (u updaterService) String() string {
	return "updater"
}
