package app

import (
	"context"
	"fmt"
	"time"

	"wablast/internal/config"
	"wablast/internal/eventbus"
	"wablast/internal/httpapi"
	"wablast/internal/observability/pprof"
	rtsup "wablast/internal/runtime/supervisor"
	"wablast/internal/services/broadcast"
	"wablast/internal/session"
	"wablast/internal/transport/whatsapp"
	logx "wablast/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	dialer *whatsapp.Dialer
	sess   *session.Supervisor
	bc     *broadcast.Service
	api    *httpapi.Server
	pprof  *pprof.Service

	keepaliveSpec string
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	dialer, err := whatsapp.NewDialer(ctx, whatsapp.Config{
		StorePath:  cfg.Session.StorePath,
		DeviceName: cfg.Session.DeviceName,
	}, logSvc.Logger().With(logx.String("comp", "whatsapp")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	reconnect, err := config.ParseDurationOrDefault("session.reconnect_delay", cfg.Session.ReconnectDelay, 3*time.Second)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	sess := session.New(session.Config{ReconnectDelay: reconnect}, dialer,
		logSvc.Logger().With(logx.String("comp", "session")), bus)

	bcCfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	bc := broadcast.New(bcCfg, sess, logSvc.Logger().With(logx.String("comp", "broadcast")), bus)

	// A run interrupted by a disconnect pauses and resumes transparently.
	sess.OnConnected(func(context.Context) { bc.Resume() })
	sess.OnDisconnected(bc.Pause)

	api := httpapi.New(httpapi.Config{Addr: cfg.HTTP.Addr}, bc, sess,
		logSvc.Logger().With(logx.String("comp", "httpapi")))

	pprofSvc := pprof.New(mapPprofConfig(cfg), logSvc.Logger().With(logx.String("comp", "pprof")))

	return &App{
		cfgPath:       cfgPath,
		cfgm:          cfgm,
		log:           log,
		logs:          logSvc,
		bus:           bus,
		dialer:        dialer,
		sess:          sess,
		bc:            bc,
		api:           api,
		pprof:         pprofSvc,
		keepaliveSpec: cfg.Session.Keepalive,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapBroadcastConfig(cfg); err != nil {
			return err
		}
		if _, err := config.ParseDurationField("session.reconnect_delay", cfg.Session.ReconnectDelay); err != nil {
			return err
		}
		if _, err := session.ParseKeepaliveSpec(cfg.Session.Keepalive); err != nil {
			return err
		}
		return nil
	})

	a.bc.Bind(a.sup.Context())

	// One control loop owns the connection state machine; restart on
	// unexpected exit so a bug there cannot leave the daemon headless.
	a.sup.GoRestart("session.run", a.sess.Run, 500*time.Millisecond, 10*time.Second)

	keepalive, err := session.ParseKeepaliveSpec(a.keepaliveSpec)
	if err != nil {
		return err
	}
	if keepalive != nil {
		a.sup.Go("session.keepalive", func(c context.Context) error {
			return a.sess.RunKeepalive(c, keepalive)
		})
	}

	if err := a.api.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	// Log lifecycle events for observability (components subscribe themselves).
	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyReload(c, newCfg)
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if bcCfg, err := mapBroadcastConfig(cfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.bc.Apply(bcCfg)
	}

	a.pprof.Reconfigure(ctx, mapPprofConfig(cfg))

	// Session store path and keepalive schedule need a restart to change.
	if cfg.Session.Keepalive != a.keepaliveSpec {
		a.log.Warn("session.keepalive changed; restart required for the new schedule")
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Run each shutdown phase with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("httpapi", 3*time.Second, a.api.Stop)
	step("pprof", 1*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("dialer", 2*time.Second, func(context.Context) error { return a.dialer.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	if cfg == nil {
		return broadcast.Config{}, nil
	}
	if cfg.Broadcast.RatePerSec < 0 {
		return broadcast.Config{}, fmt.Errorf("broadcast.rate_per_sec must be >= 0")
	}
	if cfg.Broadcast.MaxLogEntries < 0 {
		return broadcast.Config{}, fmt.Errorf("broadcast.max_log_entries must be >= 0")
	}
	clearDelay, err := config.ParseDurationField("broadcast.stop_clear_delay", cfg.Broadcast.StopClearDelay)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{
		RatePerSec:     cfg.Broadcast.RatePerSec,
		MaxLogEntries:  cfg.Broadcast.MaxLogEntries,
		StopClearDelay: clearDelay,
	}, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	if cfg == nil || cfg.Pprof == nil {
		return pprof.Config{}
	}
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}
}
