package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"alertkit/internal/alert"
	"alertkit/internal/alertstore"
	"alertkit/internal/config"
	"alertkit/internal/eventbus"
	"alertkit/internal/manager"
	"alertkit/internal/presenter"
	"alertkit/internal/sounds"
	"alertkit/internal/transport/telegram"
	logx "alertkit/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./alertd.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	logSvc, log := logx.New(cfg.Logging.LogxConfig())
	defer logSvc.Close()

	if err := run(ctx, cfgPath, cfg, logSvc, log); err != nil {
		log.Error("fatal", logx.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string, cfg *config.Config, logSvc *logx.Service, log logx.Logger) error {
	storeCfg, err := cfg.Storage.StoreConfig()
	if err != nil {
		return err
	}
	store, err := alertstore.Open(storeCfg, log.With(logx.String("comp", "alertstore")))
	if err != nil {
		return err
	}
	defer store.Close()

	soundDir := cfg.Sounds.Dir
	if strings.TrimSpace(soundDir) == "" {
		soundDir = "./sounds"
	}
	soundMgr := sounds.NewManager(soundDir, log.With(logx.String("comp", "sounds")))

	muter := alert.NewMuter(alert.MuterConfiguration{})
	bus := eventbus.New()

	var presenters []presenter.Presenter
	mgrHolder := &acknowledgerHolder{}

	var sink *telegram.Sink
	if cfg.Telegram.Enabled {
		sink, err = telegram.New(telegram.Config{
			Token:      cfg.Telegram.Token,
			ChatID:     cfg.Telegram.ChatID,
			RatePerSec: cfg.Telegram.RatePerSec,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return err
		}
		presenters = append(presenters,
			presenter.NewNotificationPresenter(sink, soundMgr.SoundPath, nil,
				log.With(logx.String("comp", "notify"))))
	} else {
		log.Warn("telegram disabled; running with the in-process channel only")
	}

	presenters = append(presenters,
		presenter.NewInProcessPresenter(
			&logModalHost{log: log.With(logx.String("comp", "modal"))},
			mgrHolder, nil,
			log.With(logx.String("comp", "modal"))))

	mgr := manager.New(store, muter, presenters, soundMgr, bus,
		log.With(logx.String("comp", "manager")))
	mgrHolder.set(mgr)

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	if sink != nil {
		muteDur, err := cfg.Mute.WindowDuration()
		if err != nil {
			return err
		}
		go sink.ListenCommands(ctx, mgr, muteDur)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		mgr.Stop(stopCtx)
	}()

	// Log tap for lifecycle events.
	events, unsub := bus.Subscribe(64)
	defer unsub()
	go func() {
		for e := range events {
			log.Info(e.Type, logx.Any("event", e.Data))
		}
	}()

	// Config hot reload: logging settings apply live; everything else
	// needs a restart.
	go func() {
		err := config.Watch(ctx, cfgPath, log.With(logx.String("comp", "config")), func(next *config.Config) {
			logSvc.Apply(next.Logging.LogxConfig())
		})
		if err != nil {
			log.Warn("config watcher unavailable", logx.Err(err))
		}
	}()

	if err := startMaintenance(cfg, store, mgr, log); err != nil {
		return err
	}

	notifySystemd(ctx, log)

	log.Info("alertd ready", logx.String("storage", storeCfg.Driver))
	<-ctx.Done()
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)
	log.Info("alertd stopping")
	return nil
}

// startMaintenance schedules the daily store summary and the periodic
// sound catalog re-sync.
func startMaintenance(cfg *config.Config, store alertstore.Store, mgr *manager.Manager, log logx.Logger) error {
	c := cron.New()

	if at := strings.TrimSpace(cfg.Maintenance.SummaryAt); at != "" {
		spec, err := dailySpec(at)
		if err != nil {
			return err
		}
		_, err = c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			st, err := store.Stats(ctx)
			if err != nil {
				log.Warn("store summary failed", logx.Err(err))
				return
			}
			log.Info("alert store summary",
				logx.Int64("rows", st.TotalRows), logx.Int64("open", st.OpenRows))
		})
		if err != nil {
			return err
		}
	}

	resync, err := cfg.Maintenance.ResyncInterval()
	if err != nil {
		return err
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", resync), mgr.ResyncSoundVendors); err != nil {
		return err
	}

	c.Start()
	return nil
}

func dailySpec(hhmm string) (string, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("maintenance.summary_at: expected HH:MM, got %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("maintenance.summary_at: invalid hour in %q", hhmm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("maintenance.summary_at: invalid minute in %q", hhmm)
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

// notifySystemd reports readiness and keeps the watchdog fed when running
// under systemd; outside systemd both calls are no-ops.
func notifySystemd(ctx context.Context, log logx.Logger) {
	if ok, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		log.Debug("sd_notify unavailable", logx.Err(err))
	} else if ok {
		log.Debug("reported ready to systemd")
	}

	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
			}
		}
	}()
}

// logModalHost stands in for a UI layer in the headless daemon: foreground
// alerts surface as log lines and stay visible until retracted.
type logModalHost struct {
	log logx.Logger
}

func (h *logModalHost) Present(a alert.Alert, muted bool, _ func()) {
	c := a.ForegroundContent
	h.log.Warn("ALERT",
		logx.String("alert", a.Identifier.String()),
		logx.String("title", c.Title),
		logx.String("body", c.Body),
		logx.Bool("critical", c.IsCritical),
		logx.Bool("muted", muted))
}

func (h *logModalHost) Dismiss(id alert.Identifier) {
	h.log.Info("alert dismissed", logx.String("alert", id.String()))
}

// acknowledgerHolder breaks the construction cycle between the in-process
// presenter (which needs an acknowledger) and the manager (which needs the
// presenter list).
type acknowledgerHolder struct {
	mgr *manager.Manager
}

func (h *acknowledgerHolder) set(m *manager.Manager) { h.mgr = m }

func (h *acknowledgerHolder) AcknowledgeAlert(id alert.Identifier) {
	if h.mgr != nil {
		h.mgr.AcknowledgeAlert(id)
	}
}
