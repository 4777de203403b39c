package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/config"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/deviceinfo"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/downloadmgr"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/events"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/manifest"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/recovery"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/tracker"
)

// Daemon owns the core components and their lifecycles: the persisted
// catalog, the event bus, the manifest checker and the download tracker
// with its bundled HTTP download manager.
type Daemon struct {
	cfg     *config.Config
	info    *deviceinfo.Info
	store   *catalog.Store
	bus     *events.Bus
	manager *downloadmgr.Manager
	tracker *tracker.Tracker
	checker *manifest.Checker
	builder *recovery.Builder
}

// New builds the component graph. Store initialization failure is the one
// fatal condition; the hosting process decides whether to retry or exit.
func New(cfg *config.Config) (*Daemon, error) {
	store, err := catalog.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init catalog store: %w", err)
	}

	info := deviceinfo.Load(cfg.PropFile, cfg.Device)
	bus := events.NewBus()
	manager := downloadmgr.New()
	downloadDir := filepath.Join(cfg.StorageRoot, cfg.DownloadDirName)
	trk := tracker.New(store, bus, manager, cfg.FetchURL, downloadDir, time.Second)
	reconciler := manifest.NewReconciler(store, bus, info)
	checker := manifest.NewChecker(cfg.ManifestURL, info.Device, reconciler, bus)
	builder := recovery.NewBuilder(cfg.ScriptDir, cfg.StorageRoot, cfg.EmulatedUserID, info)

	d := &Daemon{
		cfg:     cfg,
		info:    info,
		store:   store,
		bus:     bus,
		manager: manager,
		tracker: trk,
		checker: checker,
		builder: builder,
	}

	// Lowest-priority observer: log new updates. A foreground consumer
	// subscribes with a higher priority and marks the event handled to
	// suppress this.
	bus.Subscribe(0, func(ev events.Event) bool {
		if ev.Type == events.NewPackageAvailable && ev.Package != nil {
			log.Infof("new %s update available: %s (%s)", ev.Category, ev.Package.Name, ev.Package.Date)
		}
		return false
	})

	return d, nil
}

func (d *Daemon) Store() *catalog.Store       { return d.store }
func (d *Daemon) Bus() *events.Bus            { return d.bus }
func (d *Daemon) Tracker() *tracker.Tracker   { return d.tracker }
func (d *Daemon) Checker() *manifest.Checker  { return d.checker }
func (d *Daemon) Builder() *recovery.Builder  { return d.builder }
func (d *Daemon) Info() *deviceinfo.Info      { return d.info }
func (d *Daemon) Config() *config.Config      { return d.cfg }

// Run reattaches to in-flight downloads, re-checks the enabled categories
// on the configured interval and blocks until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.tracker.Reattach(); err != nil {
		log.Errorf("failed to reattach to downloads: %v", err)
	}

	d.checkAll(ctx)

	interval := time.Duration(d.cfg.CheckIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Close()
			return nil
		case <-ticker.C:
			d.checkAll(ctx)
		}
	}
}

// Close stops the workers and releases the store. Non-terminal download
// state stays persisted for the next start.
func (d *Daemon) Close() {
	d.tracker.Stop()
	d.manager.Shutdown()
	if err := d.store.Close(); err != nil {
		log.Warnf("failed to close catalog store: %v", err)
	}
}

func (d *Daemon) checkAll(ctx context.Context) {
	for _, category := range d.cfg.Categories {
		if !category.Valid() {
			log.Warnf("skipping unknown category %q in config", category)
			continue
		}
		// Check errors are already reflected in the check-finished event.
		_ = d.checker.Check(ctx, category)
	}
}
