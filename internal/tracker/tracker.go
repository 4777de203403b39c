package tracker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/events"
)

const partialSuffix = ".partial"

// Tracker supervises active downloads. Each tracked package is owned by
// exactly one polling worker; workers run until the job reaches a terminal
// state or the tracker is stopped. Stopping leaves non-terminal state
// persisted so a later Reattach resumes supervision instead of orphaning
// the download.
type Tracker struct {
	store        *catalog.Store
	bus          *events.Bus
	subsystem    Subsystem
	fetchURL     string
	downloadDir  string
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mux    sync.Mutex
	active map[int64]struct{}
}

func New(store *catalog.Store, bus *events.Bus, subsystem Subsystem, fetchURL, downloadDir string, pollInterval time.Duration) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		store:        store,
		bus:          bus,
		subsystem:    subsystem,
		fetchURL:     strings.TrimSuffix(fetchURL, "/"),
		downloadDir:  downloadDir,
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
		active:       make(map[int64]struct{}),
	}
}

// Start requests the download from the subsystem and begins supervising it.
// Starting a package whose download is already in a non-terminal state is a
// no-op that returns the existing handle.
func (t *Tracker) Start(pkg *catalog.Package) (int64, error) {
	if pkg.DownloadState.Active() && pkg.DownloadHandle != catalog.HandleNone {
		log.Debugf("already tracking download %d for %s", pkg.DownloadHandle, pkg.Name)
		t.supervise(pkg)
		return pkg.DownloadHandle, nil
	}

	dir := filepath.Join(t.downloadDir, string(pkg.Category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return catalog.HandleNone, fmt.Errorf("create download dir %s: %w", dir, err)
	}

	source := pkg.Location
	if source == "" {
		source = pkg.Name
	}
	url := t.fetchURL + "/" + source
	destination := filepath.Join(dir, pkg.Name) + partialSuffix

	handle, err := t.subsystem.Enqueue(t.ctx, url, destination, EnqueueOptions{})
	if err != nil {
		pkg.ResetDownloadFields()
		pkg.DownloadState = catalog.StateFailed
		t.persist(pkg)
		t.publishProgress(pkg)
		return catalog.HandleNone, fmt.Errorf("enqueue %s: %w", url, err)
	}

	pkg.DownloadHandle = handle
	pkg.DownloadState = catalog.StatePending
	pkg.DownloadProgress = 0
	t.persist(pkg)
	t.publishProgress(pkg)
	t.supervise(pkg)
	log.Infof("started download %d for %s", handle, pkg.Name)
	return handle, nil
}

// Reattach spawns a supervising worker for every persisted package whose
// download state is non-terminal. Called once at startup so downloads
// survive a process restart without being enqueued again.
func (t *Tracker) Reattach() error {
	active, err := t.store.ListActive()
	if err != nil {
		return fmt.Errorf("list active downloads: %w", err)
	}
	for i := range active {
		pkg := active[i]
		if pkg.DownloadHandle == catalog.HandleNone {
			continue
		}
		log.Infof("reattaching to in-flight download %d for %s", pkg.DownloadHandle, pkg.Name)
		t.supervise(&pkg)
	}
	return nil
}

// Cancel asks the subsystem to drop the job and clears the download fields.
// A package with no handle is logged and left alone.
func (t *Tracker) Cancel(pkg *catalog.Package) error {
	if pkg.DownloadHandle < 0 {
		log.Warnf("cancel requested for %s but it has no download handle", pkg.Name)
		return nil
	}
	if err := t.subsystem.Remove(pkg.DownloadHandle); err != nil {
		log.Warnf("subsystem remove of %d failed: %v", pkg.DownloadHandle, err)
	}
	pkg.ResetDownloadFields()
	t.persist(pkg)
	t.publishProgress(pkg)
	return nil
}

// Remove cancels like Cancel and also deletes the downloaded or partial
// file. Returns whether any file existed and was deleted.
func (t *Tracker) Remove(pkg *catalog.Package) (bool, error) {
	if err := t.Cancel(pkg); err != nil {
		return false, err
	}

	final := filepath.Join(t.downloadDir, string(pkg.Category), pkg.Name)
	removed := false
	for _, file := range []string{final + partialSuffix, final} {
		err := os.Remove(file)
		if err == nil {
			removed = true
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", file, err)
		}
	}
	return removed, nil
}

// Stop signals every worker to exit and waits for them. Workers observe the
// stop within one poll interval and leave their download state as is.
func (t *Tracker) Stop() {
	t.cancel()
	t.wg.Wait()
}

// supervise spawns the polling worker for the package unless its handle is
// already being supervised.
func (t *Tracker) supervise(pkg *catalog.Package) {
	t.mux.Lock()
	defer t.mux.Unlock()

	if _, ok := t.active[pkg.DownloadHandle]; ok {
		return
	}
	t.active[pkg.DownloadHandle] = struct{}{}
	t.wg.Add(1)
	go t.watch(*pkg)
}

func (t *Tracker) watch(pkg catalog.Package) {
	defer t.wg.Done()

	handle := pkg.DownloadHandle
	defer func() {
		t.mux.Lock()
		delete(t.active, handle)
		t.mux.Unlock()
	}()

	logPrefix := fmt.Sprintf("download %d", handle)
	log.Infof("%s: worker starting", logPrefix)

	previousProgress := catalog.ProgressUnknown
	deferred := 0

	for {
		job, err := t.subsystem.Query(handle)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				log.Warnf("%s: job no longer known to the subsystem", logPrefix)
				pkg.ResetDownloadFields()
			} else {
				log.Errorf("%s: query failed: %v", logPrefix, err)
				pkg.DownloadState = catalog.StateFailed
				pkg.DownloadProgress = catalog.ProgressUnknown
			}
			t.persist(&pkg)
			t.publishProgress(&pkg)
			log.Infof("%s: worker ending", logPrefix)
			return
		}

		state := mapStatus(job.Status)
		stateChanged := state != pkg.DownloadState
		pkg.DownloadState = state
		if stateChanged {
			t.persist(&pkg)
		}

		emit := true
		done := false
		switch job.Status {
		case StatusRunning:
			progress := catalog.ProgressUnknown
			if job.TotalBytes > 0 {
				progress = int(job.BytesDownloaded * 100 / job.TotalBytes)
			}
			if progress == previousProgress && !stateChanged {
				deferred++
				emit = false
			} else {
				previousProgress = progress
				pkg.DownloadProgress = progress
				log.Debugf("%s: at %d%%", logPrefix, progress)
			}
		case StatusPending, StatusPaused:
			pkg.DownloadProgress = catalog.ProgressUnknown
			if !stateChanged {
				deferred++
				emit = false
			}
		case StatusSucceeded:
			pkg.DownloadProgress = 100
			if err := t.finalize(&pkg, job); err != nil {
				log.Errorf("%s: %v", logPrefix, err)
			}
			done = true
		case StatusFailed:
			log.Warnf("%s: failed", logPrefix)
			pkg.DownloadProgress = catalog.ProgressUnknown
			done = true
		}

		// A stalled connection keeps reporting the same progress; observers
		// would never hear from us again without a forced event.
		if deferred > 4 {
			deferred = 0
			emit = true
		}
		if emit {
			t.publishProgress(&pkg)
		}
		if done {
			t.persist(&pkg)
			log.Infof("%s: worker ending", logPrefix)
			return
		}

		select {
		case <-t.ctx.Done():
			// State stays non-terminal; a future Reattach picks it up.
			t.persist(&pkg)
			log.Infof("%s: worker stopping", logPrefix)
			return
		case <-time.After(t.pollInterval):
		}
	}
}

// finalize strips the partial suffix off the finished file and records its
// checksum on the row.
func (t *Tracker) finalize(pkg *catalog.Package, job Job) error {
	final := strings.TrimSuffix(job.LocalPath, partialSuffix)
	if final != job.LocalPath {
		if err := os.Rename(job.LocalPath, final); err != nil {
			return fmt.Errorf("rename %s: %w", job.LocalPath, err)
		}
	}

	log.Infof("download %d complete, computing checksum", pkg.DownloadHandle)
	sum, err := fileChecksum(final)
	if err != nil {
		return fmt.Errorf("checksum %s: %w", final, err)
	}
	pkg.LocalChecksum = sum
	return nil
}

func (t *Tracker) persist(pkg *catalog.Package) {
	if err := t.store.UpdateDownloadFields(pkg); err != nil {
		log.Errorf("failed to persist download state for %s: %v", pkg.Checksum, err)
	}
}

func (t *Tracker) publishProgress(pkg *catalog.Package) {
	t.bus.Publish(events.Event{
		Type:     events.DownloadProgress,
		Category: pkg.Category,
		Checksum: pkg.Checksum,
		State:    pkg.DownloadState,
		Progress: pkg.DownloadProgress,
	})
}

func mapStatus(status Status) catalog.DownloadState {
	switch status {
	case StatusPending:
		return catalog.StatePending
	case StatusRunning:
		return catalog.StateRunning
	case StatusPaused:
		return catalog.StatePaused
	case StatusSucceeded:
		return catalog.StateSucceeded
	default:
		return catalog.StateFailed
	}
}

func fileChecksum(file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
