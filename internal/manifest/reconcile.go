package manifest

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/deviceinfo"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/events"
)

// Reconciler merges freshly fetched manifest entries into the persisted
// catalog. The merge is a two-pass diff by checksum, never a destructive
// replace: a replace-all would lose download state of rows the tracker is
// still working on.
type Reconciler struct {
	store *catalog.Store
	bus   *events.Bus
	info  *deviceinfo.Info
}

func NewReconciler(store *catalog.Store, bus *events.Bus, info *deviceinfo.Info) *Reconciler {
	return &Reconciler{store: store, bus: bus, info: info}
}

// Reconcile applies the descriptor list to the category's catalog table and
// announces the newest entry that postdates the installed build. An empty
// descriptor list is a valid "feed now empty" signal and prunes everything
// not in flight.
func (r *Reconciler) Reconcile(category catalog.Category, descriptors []Descriptor) error {
	incoming := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		if d.Checksum == "" {
			log.Warnf("skipping manifest entry %q with no checksum", d.Name)
			continue
		}
		incoming[d.Checksum] = struct{}{}
	}

	existing, err := r.store.List(category)
	if err != nil {
		return fmt.Errorf("list %s: %w", category, err)
	}

	// Prune pass: drop rows the server no longer lists, unless a download
	// is in flight. A package being downloaded is never silently dropped.
	present := make(map[string]struct{}, len(existing))
	for _, pkg := range existing {
		if _, ok := incoming[pkg.Checksum]; ok {
			present[pkg.Checksum] = struct{}{}
			continue
		}
		if pkg.DownloadState.Active() {
			log.Debugf("keeping delisted package %s, download is %s", pkg.Name, pkg.DownloadState)
			present[pkg.Checksum] = struct{}{}
			continue
		}
		if err := r.store.Remove(category, pkg.Checksum); err != nil {
			return fmt.Errorf("prune %s: %w", pkg.Checksum, err)
		}
	}

	// Add pass: insert entries we have not seen before. Rows that already
	// exist are left untouched, first-seen metadata wins for the life of
	// the entry.
	for _, d := range descriptors {
		if d.Checksum == "" {
			continue
		}
		if _, ok := present[d.Checksum]; ok {
			continue
		}
		if err := r.store.Upsert(category, d.Package(category)); err != nil {
			return fmt.Errorf("add %s: %w", d.Checksum, err)
		}
	}

	r.announceNewest(category, descriptors)
	return nil
}

// announceNewest scans the incoming list newest-first and publishes a single
// notification for the first entry newer than the installed build.
func (r *Reconciler) announceNewest(category catalog.Category, descriptors []Descriptor) {
	for i := len(descriptors) - 1; i >= 0; i-- {
		d := descriptors[i]
		if d.Checksum == "" || !r.info.IsNewerThanInstalled(d.Date) {
			continue
		}
		log.Infof("found new update %s", d.Name)
		r.bus.Publish(events.Event{
			Type:     events.NewPackageAvailable,
			Category: category,
			Package:  d.Package(category),
		})
		return
	}
}
