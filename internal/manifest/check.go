package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/events"
)

// Checker fetches the device-scoped manifest for a category and feeds it to
// the reconciler. One check is one fetch-then-merge flow, run to completion
// synchronously; a failed check leaves the catalog untouched and the next
// scheduled or manual check simply tries again.
type Checker struct {
	manifestURL string
	device      string
	client      *http.Client
	reconciler  *Reconciler
	bus         *events.Bus
}

func NewChecker(manifestURL, device string, reconciler *Reconciler, bus *events.Bus) *Checker {
	return &Checker{
		manifestURL: manifestURL,
		device:      device,
		client:      &http.Client{Timeout: 30 * time.Second},
		reconciler:  reconciler,
		bus:         bus,
	}
}

// Check runs a single update check for the category and publishes the
// check-finished event with the error flag set on any fetch, parse or
// storage failure.
func (c *Checker) Check(ctx context.Context, category catalog.Category) error {
	err := c.check(ctx, category)
	if err != nil {
		log.Errorf("update check for %s failed: %v", category, err)
	}

	c.bus.Publish(events.Event{
		Type:     events.CheckFinished,
		Category: category,
		Error:    err != nil,
	})
	return err
}

func (c *Checker) check(ctx context.Context, category catalog.Category) error {
	url := fmt.Sprintf("%s/%s/%s", c.manifestURL, category, c.device)
	log.Debugf("fetching manifest %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch manifest: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var descriptors []Descriptor
	if err := json.Unmarshal(body, &descriptors); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}

	return c.reconciler.Reconcile(category, descriptors)
}
