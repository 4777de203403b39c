package downloadmgr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/tracker"
)

// Manager is an in-process download subsystem speaking plain HTTP. It
// implements the same enqueue/query/remove contract an OS download service
// would, so the tracker does not care which one it is wired to.
type Manager struct {
	client *http.Client

	mux        sync.Mutex
	nextHandle int64
	jobs       map[int64]*job

	wg sync.WaitGroup
}

type job struct {
	mux             sync.Mutex
	status          tracker.Status
	bytesDownloaded int64
	totalBytes      int64
	destination     string
	cancel          context.CancelFunc
}

func New() *Manager {
	return &Manager{
		client: &http.Client{Timeout: 0}, // transfers may run for a long time
		jobs:   make(map[int64]*job),
	}
}

// Enqueue registers the transfer and starts it on its own goroutine. The
// returned handle stays valid until Remove is called, including after the
// transfer reached a terminal state.
func (m *Manager) Enqueue(ctx context.Context, url, destination string, opts tracker.EnqueueOptions) (int64, error) {
	jobCtx, cancel := context.WithCancel(ctx)

	j := &job{
		status:      tracker.StatusPending,
		destination: destination,
		cancel:      cancel,
	}

	m.mux.Lock()
	m.nextHandle++
	handle := m.nextHandle
	m.jobs[handle] = j
	m.mux.Unlock()

	log.Infof("enqueued download %d: %s -> %s", handle, url, destination)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(jobCtx, handle, url, j)
	}()

	return handle, nil
}

// Query returns a snapshot of the job.
func (m *Manager) Query(handle int64) (tracker.Job, error) {
	m.mux.Lock()
	j, ok := m.jobs[handle]
	m.mux.Unlock()
	if !ok {
		return tracker.Job{}, tracker.ErrJobNotFound
	}

	j.mux.Lock()
	defer j.mux.Unlock()
	return tracker.Job{
		Status:          j.status,
		BytesDownloaded: j.bytesDownloaded,
		TotalBytes:      j.totalBytes,
		LocalPath:       j.destination,
	}, nil
}

// Remove cancels the transfer if still running, forgets the handle and
// deletes the partial destination file.
func (m *Manager) Remove(handle int64) error {
	m.mux.Lock()
	j, ok := m.jobs[handle]
	if ok {
		delete(m.jobs, handle)
	}
	m.mux.Unlock()
	if !ok {
		return tracker.ErrJobNotFound
	}

	j.cancel()
	if err := os.Remove(j.destination); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to remove partial file %s: %v", j.destination, err)
	}
	return nil
}

// Shutdown waits for all transfer goroutines to finish after their contexts
// were cancelled by the owner of the enqueue context.
func (m *Manager) Shutdown() {
	m.mux.Lock()
	for _, j := range m.jobs {
		j.cancel()
	}
	m.mux.Unlock()
	m.wg.Wait()
}

// run drives the transfer, resuming from whatever bytes a previous attempt
// already wrote. Transient HTTP errors are retried with exponential backoff
// before the job is marked failed.
func (m *Manager) run(ctx context.Context, handle int64, url string, j *job) {
	operation := func() error {
		return m.fetch(ctx, url, j)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		log.Warnf("download %d: %v, retrying in %v", handle, err, wait)
	})

	j.mux.Lock()
	defer j.mux.Unlock()
	if err != nil {
		if ctx.Err() != nil {
			// Removed or shut down; keep whatever status the job had.
			return
		}
		log.Errorf("download %d failed: %v", handle, err)
		j.status = tracker.StatusFailed
		return
	}
	j.status = tracker.StatusSucceeded
	log.Infof("download %d finished, %d bytes", handle, j.bytesDownloaded)
}

func (m *Manager) fetch(ctx context.Context, url string, j *job) error {
	offset := int64(0)
	if info, err := os.Stat(j.destination); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range request, start over.
		offset = 0
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		// The partial file already covers the full content; the body is
		// the server's error text, not payload, so it must not be written.
		j.mux.Lock()
		j.bytesDownloaded = offset
		j.totalBytes = offset
		j.mux.Unlock()
		return nil
	default:
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(j.destination, flags, 0o644)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer out.Close()

	j.mux.Lock()
	j.status = tracker.StatusRunning
	j.bytesDownloaded = offset
	if resp.ContentLength > 0 {
		j.totalBytes = offset + resp.ContentLength
	}
	j.mux.Unlock()

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return backoff.Permanent(err)
			}
			j.mux.Lock()
			j.bytesDownloaded += int64(n)
			j.mux.Unlock()
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
