package downloadmgr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/tracker"
)

func waitForStatus(t *testing.T, m *Manager, handle int64, want tracker.Status) tracker.Job {
	t.Helper()
	var job tracker.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Query(handle)
		if err != nil {
			return false
		}
		return job.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestManager_Download(t *testing.T) {
	payload := []byte("this is an update package")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	m := New()
	defer m.Shutdown()

	destination := filepath.Join(t.TempDir(), "update.zip.partial")
	handle, err := m.Enqueue(context.Background(), server.URL, destination, tracker.EnqueueOptions{})
	require.NoError(t, err)

	job := waitForStatus(t, m, handle, tracker.StatusSucceeded)
	assert.Equal(t, int64(len(payload)), job.BytesDownloaded)
	assert.Equal(t, int64(len(payload)), job.TotalBytes)
	assert.Equal(t, destination, job.LocalPath)

	got, err := os.ReadFile(destination)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestManager_NotFoundFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	m := New()
	defer m.Shutdown()

	destination := filepath.Join(t.TempDir(), "missing.zip.partial")
	handle, err := m.Enqueue(context.Background(), server.URL, destination, tracker.EnqueueOptions{})
	require.NoError(t, err)

	waitForStatus(t, m, handle, tracker.StatusFailed)
}

func TestManager_ResumesPartialFile(t *testing.T) {
	payload := []byte("0123456789")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bytes=4-", r.Header.Get("Range"))
		w.Header().Set("Content-Length", "6")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[4:])
	}))
	defer server.Close()

	m := New()
	defer m.Shutdown()

	destination := filepath.Join(t.TempDir(), "resume.zip.partial")
	require.NoError(t, os.WriteFile(destination, payload[:4], 0o644))

	handle, err := m.Enqueue(context.Background(), server.URL, destination, tracker.EnqueueOptions{})
	require.NoError(t, err)

	job := waitForStatus(t, m, handle, tracker.StatusSucceeded)
	assert.Equal(t, int64(len(payload)), job.BytesDownloaded)

	got, err := os.ReadFile(destination)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestManager_RangeNotSatisfiableKeepsCompleteFile(t *testing.T) {
	payload := []byte("complete update package bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The partial file already holds everything; a resume request past
		// the end gets a 416 with an error body.
		require.NotEmpty(t, r.Header.Get("Range"))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
	}))
	defer server.Close()

	m := New()
	defer m.Shutdown()

	destination := filepath.Join(t.TempDir(), "complete.zip.partial")
	require.NoError(t, os.WriteFile(destination, payload, 0o644))

	handle, err := m.Enqueue(context.Background(), server.URL, destination, tracker.EnqueueOptions{})
	require.NoError(t, err)

	job := waitForStatus(t, m, handle, tracker.StatusSucceeded)
	assert.Equal(t, int64(len(payload)), job.BytesDownloaded)
	assert.Equal(t, int64(len(payload)), job.TotalBytes)

	// The file on disk is untouched; the 416 body never reaches it.
	got, err := os.ReadFile(destination)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestManager_Remove(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial data"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Hold the transfer open until the client goes away.
		<-r.Context().Done()
	}))
	defer server.Close()

	m := New()
	defer m.Shutdown()

	destination := filepath.Join(t.TempDir(), "cancelled.zip.partial")
	handle, err := m.Enqueue(context.Background(), server.URL, destination, tracker.EnqueueOptions{})
	require.NoError(t, err)

	waitForStatus(t, m, handle, tracker.StatusRunning)
	require.NoError(t, m.Remove(handle))

	_, err = m.Query(handle)
	assert.ErrorIs(t, err, tracker.ErrJobNotFound)
	assert.NoFileExists(t, destination)

	assert.ErrorIs(t, m.Remove(handle), tracker.ErrJobNotFound)
}
