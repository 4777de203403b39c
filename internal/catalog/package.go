package catalog

// Category is a distribution channel. Every category has its own catalog
// table and its own check cycle.
type Category string

const (
	Nightly Category = "nightly"
	Release Category = "release"
	Testing Category = "testing"
	Addon   Category = "addon"
)

// Categories returns all known categories in a fixed order.
func Categories() []Category {
	return []Category{Nightly, Release, Testing, Addon}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case Nightly, Release, Testing, Addon:
		return true
	}
	return false
}

// DownloadState describes where a package sits in its download lifecycle.
type DownloadState int

const (
	StateNone DownloadState = iota
	StatePending
	StateRunning
	StatePaused
	StateSucceeded
	StateFailed
)

// Active reports whether the state is non-terminal, meaning a download
// subsystem job exists and must keep being supervised.
func (s DownloadState) Active() bool {
	switch s {
	case StatePending, StateRunning, StatePaused:
		return true
	}
	return false
}

func (s DownloadState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// HandleNone marks a package with no download subsystem job.
	HandleNone int64 = -1
	// ProgressUnknown marks indeterminate download progress.
	ProgressUnknown = -1
)

// Package is one row in the catalog. The first block of fields comes from
// the server manifest and is never rewritten after the row is created. The
// second block is owned by the download tracker and is only ever written
// through Store.UpdateDownloadFields, so the two writers touch disjoint
// column sets.
type Package struct {
	ID       uint     `gorm:"primaryKey"`
	Category Category `gorm:"column:category"`
	Date     string   `gorm:"column:date"`
	Name     string   `gorm:"column:name"`
	Checksum string   `gorm:"column:md5sum;index"`
	Location string   `gorm:"column:location"`
	Device   string   `gorm:"column:device"`
	Message  string   `gorm:"column:message"`
	Size     int64    `gorm:"column:size"`
	Count    int      `gorm:"column:count"`

	LocalChecksum    string        `gorm:"column:md5sum_loc"`
	DownloadHandle   int64         `gorm:"column:download_id"`
	DownloadState    DownloadState `gorm:"column:download_status"`
	DownloadProgress int           `gorm:"column:download_progress"`
}

// ResetDownloadFields puts the download-tracking fields back to their
// defaults, as they are on a freshly inserted row.
func (p *Package) ResetDownloadFields() {
	p.LocalChecksum = ""
	p.DownloadHandle = HandleNone
	p.DownloadState = StateNone
	p.DownloadProgress = ProgressUnknown
}
