package manifest

import (
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
)

// Descriptor is one entry of the remote manifest, exactly as the server
// lists it. It carries no download-tracking fields; those exist only on
// persisted catalog rows.
type Descriptor struct {
	Date     string `json:"date"`
	Name     string `json:"name"`
	Checksum string `json:"md5sum"`
	Location string `json:"location"`
	Device   string `json:"device"`
	Message  string `json:"message"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Count    int    `json:"count"`
}

// Package converts the descriptor into a catalog row for the given
// category, with download fields at their defaults.
func (d *Descriptor) Package(category catalog.Category) *catalog.Package {
	pkg := &catalog.Package{
		Category: category,
		Date:     d.Date,
		Name:     d.Name,
		Checksum: d.Checksum,
		Location: d.Location,
		Device:   d.Device,
		Message:  d.Message,
		Size:     d.Size,
		Count:    d.Count,
	}
	pkg.ResetDownloadFields()
	return pkg
}
