package config

import (
	"errors"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
	"github.com/Evervolv/android-packages-apps-EVUpdater/util"
)

const (
	// DefaultManifestURL is the update API serving per-category,
	// per-device manifests.
	DefaultManifestURL = "https://api.evervolv.com/v1/update"
	// DefaultFetchURL is the distribution server packages are fetched from.
	DefaultFetchURL = "https://d.evervolv.com"
)

// Config is the daemon configuration, persisted as a JSON file.
type Config struct {
	// ManifestURL is the base URL of the update API.
	ManifestURL string
	// FetchURL is the base URL packages are downloaded from.
	FetchURL string
	// DataDir holds the catalog DB.
	DataDir string
	// StorageRoot is the device storage packages are downloaded under.
	StorageRoot string
	// DownloadDirName is the directory under StorageRoot (and the relative
	// install prefix inside recovery scripts).
	DownloadDirName string
	// ScriptDir is where the recovery environment reads its script.
	ScriptDir string
	// PropFile is the Android-style property file describing the installed build.
	PropFile string
	// Device overrides the device name from PropFile when set.
	Device string
	// EmulatedUserID is the storage user id, >= 0 when storage is emulated.
	EmulatedUserID int
	// CheckIntervalMinutes is how often enabled categories are re-checked.
	CheckIntervalMinutes int
	// Categories lists the enabled distribution channels.
	Categories []catalog.Category
}

func defaultConfig() *Config {
	return &Config{
		ManifestURL:          DefaultManifestURL,
		FetchURL:             DefaultFetchURL,
		DataDir:              "/data/evupdater",
		StorageRoot:          "/sdcard",
		DownloadDirName:      "custom",
		ScriptDir:            "/cache/recovery",
		PropFile:             "/system/build.prop",
		EmulatedUserID:       -1,
		CheckIntervalMinutes: 720,
		Categories:           []catalog.Category{catalog.Nightly, catalog.Release},
	}
}

// ReadConfig loads the config file, creating it with defaults on first run.
func ReadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg := defaultConfig()
		log.Infof("writing default config to %s", configPath)
		if err := util.WriteJson(configPath, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg := defaultConfig()
	if _, err := util.ReadJson(configPath, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
