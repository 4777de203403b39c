package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("package not found")

const storeFileName = "updates.db"

// Store is the persisted catalog backed by a SQLite DB, one table per
// category. Individual row operations are serialized by the database;
// there are no multi-row transactions here on purpose, both reconciliation
// passes are idempotent if retried after a crash.
type Store struct {
	db        *gorm.DB
	storeFile string
}

// NewStore opens (creating if needed) the catalog DB in dataDir.
func NewStore(dataDir string) (*Store, error) {
	storeStr := storeFileName + "?cache=shared"
	if runtime.GOOS == "windows" {
		// To avoid `The process cannot access the file because it is being used by another process` on Windows
		storeStr = storeFileName
	}

	file := filepath.Join(dataDir, storeStr)
	db, err := gorm.Open(sqlite.Open(file), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sql, err := db.DB()
	if err != nil {
		return nil, err
	}
	sql.SetMaxOpenConns(runtime.NumCPU())

	for _, category := range Categories() {
		if err := db.Table(string(category)).AutoMigrate(&Package{}); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", category, err)
		}
	}

	return &Store{db: db, storeFile: filepath.Join(dataDir, storeFileName)}, nil
}

// Close closes the underlying DB handle.
func (s *Store) Close() error {
	sql, err := s.db.DB()
	if err != nil {
		return err
	}
	return sql.Close()
}

// Upsert inserts the package into its category table unless a row with the
// same checksum already exists. Existing rows are left untouched so that
// reconciliation cannot clobber download state written concurrently by the
// tracker.
func (s *Store) Upsert(category Category, pkg *Package) error {
	var count int64
	result := s.db.Table(string(category)).Where("md5sum = ?", pkg.Checksum).Count(&count)
	if result.Error != nil {
		return fmt.Errorf("lookup %s: %w", pkg.Checksum, result.Error)
	}
	if count > 0 {
		return nil
	}

	pkg.Category = category
	if result := s.db.Table(string(category)).Create(pkg); result.Error != nil {
		return fmt.Errorf("insert %s: %w", pkg.Checksum, result.Error)
	}
	return nil
}

// Remove deletes the row with the given checksum. Removing an absent row is
// not an error.
func (s *Store) Remove(category Category, checksum string) error {
	result := s.db.Table(string(category)).Where("md5sum = ?", checksum).Delete(&Package{})
	if result.Error != nil {
		return fmt.Errorf("delete %s: %w", checksum, result.Error)
	}
	return nil
}

// List returns the full category snapshot in storage (insertion) order.
func (s *Store) List(category Category) ([]Package, error) {
	var packages []Package
	result := s.db.Table(string(category)).Order("id").Find(&packages)
	if result.Error != nil {
		return nil, fmt.Errorf("list %s: %w", category, result.Error)
	}
	return packages, nil
}

// Find returns the row with the given checksum from the category table.
func (s *Store) Find(category Category, checksum string) (*Package, error) {
	var pkg Package
	result := s.db.Table(string(category)).Where("md5sum = ?", checksum).First(&pkg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find %s: %w", checksum, result.Error)
	}
	return &pkg, nil
}

// UpdateDownloadFields writes only the download-tracking columns of the
// package row, keyed by checksum. Server-sourced columns are never part of
// the update, which lets the tracker and the reconciler write to the same
// row without a table-wide lock.
func (s *Store) UpdateDownloadFields(pkg *Package) error {
	result := s.db.Table(string(pkg.Category)).
		Where("md5sum = ?", pkg.Checksum).
		Updates(map[string]interface{}{
			"md5sum_loc":        pkg.LocalChecksum,
			"download_id":       pkg.DownloadHandle,
			"download_status":   pkg.DownloadState,
			"download_progress": pkg.DownloadProgress,
		})
	if result.Error != nil {
		return fmt.Errorf("update download fields %s: %w", pkg.Checksum, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByHandle does a reverse lookup across all category tables. Used when
// an event arrives keyed by download handle rather than checksum.
func (s *Store) FindByHandle(handle int64) (*Package, error) {
	for _, category := range Categories() {
		var pkg Package
		result := s.db.Table(string(category)).Where("download_id = ?", handle).First(&pkg)
		if result.Error == nil {
			return &pkg, nil
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find handle %d: %w", handle, result.Error)
		}
	}
	return nil, ErrNotFound
}

// ListActive returns every row across all categories whose download state is
// non-terminal. The tracker uses this at startup to reattach to downloads
// that were in flight when the process died.
func (s *Store) ListActive() ([]Package, error) {
	var active []Package
	states := []DownloadState{StatePending, StateRunning, StatePaused}
	for _, category := range Categories() {
		var packages []Package
		result := s.db.Table(string(category)).
			Where("download_status IN ?", states).
			Order("id").
			Find(&packages)
		if result.Error != nil {
			return nil, fmt.Errorf("list active %s: %w", category, result.Error)
		}
		active = append(active, packages...)
	}
	return active, nil
}
