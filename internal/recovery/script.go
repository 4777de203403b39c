package recovery

import (
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/deviceinfo"
)

// Dialect selects which recovery environment's command grammar to emit.
type Dialect int

const (
	// OpenRecovery is the TWRP "open recovery script" grammar, one plain
	// command per line.
	OpenRecovery Dialect = iota
	// ExtendedCommand is the CWM grammar with function-call syntax and
	// absolute paths.
	ExtendedCommand
)

const (
	openRecoveryFile    = "openrecoveryscript"
	extendedCommandFile = "extendedcommand"
)

// ErrEmptySelection is returned when a script with zero install commands
// would result.
var ErrEmptySelection = errors.New("no packages selected")

// Flags are the optional operations prepended to the install commands.
type Flags struct {
	Backup     bool
	WipeData   bool
	WipeCache  bool
	WipeDalvik bool
}

// Entry is one package to install, addressed by its device-relative path.
type Entry struct {
	Path string
}

// Selection is the ordered set of entries the script will install.
type Selection []Entry

// PackageEntry derives the install path of a downloaded catalog package.
// The path is relative on purpose: recovery environments mount storage at
// different points, and a relative path works under all of them.
func PackageEntry(downloadDirName string, pkg *catalog.Package) Entry {
	return Entry{Path: path.Join(downloadDirName, string(pkg.Category), pkg.Name)}
}

// Builder renders and triggers recovery scripts. Rendering is pure; the
// shell invocation is behind a hook so tests can capture the stream.
type Builder struct {
	ScriptDir      string // where the recovery environment reads its script
	SdcardPath     string // absolute storage prefix for the extended-command dialect
	EmulatedUserID int    // >= 0 when storage is emulated, adds a user segment to SdcardPath
	Info           *deviceinfo.Info

	now func() time.Time
	run func(script string) error
}

func NewBuilder(scriptDir, sdcardPath string, emulatedUserID int, info *deviceinfo.Info) *Builder {
	b := &Builder{
		ScriptDir:      scriptDir,
		SdcardPath:     sdcardPath,
		EmulatedUserID: emulatedUserID,
		Info:           info,
		now:            time.Now,
	}
	b.run = b.runShell
	return b
}

// Build renders the script for the dialect and pipes it to the shell. The
// stream itself recreates the script file from scratch, so a failed build
// never leaves a half-written script behind for the recovery environment.
func (b *Builder) Build(dialect Dialect, selection Selection, flags Flags) error {
	if len(selection) == 0 {
		return ErrEmptySelection
	}

	var script string
	switch dialect {
	case OpenRecovery:
		script = b.renderOpenRecovery(selection, flags)
	case ExtendedCommand:
		script = b.renderExtendedCommand(selection, flags)
	default:
		return fmt.Errorf("unknown dialect %d", dialect)
	}

	log.Debugf("recovery script:\n%s", script)
	if err := b.run(script); err != nil {
		return fmt.Errorf("write recovery script: %w", err)
	}
	return nil
}

func (b *Builder) renderOpenRecovery(selection Selection, flags Flags) string {
	target := path.Join(b.ScriptDir, openRecoveryFile)

	var sb strings.Builder
	fmt.Fprintf(&sb, "mkdir -p %s/\n", b.ScriptDir)
	fmt.Fprintf(&sb, "echo -n > %s\n", target)
	if flags.Backup {
		fmt.Fprintf(&sb, "echo 'backup SDBO %s' >> %s\n", b.Info.BackupName(b.now()), target)
	}
	if flags.WipeData {
		fmt.Fprintf(&sb, "echo 'wipe data' >> %s\n", target)
	}
	if flags.WipeCache {
		fmt.Fprintf(&sb, "echo 'wipe cache' >> %s\n", target)
	}
	if flags.WipeDalvik {
		fmt.Fprintf(&sb, "echo 'wipe dalvik' >> %s\n", target)
	}
	for _, entry := range selection {
		fmt.Fprintf(&sb, "echo 'install %s' >> %s\n", entry.Path, target)
	}
	return sb.String()
}

func (b *Builder) renderExtendedCommand(selection Selection, flags Flags) string {
	target := path.Join(b.ScriptDir, extendedCommandFile)

	sdcard := b.SdcardPath
	if !strings.HasSuffix(sdcard, "/") {
		sdcard += "/"
	}
	if b.EmulatedUserID >= 0 {
		sdcard += strconv.Itoa(b.EmulatedUserID) + "/"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "mkdir -p %s/\n", b.ScriptDir)
	fmt.Fprintf(&sb, "echo -n > %s\n", target)
	if flags.Backup {
		fmt.Fprintf(&sb, "echo 'backup_rom(\"%sclockworkmod/backup/%s\")' >> %s\n",
			sdcard, b.Info.BackupName(b.now()), target)
	}
	if flags.WipeData {
		fmt.Fprintf(&sb, "echo 'format(\"/data\")' >> %s\n", target)
	}
	if flags.WipeCache {
		fmt.Fprintf(&sb, "echo 'format(\"/cache\")' >> %s\n", target)
	}
	// This dialect has no dalvik wipe command; the flag is ignored.
	for _, entry := range selection {
		// User-added files already carry an absolute path.
		zipPath := entry.Path
		if !strings.HasPrefix(zipPath, "/") {
			zipPath = sdcard + zipPath
		}
		fmt.Fprintf(&sb, "echo 'install_zip(\"%s\")' >> %s\n", zipPath, target)
	}
	return sb.String()
}

func (b *Builder) runShell(script string) error {
	cmd := exec.Command("sh")
	cmd.Stdin = strings.NewReader(script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sh: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
