package recovery

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/deviceinfo"
)

func newTestBuilder(emulatedUserID int) (*Builder, *string) {
	b := NewBuilder("/cache/recovery", "/sdcard", emulatedUserID, &deviceinfo.Info{
		Device:  "mako",
		Version: "4.2.0-nightly",
	})
	b.now = func() time.Time {
		return time.Date(2013, 6, 2, 14, 5, 0, 0, time.UTC)
	}

	var captured string
	b.run = func(script string) error {
		captured = script
		return nil
	}
	return b, &captured
}

func TestBuild_EmptySelection(t *testing.T) {
	for _, dialect := range []Dialect{OpenRecovery, ExtendedCommand} {
		b, captured := newTestBuilder(-1)
		err := b.Build(dialect, nil, Flags{Backup: true, WipeData: true})
		assert.ErrorIs(t, err, ErrEmptySelection)
		assert.Empty(t, *captured, "no script may be emitted for an empty selection")
	}
}

func TestBuild_OpenRecovery(t *testing.T) {
	b, captured := newTestBuilder(-1)

	selection := Selection{
		{Path: "custom/nightly/update-1.zip"},
		{Path: "custom/nightly/update-2.zip"},
	}
	require.NoError(t, b.Build(OpenRecovery, selection, Flags{Backup: true, WipeData: true}))

	want := strings.Join([]string{
		"mkdir -p /cache/recovery/",
		"echo -n > /cache/recovery/openrecoveryscript",
		"echo 'backup SDBO 2013.06.02.14.05-4.2.0-nightly' >> /cache/recovery/openrecoveryscript",
		"echo 'wipe data' >> /cache/recovery/openrecoveryscript",
		"echo 'install custom/nightly/update-1.zip' >> /cache/recovery/openrecoveryscript",
		"echo 'install custom/nightly/update-2.zip' >> /cache/recovery/openrecoveryscript",
		"",
	}, "\n")
	assert.Equal(t, want, *captured)
}

func TestBuild_OpenRecoveryFlagsOff(t *testing.T) {
	b, captured := newTestBuilder(-1)

	require.NoError(t, b.Build(OpenRecovery, Selection{{Path: "custom/nightly/u.zip"}}, Flags{}))

	assert.NotContains(t, *captured, "backup")
	assert.NotContains(t, *captured, "wipe")
	assert.Contains(t, *captured, "echo 'install custom/nightly/u.zip'")
}

func TestBuild_ExtendedCommand(t *testing.T) {
	b, captured := newTestBuilder(-1)

	selection := Selection{{Path: "custom/nightly/update-1.zip"}}
	flags := Flags{Backup: true, WipeData: true, WipeCache: true, WipeDalvik: true}
	require.NoError(t, b.Build(ExtendedCommand, selection, flags))

	want := strings.Join([]string{
		"mkdir -p /cache/recovery/",
		"echo -n > /cache/recovery/extendedcommand",
		`echo 'backup_rom("/sdcard/clockworkmod/backup/2013.06.02.14.05-4.2.0-nightly")' >> /cache/recovery/extendedcommand`,
		`echo 'format("/data")' >> /cache/recovery/extendedcommand`,
		`echo 'format("/cache")' >> /cache/recovery/extendedcommand`,
		`echo 'install_zip("/sdcard/custom/nightly/update-1.zip")' >> /cache/recovery/extendedcommand`,
		"",
	}, "\n")
	assert.Equal(t, want, *captured)

	// No dalvik wipe exists in this grammar.
	assert.NotContains(t, *captured, "dalvik")
}

func TestBuild_ExtendedCommandEmulatedStorage(t *testing.T) {
	b, captured := newTestBuilder(0)

	require.NoError(t, b.Build(ExtendedCommand, Selection{{Path: "custom/nightly/u.zip"}}, Flags{}))

	assert.Contains(t, *captured, `install_zip("/sdcard/0/custom/nightly/u.zip")`)
}

func TestBuild_ExtendedCommandAbsolutePath(t *testing.T) {
	b, captured := newTestBuilder(-1)

	// A user-supplied absolute path is passed through untouched.
	require.NoError(t, b.Build(ExtendedCommand, Selection{{Path: "/storage/gapps.zip"}}, Flags{}))

	assert.Contains(t, *captured, `install_zip("/storage/gapps.zip")`)
}

func TestPackageEntry(t *testing.T) {
	pkg := &catalog.Package{Category: catalog.Nightly, Name: "update-1.zip"}
	entry := PackageEntry("custom", pkg)
	assert.Equal(t, "custom/nightly/update-1.zip", entry.Path)
}
