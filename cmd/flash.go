package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/recovery"
)

var (
	flashDialect string
	flashFlags   recovery.Flags
)

var flashCmd = &cobra.Command{
	Use:   "flash <checksum|/absolute/path.zip> ...",
	Short: "Generate a recovery script installing the selected packages",
	Long: "Builds and triggers a recovery script for the selected packages, in order.\n" +
		"Arguments are catalog checksums, or absolute paths for zips added by hand.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dialect recovery.Dialect
		switch strings.ToLower(flashDialect) {
		case "twrp":
			dialect = recovery.OpenRecovery
		case "cwm":
			dialect = recovery.ExtendedCommand
		default:
			return fmt.Errorf("unknown dialect %q (expected twrp or cwm)", flashDialect)
		}

		d, err := newDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		var selection recovery.Selection
		for _, arg := range args {
			if strings.HasPrefix(arg, "/") {
				selection = append(selection, recovery.Entry{Path: arg})
				continue
			}
			pkg, err := findPackage(d, arg)
			if err != nil {
				return err
			}
			selection = append(selection, recovery.PackageEntry(d.Config().DownloadDirName, pkg))
		}

		if err := d.Builder().Build(dialect, selection, flashFlags); err != nil {
			return err
		}
		cmd.Printf("recovery script written, reboot to recovery to apply %d package(s)\n", len(selection))
		return nil
	},
}

func init() {
	flashCmd.Flags().StringVar(&flashDialect, "dialect", "twrp", "recovery script dialect: twrp or cwm")
	flashCmd.Flags().BoolVar(&flashFlags.Backup, "backup", false, "back up the current installation first")
	flashCmd.Flags().BoolVar(&flashFlags.WipeData, "wipe-data", false, "wipe the data partition")
	flashCmd.Flags().BoolVar(&flashFlags.WipeCache, "wipe-cache", false, "wipe the cache partition")
	flashCmd.Flags().BoolVar(&flashFlags.WipeDalvik, "wipe-dalvik", false, "wipe the dalvik cache (twrp only)")
}
