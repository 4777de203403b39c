package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/events"
)

var (
	cancelDownload bool
	removeDownload bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <checksum>",
	Short: "Download an update package and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		pkg, err := findPackage(d, args[0])
		if err != nil {
			return err
		}

		if cancelDownload || removeDownload {
			if removeDownload {
				deleted, err := d.Tracker().Remove(pkg)
				if err != nil {
					return err
				}
				if deleted {
					cmd.Printf("removed downloaded file for %s\n", pkg.Name)
				}
				return nil
			}
			return d.Tracker().Cancel(pkg)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		SetupCloseHandler(ctx, cancel)

		done := make(chan catalog.DownloadState, 1)
		sub := d.Bus().Subscribe(0, func(ev events.Event) bool {
			if ev.Type != events.DownloadProgress || ev.Checksum != pkg.Checksum {
				return false
			}
			switch ev.State {
			case catalog.StateRunning:
				if ev.Progress >= 0 {
					cmd.Printf("\r%s: %d%%", pkg.Name, ev.Progress)
				}
			case catalog.StateSucceeded, catalog.StateFailed, catalog.StateNone:
				select {
				case done <- ev.State:
				default:
				}
			}
			return false
		})
		defer d.Bus().Unsubscribe(sub)

		if _, err := d.Tracker().Start(pkg); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			// Leave the download in flight; the daemon (or the next
			// invocation) reattaches to it.
			cmd.Println()
			cmd.Printf("detached from download of %s\n", pkg.Name)
			return nil
		case state := <-done:
			cmd.Println()
			cmd.Printf("download of %s finished: %s\n", pkg.Name, state)
			return nil
		}
	},
}

func init() {
	downloadCmd.Flags().BoolVar(&cancelDownload, "cancel", false, "cancel the in-flight download instead of starting one")
	downloadCmd.Flags().BoolVar(&removeDownload, "remove", false, "cancel and delete the downloaded file")
}
