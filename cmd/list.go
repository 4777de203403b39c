package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
)

var listCmd = &cobra.Command{
	Use:   "list [category]",
	Short: "List the packages in the local catalog",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		categories := catalog.Categories()
		if len(args) == 1 {
			category := catalog.Category(args[0])
			if !category.Valid() {
				return cmd.Help()
			}
			categories = []catalog.Category{category}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "CATEGORY\tDATE\tNAME\tCHECKSUM\tSIZE\tSTATE\tPROGRESS")
		for _, category := range categories {
			packages, err := d.Store().List(category)
			if err != nil {
				cmd.PrintErrf("list %s: %v\n", category, err)
				continue
			}
			for _, pkg := range packages {
				progress := "-"
				if pkg.DownloadProgress >= 0 {
					progress = fmt.Sprintf("%d%%", pkg.DownloadProgress)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d MB\t%s\t%s\n",
					category, pkg.Date, pkg.Name, pkg.Checksum,
					pkg.Size/1024/1024, pkg.DownloadState, progress)
			}
		}
		return nil
	},
}
