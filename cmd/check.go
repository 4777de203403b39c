package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Evervolv/android-packages-apps-EVUpdater/internal/catalog"
)

var checkCmd = &cobra.Command{
	Use:   "check [category]",
	Short: "Check for new update packages",
	Long:  "Fetches the remote manifest for the given category (or every enabled one) and merges it into the local catalog.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDaemon()
		if err != nil {
			return err
		}
		defer d.Close()

		categories := d.Config().Categories
		if len(args) == 1 {
			category := catalog.Category(args[0])
			if !category.Valid() {
				return cmd.Help()
			}
			categories = []catalog.Category{category}
		}

		for _, category := range categories {
			if err := d.Checker().Check(cmd.Context(), category); err != nil {
				cmd.PrintErrf("check %s: %v\n", category, err)
				continue
			}
			packages, err := d.Store().List(category)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d packages available\n", category, len(packages))
		}
		return nil
	},
}
