// Package clearpending deletes all pending slots and exits.
package clearpending

import (
	"fmt"

	"github.com/spf13/cobra"

	"roomwatch/internal/conf"
	"roomwatch/internal/datastore"
)

// Command creates the administrative clear-pending command. Confirmed slots
// are untouched.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "clearpending",
		Short: "Delete all pending reservation slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := datastore.New(settings)
			if err != nil {
				return err
			}
			if err := ds.Open(); err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()

			deleted, err := ds.ClearPendingSlots(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d pending slots\n", deleted)
			return nil
		},
	}
}
