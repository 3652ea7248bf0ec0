// Package cleanup runs one expiry sweep and exits.
package cleanup

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"roomwatch/internal/conf"
	"roomwatch/internal/datastore"
)

// Command creates the one-shot sweep command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete slots that have already ended today",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := datastore.New(settings)
			if err != nil {
				return err
			}
			if err := ds.Open(); err != nil {
				return err
			}
			defer func() { _ = ds.Close() }()

			now := time.Now()
			deleted, err := ds.DeleteExpiredSlots(cmd.Context(),
				datastore.Weekday1to7(now.Weekday()), datastore.TimeOfDay(now))
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired slots\n", deleted)
			return nil
		},
	}
}
