package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/watchnode/internal/devices"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "devices",
		Short:            "List local video capture devices",
		Args:             cobra.NoArgs,
		PersistentPreRun: skipServerSetup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			list, err := devices.NewDetector().FindDevices()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no capture devices found")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DEVICE\tNAME\tSOURCE")
			for _, d := range list {
				source := d.StablePath
				if source == "" {
					source = d.DevicePath
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.DevicePath, d.DeviceName, source)
			}
			return tw.Flush()
		},
	}
}
