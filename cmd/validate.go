package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/smazurov/watchnode/internal/config"
)

// CreateValidateConfigCmd creates the validate-config command.
func CreateValidateConfigCmd() *cobra.Command {
	var settingsPath string

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Check a settings file",
		Long: `Parses the settings file the way the server does and reports every configuration error. ` +
			`Schedules that would fall back to hourly are reported as warnings.`,
		Args:             cobra.NoArgs,
		PersistentPreRun: skipServerSetup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return validateSettings(cmd.OutOrStdout(), settingsPath)
		},
	}

	cmd.Flags().StringVarP(&settingsPath, "settings", "s", "settings.toml", "Settings file to check")
	return cmd
}

func validateSettings(w io.Writer, path string) error {
	settings, err := config.ReadSettings(path)
	if err != nil {
		return err
	}

	for _, warning := range settings.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%s is invalid:\n%w", path, err)
	}

	scheduled := 0
	for _, subject := range settings.Subjects() {
		if subject.Enabled {
			scheduled++
		}
	}
	fmt.Fprintf(w, "%s: %d cameras, %d meters, %d scheduled jobs\n",
		path, len(settings.Cameras), len(settings.Meters), scheduled)
	return nil
}

// skipServerSetup replaces the root command's option parsing, which
// would otherwise open the database and start the settings watcher.
func skipServerSetup(*cobra.Command, []string) {}
