package cmd

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: GroupConfig,
	Short:   "Print the resolved configuration",
	Long: `Print the configuration after defaults, the config file and environment
overrides are applied, as TOML. Header values are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() { rootCmd.AddCommand(configCmd) }

func runConfig(cmd *cobra.Command, _ []string) error {
	if err := toml.NewEncoder(cmd.OutOrStdout()).Encode(loadedCfg.Redacted()); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
