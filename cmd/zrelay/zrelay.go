// Package zrelaycmder
package zrelaycmder

import (
	"github.com/spf13/cobra"

	servecmder "github.com/zrelay/zrelay/cmd/zrelay/serve"
	versioncmder "github.com/zrelay/zrelay/cmd/version"
)

const zrelayLongDesc string = `Zrelay is an OpenAI-compatible relay for the Z.ai chat service.

Run the relay using:
  zrelay serve    Run the relay server`

const zrelayShortDesc string = "Zrelay - OpenAI-compatible Z.ai relay"

func NewZrelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zrelay",
		Short: zrelayShortDesc,
		Long:  zrelayLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the config.toml directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
