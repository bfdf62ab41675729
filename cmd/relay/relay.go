// Package relaycmder
package relaycmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/obragco/relay/cmd/relay/config"
	initcmder "github.com/obragco/relay/cmd/relay/init"
	servecmder "github.com/obragco/relay/cmd/relay/serve"
	versioncmder "github.com/obragco/relay/cmd/version"
)

const relayLongDesc string = `Relay is the streaming gateway in front of an obrag backend.

It accepts chat requests from the browser UI, forwards the question to the
backend, and re-emits the backend's answer stream as UI events.

Run the gateway using:
  relay serve          Run the gateway server`

const relayShortDesc string = "Relay - obrag streaming gateway"

func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: relayShortDesc,
		Long:  relayLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .relay/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
