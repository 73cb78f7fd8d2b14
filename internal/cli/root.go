// Package cli implements recordctl, the command-line client of the record store.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/celerix-dev/celerix-records/pkg/sdk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	v *viper.Viper
}

// Addr is the daemon address (flag --addr or RECORDSTORE_ADDR).
func (o *RootOptions) Addr() string { return o.v.GetString("addr") }

// Caller is the identity mutations are made as (flag --caller or RECORDSTORE_CALLER).
func (o *RootOptions) Caller() schema.Principal { return schema.Principal(o.v.GetString("caller")) }

func (o *RootOptions) connect() (*sdk.Client, error) {
	c, err := sdk.Connect(o.Addr(), o.Caller(), sdk.DialOptions{DisableTLS: o.v.GetBool("disable_tls")})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", o.Addr(), err)
	}
	return c, nil
}

// withClient runs fn against a fresh connection.
func (o *RootOptions) withClient(fn func(c *sdk.Client) error) error {
	c, err := o.connect()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// NewRootCommand creates the root command for recordctl.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RECORDSTORE")
	v.AutomaticEnv()
	_ = v.BindEnv("disable_tls", "RECORDSTORE_SERVER_DISABLE_TLS")
	opts := &RootOptions{v: v}

	cmd := &cobra.Command{
		Use:           "recordctl",
		Short:         "Client for the record store",
		Long:          "Register, inspect and update records held by a record store daemon.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().String("addr", "localhost:7001", "daemon address")
	cmd.PersistentFlags().String("caller", "", "principal to act as")
	cmd.PersistentFlags().Bool("disable-tls", false, "connect without TLS")
	_ = v.BindPFlag("addr", cmd.PersistentFlags().Lookup("addr"))
	_ = v.BindPFlag("caller", cmd.PersistentFlags().Lookup("caller"))
	_ = v.BindPFlag("disable_tls", cmd.PersistentFlags().Lookup("disable-tls"))

	// Add subcommands
	cmd.AddCommand(
		NewStoreCommand(opts),
		NewGetCommand(opts),
		NewGetHashCommand(opts),
		NewMetaCommand(opts),
		NewRegisteredCommand(opts),
		NewCountCommand(opts),
		NewUpdateCommand(opts),
		NewTouchCommand(opts),
		NewSetAuthorityCommand(opts),
		NewAuthorityCommand(opts),
		NewHeightCommand(opts),
		NewSealCommand(),
		NewOpenCommand(),
	)
	return cmd
}

func printJSON(w io.Writer, v any) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(w, v)
		return
	}
	fmt.Fprintln(w, string(bytes))
}
