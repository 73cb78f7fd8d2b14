package cli

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/celerix-dev/celerix-records/internal/vault"
	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/spf13/cobra"
)

// SealOptions holds flags for the seal and open commands.
type SealOptions struct {
	Key string
	In  string
	Out string
}

func (o *SealOptions) key() (schema.Key, error) {
	b, err := hex.DecodeString(o.Key)
	if err != nil {
		return schema.Key{}, fmt.Errorf("invalid --key: %w", err)
	}
	k, ok := schema.KeyFromBytes(b)
	if !ok {
		return schema.Key{}, fmt.Errorf("--key must be %d bytes", schema.KeySize)
	}
	return k, nil
}

func (o *SealOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Key, "key", "", "32-byte record key as hex")
	cmd.Flags().StringVar(&o.In, "in", "", "input file")
	cmd.Flags().StringVar(&o.Out, "out", "", "output file")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
}

// transform reads In, applies fn with the key and writes Out.
func (o *SealOptions) transform(fn func([]byte, schema.Key) ([]byte, error)) error {
	k, err := o.key()
	if err != nil {
		return err
	}
	in, err := os.ReadFile(o.In)
	if err != nil {
		return err
	}
	out, err := fn(in, k)
	if err != nil {
		return err
	}
	return os.WriteFile(o.Out, out, 0600)
}

// NewSealCommand creates the seal command.
func NewSealCommand() *cobra.Command {
	opts := &SealOptions{}
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a record body with its key (AES-GCM)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.transform(vault.Seal); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sealed %s -> %s\n", opts.In, opts.Out)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewOpenCommand creates the open command.
func NewOpenCommand() *cobra.Command {
	opts := &SealOptions{}
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Decrypt a sealed record body",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.transform(vault.Open); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "opened %s -> %s\n", opts.In, opts.Out)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}
