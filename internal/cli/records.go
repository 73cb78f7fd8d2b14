package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/celerix-dev/celerix-records/internal/vault"
	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/celerix-dev/celerix-records/pkg/sdk"
	"github.com/spf13/cobra"
)

// StoreOptions holds flags for the store command.
type StoreOptions struct {
	*RootOptions
	File        string
	Hash        string
	Size        uint64
	Title       string
	Category    string
	Timestamp   uint64
	Status      bool
	Key         string
	Version     uint32
	Description string
}

// NewStoreCommand creates the store command.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Register a new record",
		Long: `Register a new record owned by --caller.

The content hash and size are taken from --file when given, otherwise from
--hash and --size. A random encryption key is generated when --key is absent
and printed with the new id.

Example:
  recordctl store --caller ST1TEST --file report.pdf --title "Blood Test" --category lab-results`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, key, err := opts.request()
			if err != nil {
				return err
			}
			return opts.withClient(func(c *sdk.Client) error {
				if req.Timestamp == 0 {
					if req.Timestamp, err = c.Height(); err != nil {
						return err
					}
				}
				id, err := c.StoreRecord(req)
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), map[string]any{
					"id":             id,
					"record_hash":    schema.HexBytes(req.Hash),
					"encryption_key": key,
				})
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "record body to fingerprint")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "content hash as hex (without --file)")
	cmd.Flags().Uint64Var(&opts.Size, "size", 0, "body size in bytes (without --file)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "record title")
	cmd.Flags().StringVar(&opts.Category, "category", "", "lab-results|prescriptions|diagnoses|imaging")
	cmd.Flags().Uint64Var(&opts.Timestamp, "timestamp", 0, "record timestamp (default: current height)")
	cmd.Flags().BoolVar(&opts.Status, "status", false, "record status flag")
	cmd.Flags().StringVar(&opts.Key, "key", "", "32-byte encryption key as hex (default: random)")
	cmd.Flags().Uint32Var(&opts.Version, "version", 1, "record version")
	cmd.Flags().StringVar(&opts.Description, "description", "", "record description")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

// request builds the registration request and returns the key in use.
func (o *StoreOptions) request() (schema.NewRecord, schema.HexBytes, error) {
	req := schema.NewRecord{
		Title:       o.Title,
		Timestamp:   o.Timestamp,
		Category:    schema.Category(o.Category),
		Size:        o.Size,
		Status:      o.Status,
		Version:     o.Version,
		Description: o.Description,
	}

	switch {
	case o.File != "":
		body, err := os.ReadFile(o.File)
		if err != nil {
			return req, nil, err
		}
		h := vault.Fingerprint(body)
		req.Hash = h[:]
		req.Size = uint64(len(body))
	case o.Hash != "":
		b, err := hex.DecodeString(o.Hash)
		if err != nil {
			return req, nil, fmt.Errorf("invalid --hash: %w", err)
		}
		req.Hash = b
	default:
		return req, nil, fmt.Errorf("one of --file or --hash is required")
	}

	if o.Key != "" {
		b, err := hex.DecodeString(o.Key)
		if err != nil {
			return req, nil, fmt.Errorf("invalid --key: %w", err)
		}
		req.EncryptionKey = b
	} else {
		k, err := vault.GenerateKey()
		if err != nil {
			return req, nil, err
		}
		req.EncryptionKey = k[:]
	}
	return req, req.EncryptionKey, nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

func parseHash(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex hash %q", s)
	}
	return b, nil
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withClient(func(c *sdk.Client) error {
				rec, err := c.GetRecord(id)
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("record %d not found", id)
				}
				printJSON(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
}

// NewGetHashCommand creates the get-hash command.
func NewGetHashCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-hash <hex>",
		Short: "Show the record registered under a content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := parseHash(args[0])
			if err != nil {
				return err
			}
			return opts.withClient(func(c *sdk.Client) error {
				rec, err := c.GetRecordByHash(hash)
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("no record registered under %s", args[0])
				}
				printJSON(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
}

// NewMetaCommand creates the meta command.
func NewMetaCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "meta <id>",
		Short: "Show a record's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withClient(func(c *sdk.Client) error {
				meta, err := c.GetRecordMetadata(id)
				if err != nil {
					return err
				}
				if meta == nil {
					return fmt.Errorf("record %d not found", id)
				}
				printJSON(cmd.OutOrStdout(), meta)
				return nil
			})
		},
	}
}

// NewRegisteredCommand creates the registered command.
func NewRegisteredCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "registered <hex>",
		Short: "Report whether a content hash is registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := parseHash(args[0])
			if err != nil {
				return err
			}
			return opts.withClient(func(c *sdk.Client) error {
				ok, err := c.IsRecordRegistered(hash)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

// NewCountCommand creates the count command.
func NewCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of registered records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(func(c *sdk.Client) error {
				n, err := c.GetRecordCount()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Title       string
	Category    string
	Status      bool
	Description string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a record's title, category, status and description",
		Long: `Replace a record's title, category, status and description.

All four values are replaced; only the owner may update a record.

Example:
  recordctl update 0 --caller ST1TEST --title "Updated Test" --category prescriptions`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			upd := schema.MetadataUpdate{
				Presentation: schema.Presentation{
					Title:    opts.Title,
					Category: schema.Category(opts.Category),
					Status:   opts.Status,
				},
				Description: opts.Description,
			}
			return opts.withClient(func(c *sdk.Client) error {
				if err := c.UpdateRecordMetadata(id, upd); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "new title")
	cmd.Flags().StringVar(&opts.Category, "category", "", "new category")
	cmd.Flags().BoolVar(&opts.Status, "status", false, "new status flag")
	cmd.Flags().StringVar(&opts.Description, "description", "", "new description")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

// NewTouchCommand creates the touch command.
func NewTouchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "touch <id>",
		Short: "Count one access to a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withClient(func(c *sdk.Client) error {
				if err := c.IncrementAccessCount(id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			})
		},
	}
}

// NewSetAuthorityCommand creates the set-authority command.
func NewSetAuthorityCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-authority <principal>",
		Short: "Set the authority reference (once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(func(c *sdk.Client) error {
				if err := c.SetAuthorityContract(schema.Principal(args[0])); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			})
		},
	}
}

// NewAuthorityCommand creates the authority command.
func NewAuthorityCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "authority",
		Short: "Show the authority reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(func(c *sdk.Client) error {
				p, set, err := c.GetAuthorityContract()
				if err != nil {
					return err
				}
				printJSON(cmd.OutOrStdout(), sdk.AuthorityReply{Principal: string(p), Set: set})
				return nil
			})
		},
	}
}

// NewHeightCommand creates the height command.
func NewHeightCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "height",
		Short: "Print the store's current height",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(func(c *sdk.Client) error {
				h, err := c.Height()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), h)
				return nil
			})
		},
	}
}
