package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/model"
	"github.com/roach88/stockpile/internal/pricing"
)

// PriceOptions holds flags shared by the price subcommands.
type PriceOptions struct {
	*RootOptions
	Supplier string
	Total    bool
}

// supplierOptions returns WithSupplier only when --supplier was given, so
// reads span every supplier by default.
func (o *PriceOptions) supplierOptions(cmd *cobra.Command) []pricing.PriceOption {
	if !cmd.Flags().Changed("supplier") {
		return nil
	}
	return []pricing.PriceOption{pricing.WithSupplier(o.Supplier)}
}

// NewPriceCommand creates the price command and its subcommands.
func NewPriceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Manage record prices per supplier",
	}

	cmd.AddCommand(newPriceSetCommand(rootOpts))
	cmd.AddCommand(newPriceGetCommand(rootOpts))
	cmd.AddCommand(newPriceHistoryCommand(rootOpts))
	cmd.AddCommand(newPriceCheapestCommand(rootOpts))
	cmd.AddCommand(newPriceDeleteCommand(rootOpts))

	return cmd
}

func newPriceSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PriceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <name> <price>",
		Short: "Set a record's price",
		Long: `Set a record's price for a supplier.

With --total the price is the total for the record's current quantity and
is stored as the derived unit price.

Examples:
  stockpile price set Widget 2.50
  stockpile price set Widget 20 --total --supplier acme`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPriceSet(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Supplier, "supplier", "", "supplier name (default supplier when empty)")
	cmd.Flags().BoolVar(&opts.Total, "total", false, "price is the total for the current quantity")

	return cmd
}

func runPriceSet(opts *PriceOptions, cmd *cobra.Command, name, raw string) error {
	price, err := parsePrice(raw)
	if err != nil {
		return err
	}
	priceOpts := []pricing.PriceOption{pricing.WithSupplier(opts.Supplier)}
	if opts.Total {
		priceOpts = append(priceOpts, pricing.AsTotalPrice())
	}

	out := opts.formatter(cmd)
	return withEngine(cmd.Context(), opts.RootOptions, func(e *inventory.Engine) error {
		ok, err := e.Prices().SetPrice(cmd.Context(), name, price, priceOpts...)
		if err != nil {
			return engineError("failed to set price", err)
		}
		if !ok {
			return out.Failure(model.CodeNotFound, fmt.Sprintf("record %q not found", name), nil)
		}
		entry, _, err := e.Prices().GetPrice(cmd.Context(), name, pricing.WithSupplier(opts.Supplier))
		if err != nil {
			return engineError("failed to get price", err)
		}
		return out.Success(entry, func(w io.Writer) {
			fmt.Fprintf(w, "Price of %s from %s: %s per unit\n", name, supplierLabel(entry.Supplier), entry.Price)
		})
	})
}

func newPriceGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PriceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a record's current price",
		Long: `Show a record's current price.

Without --supplier the most recently updated supplier's price is shown.
With --total the price is shown as the total for the current quantity.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			priceOpts := opts.supplierOptions(cmd)
			if opts.Total {
				priceOpts = append(priceOpts, pricing.AsTotal())
			}
			out := opts.formatter(cmd)
			return withEngine(cmd.Context(), opts.RootOptions, func(e *inventory.Engine) error {
				entry, found, err := e.Prices().GetPrice(cmd.Context(), name, priceOpts...)
				if err != nil {
					return engineError("failed to get price", err)
				}
				if !found {
					return out.Failure(model.CodeNotFound, fmt.Sprintf("no price for %q", name), nil)
				}
				return out.Success(entry, func(w io.Writer) {
					unit := "per unit"
					if !entry.IsUnitPrice {
						unit = "total"
					}
					fmt.Fprintf(w, "%s from %s: %s %s (updated %s)\n",
						name, supplierLabel(entry.Supplier), entry.Price, unit, entry.UpdatedAt.Format(time.RFC3339))
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Supplier, "supplier", "", "supplier name (empty for the default supplier)")
	cmd.Flags().BoolVar(&opts.Total, "total", false, "show the total for the current quantity")

	return cmd
}

func newPriceHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PriceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "history <name>",
		Short:         "Show price snapshots, newest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := opts.formatter(cmd)
			return withEngine(cmd.Context(), opts.RootOptions, func(e *inventory.Engine) error {
				entries, err := e.Prices().GetHistory(cmd.Context(), name, opts.supplierOptions(cmd)...)
				if err != nil {
					return engineError("failed to get price history", err)
				}
				return out.Success(nonNil(entries), func(w io.Writer) {
					if len(entries) == 0 {
						fmt.Fprintf(w, "No price history for %s\n", name)
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "TIMESTAMP\tSUPPLIER\tUNIT PRICE\tQUANTITY")
					for _, h := range entries {
						qty := "-"
						if h.QuantityAtTime != nil {
							qty = fmt.Sprint(*h.QuantityAtTime)
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
							h.Timestamp.Format(time.RFC3339), supplierLabel(h.Supplier), h.Price, qty)
					}
					_ = tw.Flush()
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Supplier, "supplier", "", "only this supplier (empty for the default supplier)")

	return cmd
}

func newPriceCheapestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "cheapest <name>",
		Short:         "Show the supplier with the lowest unit price",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				quote, found, err := e.Prices().CheapestSupplier(cmd.Context(), name)
				if err != nil {
					return engineError("failed to find cheapest supplier", err)
				}
				if !found {
					return out.Failure(model.CodeNotFound, fmt.Sprintf("no price for %q", name), nil)
				}
				return out.Success(quote, func(w io.Writer) {
					fmt.Fprintf(w, "Cheapest %s: %s at %s per unit\n", name, supplierLabel(quote.Supplier), quote.UnitPrice)
				})
			})
		},
	}
}

func newPriceDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PriceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete current prices, keeping history",
		Long: `Delete a record's current price for one supplier, or for every
supplier when --supplier is not given. Price history is kept.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := opts.formatter(cmd)
			return withEngine(cmd.Context(), opts.RootOptions, func(e *inventory.Engine) error {
				removed, err := e.Prices().DeletePrice(cmd.Context(), name, opts.supplierOptions(cmd)...)
				if err != nil {
					return engineError("failed to delete price", err)
				}
				if !removed {
					return out.Failure(model.CodeNotFound, fmt.Sprintf("no price for %q", name), nil)
				}
				return out.Success(map[string]string{"deleted": name}, func(w io.Writer) {
					fmt.Fprintf(w, "Deleted price for %s\n", name)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Supplier, "supplier", "", "only this supplier (empty for the default supplier)")

	return cmd
}

func parsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid price %q", s), err)
	}
	return d, nil
}

func supplierLabel(s *string) string {
	if s == nil {
		return "default supplier"
	}
	return *s
}
