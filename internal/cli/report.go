package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/reporting"
)

// NewReportCommand creates the report command and its subcommands.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Read-only inventory reports",
	}

	cmd.AddCommand(newReportLowStockCommand(rootOpts))
	cmd.AddCommand(newReportActivityCommand(rootOpts))
	cmd.AddCommand(newReportValuationCommand(rootOpts))

	return cmd
}

func newReportLowStockCommand(rootOpts *RootOptions) *cobra.Command {
	var threshold int64

	cmd := &cobra.Command{
		Use:           "low-stock",
		Short:         "List records below a quantity threshold",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				t := threshold
				if t <= 0 {
					t = e.Records().LowStockThreshold()
				}
				recs, err := e.Reports().LowStock(cmd.Context(), t)
				if err != nil {
					return engineError("failed to build low-stock report", err)
				}
				return out.Success(nonNil(recs), func(w io.Writer) {
					fmt.Fprintf(w, "Records below %d:\n", t)
					printRecords(w, recs)
				})
			})
		},
	}

	cmd.Flags().Int64Var(&threshold, "threshold", 0, "quantity threshold (default inventory.low_stock_threshold)")

	return cmd
}

func newReportActivityCommand(rootOpts *RootOptions) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Summarize additions, removals and deletions",
		Long: `Summarize audited additions, removals and deletions after a cutoff.

--since takes a duration back from now (24h, 90m) or an RFC3339 time.

Examples:
  stockpile report activity --since 24h
  stockpile report activity --since 2024-01-01T00:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				act, err := e.Reports().ActivitySince(cmd.Context(), cutoff)
				if err != nil {
					return engineError("failed to build activity report", err)
				}
				return out.Success(act, func(w io.Writer) {
					printActivity(w, act)
				})
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "24h", "cutoff as a duration back from now or an RFC3339 time")

	return cmd
}

func newReportValuationCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "valuation",
		Short: "Value current stock at the latest prices",
		Long: `Value current stock at each record's most recently updated unit price.

Records without a price count as zero and are listed as unpriced.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				val, err := e.Reports().ValuationFromLedger(cmd.Context())
				if err != nil {
					return engineError("failed to build valuation", err)
				}
				return out.Success(val, func(w io.Writer) {
					printValuation(w, val)
				})
			})
		},
	}
}

// parseSince accepts a non-negative duration relative to now or an RFC3339 time.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("--since must not be negative, got %s", s))
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --since %q", s), err)
	}
	return t, nil
}

func printActivity(w io.Writer, act reporting.Activity) {
	fmt.Fprintf(w, "Activity since %s\n", act.Since.Format(time.RFC3339))
	fmt.Fprintf(w, "  added:   %d %s\n", act.Added, strings.Join(act.AddedNames, ", "))
	fmt.Fprintf(w, "  removed: %d %s\n", act.Removed, strings.Join(act.RemovedNames, ", "))
	fmt.Fprintf(w, "  deleted: %d %s\n", act.Deleted, strings.Join(act.DeletedNames, ", "))
}

func printValuation(w io.Writer, val reporting.Valuation) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tQUANTITY\tUNIT PRICE\tVALUE")
	for _, l := range val.Lines {
		unit := l.UnitPrice.String()
		if !l.Priced {
			unit = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", l.Name, l.Quantity, unit, l.Value)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "Total: %s\n", val.Total)
	if unpriced := val.Unpriced(); len(unpriced) > 0 {
		fmt.Fprintf(w, "Unpriced: %s\n", strings.Join(unpriced, ", "))
	}
}
