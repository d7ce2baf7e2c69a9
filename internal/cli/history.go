package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stockpile/internal/inventory"
	"github.com/roach88/stockpile/internal/model"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show the audit trail for a name, newest first",
		Long: `Show the audit trail for a name, newest first.

History outlives the record: entries for deleted records are still shown.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			out := rootOpts.formatter(cmd)
			return withEngine(cmd.Context(), rootOpts, func(e *inventory.Engine) error {
				entries, err := e.Audit().HistoryFor(cmd.Context(), name)
				if err != nil {
					return engineError("failed to read history", err)
				}
				return out.Success(nonNil(entries), func(w io.Writer) {
					printHistory(w, name, entries)
				})
			})
		},
	}
	return cmd
}

func printHistory(w io.Writer, name string, entries []model.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No history for %s\n", name)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tACTION\tQUANTITY\tGROUP")
	for _, h := range entries {
		qty := "-"
		if h.Quantity != nil {
			qty = fmt.Sprint(*h.Quantity)
		}
		group := model.Deref(h.Group)
		if group == "" {
			group = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.Timestamp.Format(time.RFC3339), h.Action, qty, group)
	}
	_ = tw.Flush()
}
